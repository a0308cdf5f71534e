// Package storage is the optional persistence layer.
//
// It holds two kinds of state, neither of which includes the reminders
// themselves (those are in-memory only):
//   - the audit trail of operator actions (who added or removed what)
//   - the notifier's dedup state, so duplicate suppression survives restarts
//
// Two drivers are provided: a dependency-free file backend and a SQLite
// backend behind the "sqlite" build tag.
package storage
