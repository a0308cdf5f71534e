// Package reminder implements the reminder list and its lifecycle.
//
// A reminder pairs an entry in the in-memory store with exactly one
// registration in the scheduler, named "reminder:<id>". Adding stores the
// entry first and registers the fire second; a registration failure rolls
// the store back, so the two never drift apart. One-shot reminders are
// consumed when their notification is handed to the notifier; repeating
// reminders stay until removed.
//
// Reminders live in memory only. A restart starts from an empty list.
package reminder
