// Package notifier is the async delivery pipeline for reminder fires and
// system notices.
//
// Notify validates and enqueues; a worker pool drains the queue through a
// shared rate limiter with bounded retries. Two channels are supported:
// telegram (via the chat adapter) and email (via the mail sender). A channel
// whose backend is absent reports itself not ready, which rejects reminders
// targeting it at add time instead of at fire time.
//
// # Duplicate suppression
//
// Each accepted notification opens a suppression window keyed either by a
// producer-chosen key (reminders key per occurrence) or by a fingerprint of
// the content. Re-enqueues inside the window are acknowledged but not
// delivered. With a storage backend attached, windows survive restarts.
//
// # History
//
// A small in-memory history of delivered notifications backs the status
// command.
package notifier
