// Package scheduler is the timer service behind reminders: it decides WHEN a
// registered job fires and hands execution to a small worker pool.
//
// # Overview
//
// Jobs register under a logical name (e.g. "reminder:<id>"). Names are stable
// and human readable so registrations can be replaced (upserted) and removed
// deterministically, which is what reminder edits and deletions rely on.
//
// Two registration families exist:
//
//   - Repeating: cron or interval, for reminders with a repeat schedule and
//     for housekeeping jobs.
//   - One-time (AddOnce): fires once at a wall-clock instant. A target
//     already in the past fires almost immediately instead of being dropped,
//     so a reminder created after its own due time still notifies.
//
// # Schedule formats
//
// Repeating registrations accept several syntaxes:
//
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with
//     optional seconds. Example: "55 * * * *" or "0 */5 * * * *".
//   - Cron descriptors: "@hourly", "@daily", "@every 55m".
//   - Interval durations: Go duration strings like "55m" or "2h30m".
//   - Interval HH:MM: "00:50" means every 50 minutes, "02:30" every 2 hours
//     30 minutes.
//
// Callers may force interpretation with a "cron:", "interval:", or "every:"
// prefix.
//
// # Concurrency and overlap
//
// Fires run on a worker pool under the runtime supervisor. The TaskOptions
// overlap policy either allows overlap or skips a run while the previous one
// is still executing. Each run gets a per-attempt timeout and exponential
// retry with jitter.
//
// # Lifecycle
//
// The Service can be started and stopped at runtime (config hot reload).
// Registering while stopped is supported: definitions are stored and applied
// on the next start, including pending one-time fires.
package scheduler
