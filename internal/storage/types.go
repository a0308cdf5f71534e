package storage

import (
	"errors"
	"time"
)

// ErrDisabled is returned by operations on a disabled or closed store.
var ErrDisabled = errors.New("storage disabled")

// Config selects and tunes the persistence backend.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one action that touched the reminder list: a bot
// command, an API call, or a scheduler fire. Keep it compact and
// schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	ThreadID      int       `json:"thread_id,omitempty"`

	Source string `json:"source"` // originating surface: "bot", "api" or "scheduler"
	Action string `json:"action"` // e.g. "reminder.add", "reminder.del", "reminder.fire"
	Target string `json:"target,omitempty"`

	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TookMS int64  `json:"took_ms,omitempty"`

	// MetaJSON carries small action-specific details, already serialized.
	MetaJSON string `json:"meta,omitempty"`
}
