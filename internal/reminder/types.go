package reminder

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	kit "remindbot/internal/transport"
)

var (
	// ErrNotFound is returned when no reminder matches the given id.
	ErrNotFound = errors.New("reminder not found")
	// ErrAmbiguous is returned when an id prefix matches more than one reminder.
	ErrAmbiguous = errors.New("reminder id prefix is ambiguous")
	// ErrStoreFull is returned by Add when the list is at its configured cap.
	ErrStoreFull = errors.New("reminder list is full")
)

// Config controls the reminder service.
type Config struct {
	// MaxReminders caps how many reminders may be held at once.
	// Values <= 0 select the package default.
	MaxReminders int
}

const defaultMaxReminders = 500

func (c Config) maxReminders() int {
	if c.MaxReminders <= 0 {
		return defaultMaxReminders
	}
	return c.MaxReminders
}

// Reminder is a single scheduled notification. A one-shot reminder carries
// its fire instant in At; a repeating reminder carries a schedule spec in
// Repeat and stays in the list until removed.
type Reminder struct {
	ID      uuid.UUID
	Title   string
	Message string

	At     time.Time
	Repeat string

	Channel string // kit.ChannelTelegram or kit.ChannelEmail
	EmailTo string // email recipient override, empty uses the mail default

	// Target is the telegram delivery destination. A zero target falls back
	// to the service default at fire time.
	Target kit.ChatTarget

	CreatedAt time.Time
}

// Repeating reports whether the reminder re-fires on a schedule.
func (r Reminder) Repeating() bool { return strings.TrimSpace(r.Repeat) != "" }

// NotifyText renders the message body delivered when the reminder fires.
func (r Reminder) NotifyText() string {
	var b strings.Builder
	b.WriteString("⏰ ")
	b.WriteString(strings.TrimSpace(r.Title))
	if m := strings.TrimSpace(r.Message); m != "" {
		b.WriteString("\n")
		b.WriteString(m)
	}
	return b.String()
}

// ShortID is the display form of a reminder id: long enough to be unique in
// practice and short enough to type back into a command.
func ShortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// ReminderEvent is emitted on the event bus for reminder lifecycle events
// (reminder.created, reminder.removed, reminder.fired, reminder.failed).
// Keep it small; Data may be logged/serialized by subscribers.
type ReminderEvent struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	At      time.Time `json:"at"`
	Repeat  string    `json:"repeat,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Snapshot summarizes the reminder list for status surfaces.
type Snapshot struct {
	Count int
	Limit int
	Items []Reminder
}
