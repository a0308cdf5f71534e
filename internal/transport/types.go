// Package transport holds the platform-neutral types exchanged between the
// chat adapters and the rest of the app: inbound updates, outbound
// addressing, and the notification envelope the notifier delivers.
package transport

import "context"

// Adapter is a platform binding (Telegram today). Start feeds inbound
// updates into out until the context ends or Stop is called.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// CommandMenuUpdater is implemented by adapters that can publish a command
// menu on their platform (the Telegram "/" list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// BotCommand is one command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// UpdateKind discriminates the variants of Update.
type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is one inbound event. Exactly one of the pointer fields is set,
// per Kind.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is an inbound chat message.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// Callback is an inline-button press.
type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// ChatTarget addresses an outbound message: a chat plus an optional forum
// topic thread.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// IsZero reports whether the target names no chat at all.
func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

// MessageRef identifies a message already sent, for later edits.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Delivery channels understood by the notifier.
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
)

// Notification is one deliverable message. Channel selects the delivery
// path and decides which of the per-channel payloads below is consulted.
type Notification struct {
	Channel  string // ChannelTelegram or ChannelEmail
	Priority int    // 0 low .. 10 high

	// DedupKey overrides the content-derived duplicate-suppression key.
	// Producers that may legitimately emit identical texts (reminders with
	// the same title) set a per-source key so only true re-enqueues of the
	// same item are suppressed. Empty means "derive from content".
	DedupKey string

	// Telegram delivery.
	Target  ChatTarget
	Text    string
	Options *SendOptions

	// Email delivery. To may be empty, in which case the mail sender falls
	// back to its configured default recipient.
	Email *EmailMessage
}

// EmailMessage is the email-channel payload of a Notification.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}
