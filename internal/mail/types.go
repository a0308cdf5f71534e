package mail

import (
	"errors"
	"strings"
)

// ErrNoRecipient is returned when neither the message nor the config name a
// destination address.
var ErrNoRecipient = errors.New("mail: no recipient")

// Config selects and configures the outgoing mail driver.
//
// Driver values:
//   - "sendgrid": deliver through the SendGrid v3 API
//   - "console": render mail into the log (development)
//
// If Driver is empty or "none", mail is disabled and the email reminder
// channel is rejected at add time.
type Config struct {
	Driver    string
	From      string // sender address, required for sendgrid
	FromName  string // display name on the From header
	DefaultTo string // fallback recipient when a message has none
	APIKey    string // sendgrid key (do not log)
}

// Enabled reports whether cfg selects a driver.
func (c Config) Enabled() bool {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	return d != "" && d != "none"
}

// Message is one outgoing mail. An empty To falls back to the configured
// default recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}
