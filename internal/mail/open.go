package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	logx "remindbot/pkg/logx"
)

// Sender delivers outgoing mail. Implementations are safe for concurrent
// use; Send blocks until the driver accepts or rejects the message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Open initializes the configured sender.
// It returns (nil, nil) if mail is disabled.
func Open(cfg Config, log logx.Logger) (Sender, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sendgrid":
		return newSendgrid(cfg, log)
	case "console":
		return newConsole(cfg, log), nil
	default:
		return nil, errors.New("unknown mail driver: " + driver)
	}
}

// resolveTo applies the default recipient and validates the address.
func resolveTo(cfg Config, m Message) (string, error) {
	to := strings.TrimSpace(m.To)
	if to == "" {
		to = strings.TrimSpace(cfg.DefaultTo)
	}
	if to == "" {
		return "", ErrNoRecipient
	}
	if _, err := netmail.ParseAddress(to); err != nil {
		return "", fmt.Errorf("mail: bad recipient %q: %w", to, err)
	}
	return to, nil
}
