package mail

import (
	"context"

	logx "remindbot/pkg/logx"
)

// consoleSender renders mail into the log instead of delivering it. It keeps
// the email channel usable in development without provider credentials.
type consoleSender struct {
	cfg Config
	log logx.Logger
}

func newConsole(cfg Config, log logx.Logger) *consoleSender {
	return &consoleSender{cfg: cfg, log: log}
}

func (s *consoleSender) Send(ctx context.Context, m Message) error {
	_ = ctx
	to, err := resolveTo(s.cfg, m)
	if err != nil {
		return err
	}
	s.log.Info("mail (console driver)",
		logx.String("from", s.cfg.From),
		logx.String("to", to),
		logx.String("subject", m.Subject),
		logx.String("body", m.Body),
	)
	return nil
}
