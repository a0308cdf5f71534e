package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	logx "remindbot/pkg/logx"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type sendgridSender struct {
	cfg  Config
	from *sgmail.Email
	log  logx.Logger
}

func newSendgrid(cfg Config, log logx.Logger) (*sendgridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("mail.api_key is required for sendgrid driver")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail.from is required for sendgrid driver")
	}
	return &sendgridSender{
		cfg:  cfg,
		from: sgmail.NewEmail(cfg.FromName, cfg.From),
		log:  log,
	}, nil
}

func (s *sendgridSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := resolveTo(s.cfg, m)
	if err != nil {
		return err
	}
	// SendGrid rejects empty subjects and empty content outright.
	subject := strings.TrimSpace(m.Subject)
	if subject == "" {
		subject = "(no subject)"
	}
	body := m.Body
	if strings.TrimSpace(body) == "" {
		body = subject
	}

	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail("", to))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(s.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", body))

	req := sendgrid.GetRequest(s.cfg.APIKey, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(v3)

	resp, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		s.log.Warn("sendgrid rejected mail", logx.Int("status", resp.StatusCode), logx.String("to", to))
		return fmt.Errorf("sendgrid: status %d", resp.StatusCode)
	}
	s.log.Debug("mail sent", logx.String("to", to), logx.String("subject", subject))
	return nil
}
