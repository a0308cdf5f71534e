package app

import (
	"fmt"
	"strings"

	"remindbot/internal/mail"
)

// mapMailConfig validates the mail section without opening a driver, so the
// config validator can reject a bad hot-reload up front. mail.Open repeats
// the driver checks; this keeps the two in agreement.
func mapMailConfig(cfg *Config) (mail.Config, error) {
	var out mail.Config
	if cfg == nil || cfg.Mail == nil {
		return out, nil
	}
	mc := cfg.Mail
	out = mail.Config{
		Driver:    strings.ToLower(strings.TrimSpace(mc.Driver)),
		From:      strings.TrimSpace(mc.From),
		FromName:  strings.TrimSpace(mc.FromName),
		DefaultTo: strings.TrimSpace(mc.DefaultTo),
		APIKey:    strings.TrimSpace(mc.APIKey),
	}

	switch out.Driver {
	case "", "none", "console":
	case "sendgrid":
		if out.APIKey == "" {
			return mail.Config{}, fmt.Errorf("mail.api_key is required when mail.driver=sendgrid")
		}
		if out.From == "" {
			return mail.Config{}, fmt.Errorf("mail.from is required when mail.driver=sendgrid")
		}
	default:
		return mail.Config{}, fmt.Errorf("unknown mail.driver: %s", mc.Driver)
	}
	return out, nil
}
