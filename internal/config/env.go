package config

import (
	"os"
	"strings"
)

// Env vars that override their config file counterparts. Secrets usually
// arrive this way (systemd EnvironmentFile, a .env in dev) so the config
// file can be committed without them.
const (
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvSendgridAPIKey = "SENDGRID_API_KEY"
	EnvAPIToken       = "API_TOKEN"
)

// applyEnvOverrides overlays secret env vars onto cfg. It runs on every
// parse, so hot reloads keep the overrides too. The mail and api overrides
// only apply when their sections exist; an env var alone never enables a
// feature.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSendgridAPIKey)); v != "" && cfg.Mail != nil {
		cfg.Mail.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIToken)); v != "" && cfg.API != nil {
		cfg.API.Token = v
	}
}
