package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Setenv(EnvTelegramToken, "") // keep the host env out of the assertion below
	path := writeConfigFile(t, "config.json", `{
		"telegram": {"token": "123:abc", "owner_user_ids": [42], "poll_timeout": "10s"},
		"logging": {"level": "debug", "console": true},
		"reminders": {"max_reminders": 100},
		"scheduler": {"enabled": true, "timezone": "Asia/Jakarta"}
	}`)

	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse = %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Reminders.MaxReminders != 100 || !cfg.Scheduler.Enabled || cfg.Scheduler.Timezone != "Asia/Jakarta" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Notifier != nil || cfg.Mail != nil || cfg.API != nil || cfg.Storage != nil {
		t.Fatalf("omitted sections must stay nil: %+v", cfg)
	}
}

func TestParseRejectsUnknownKeysAndTrailingData(t *testing.T) {
	unknown := writeConfigFile(t, "config.json", `{"telegram": {"token": "t"}, "telgram_typo": {}}`)
	if _, err := NewConfigManager(unknown).Parse(); err == nil {
		t.Fatal("Parse accepted an unknown top-level key")
	}

	nested := writeConfigFile(t, "config.json", `{"scheduler": {"enabeld": true}}`)
	if _, err := NewConfigManager(nested).Parse(); err == nil {
		t.Fatal("Parse accepted an unknown nested key")
	}

	trailing := writeConfigFile(t, "config.json", `{"logging": {"level": "info"}} {}`)
	if _, err := NewConfigManager(trailing).Parse(); err == nil {
		t.Fatal("Parse accepted trailing data")
	}
}

func TestParseYAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42, 43]
logging:
  level: info
scheduler:
  enabled: true
  workers: 4
notifier:
  enabled: true
  workers: 2
  queue_size: 64
  rate_per_sec: 3
  retry_max: 3
  retry_base: 500ms
  retry_max_delay: 10s
  dedup_window: 1m
  dedup_max_entries: 100
`)

	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse = %v", err)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Scheduler.Workers != 4 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Notifier == nil || cfg.Notifier.QueueSize != 64 || cfg.Notifier.RetryBase != "500ms" {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvTelegramToken, "999:env")
	t.Setenv(EnvSendgridAPIKey, "SG.env")
	t.Setenv(EnvAPIToken, "api-env")

	path := writeConfigFile(t, "config.json", `{
		"telegram": {"token": "123:file"},
		"api": {"enabled": true, "token": "api-file"}
	}`)

	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse = %v", err)
	}
	if cfg.Telegram.Token != "999:env" {
		t.Fatalf("Telegram.Token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.API == nil || cfg.API.Token != "api-env" {
		t.Fatalf("API token = %+v, want env override", cfg.API)
	}
	// No mail section in the file, so the sendgrid key must not conjure one.
	if cfg.Mail != nil {
		t.Fatalf("Mail = %+v, want nil", cfg.Mail)
	}
}

func TestLoadCommitsAndGetReturns(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{"logging": {"level": "info"}}`)
	m := NewConfigManager(path)

	if got := m.Get(); got != nil {
		t.Fatalf("Get before Load = %+v, want nil", got)
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load = %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestSubscribePublishKeepsLatest(t *testing.T) {
	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Logging: LoggingConfig{Level: "info"}}
	second := &Config{Logging: LoggingConfig{Level: "debug"}}

	// The buffer holds one item; publishing again must evict the stale config
	// so the subscriber always observes the latest.
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatalf("subscriber got %+v, want the latest config", got.Logging)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second item: %+v", extra.Logging)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	// Double unsubscribe is a no-op.
	m.Unsubscribe(ch)
}
