package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	logx "remindbot/pkg/logx"

	"github.com/rs/zerolog"
)

func TestSummarizeConfigChangeSections(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Reminders: ReminderConfig{MaxReminders: 500},
		Scheduler: SchedulerConfig{Enabled: true, Workers: 2},
	}
	newCfg := &Config{
		Logging:   LoggingConfig{Level: "debug", Console: true},
		Reminders: ReminderConfig{MaxReminders: 100},
		Scheduler: SchedulerConfig{Enabled: true, Workers: 2},
		Mail:      &MailConfig{Driver: "console", From: "bot@example.com"},
	}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"logging", "mail", "reminders"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs for changed sections")
	}
}

func TestSummarizeConfigChangeNotifierDefaults(t *testing.T) {
	t.Parallel()
	// An omitted notifier section and an explicitly-default one must not be
	// reported as a change.
	oldCfg := &Config{}
	newCfg := &Config{Notifier: &NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
		DefaultChannel:  "telegram",
	}}

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	for _, s := range changed {
		if s == "notifier" {
			t.Fatalf("notifier reported as changed: %v", changed)
		}
	}
}

func TestSummarizeConfigChangeNeverLogsSecrets(t *testing.T) {
	t.Parallel()
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "123:secret", PollTimeout: "10s"},
		Mail:     &MailConfig{Driver: "sendgrid", APIKey: "SG.secret"},
		API:      &APIConfig{Enabled: true, Token: "api-secret"},
	}
	_, attrs := SummarizeConfigChange(&Config{}, newCfg)
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	// Attrs are built from booleans and non-secret strings only, so rendering
	// them must not leak the raw values.
	line := renderAttrs(attrs)
	for _, secret := range []string{"123:secret", "SG.secret", "api-secret"} {
		if strings.Contains(line, secret) {
			t.Fatalf("attrs leaked secret %q: %s", secret, line)
		}
	}
}

func renderAttrs(fields []logx.Field) string {
	var buf bytes.Buffer
	ev := zerolog.New(&buf).Info()
	for _, f := range fields {
		f(ev)
	}
	ev.Msg("summary")
	return buf.String()
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty", raw: "", want: 0},
		{name: "simple", raw: "10s", want: 10 * time.Second},
		{name: "spaces", raw: " 1m ", want: time.Minute},
		{name: "negative", raw: "-5s", wantErr: true},
		{name: "garbage", raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationField("test.field", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	if d, err := ParseDurationOrDefault("test.field", "", 30*time.Second); err != nil || d != 30*time.Second {
		t.Fatalf("ParseDurationOrDefault = %v, %v; want 30s, nil", d, err)
	}
}
