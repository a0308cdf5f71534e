package app

import (
	"strconv"
	"strings"
	"time"

	"remindbot/internal/mail"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

// buildAdapter constructs the Telegram transport. Polling starts later,
// under the app supervisor.
func buildAdapter(cfg *Config) (kit.Adapter, error) {
	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}
	return ad, nil
}

// initLogging brings the log service up in two phases. logx.New applies its
// config on construction, and an enabled Telegram sink warns when the chat
// target is missing; the sink therefore comes up disabled, gets its target,
// and the real enable flag lands in a second Apply.
func initLogging(cfg *Config, ad kit.Adapter) (*logx.Service, logx.Logger) {
	boot := logConfigFrom(cfg)
	boot.Telegram.Enabled = false
	svc, log := logx.New(boot, ad)

	if chatID, ok := logChatID(cfg.Telegram.GroupLog); ok {
		svc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	svc.Apply(logConfigFrom(cfg))
	return svc, log
}

// logConfigFrom maps the logging section onto the log service config.
func logConfigFrom(cfg *Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

// logChatID parses the log group chat id; false when unset or malformed.
func logChatID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

// openStorage opens the configured backend; (nil, nil) when storage is off.
func openStorage(cfg *Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver))
	return st, nil
}

// openMail initializes the mail driver; (nil, nil) when mail is off. The
// notifier owns the sender and rejects the email channel while it is nil.
func openMail(cfg *Config, log logx.Logger) (mail.Sender, error) {
	mcfg, err := mapMailConfig(cfg)
	if err != nil {
		return nil, err
	}
	sender, err := mail.Open(mcfg, log.With(logx.String("comp", "mail")))
	if err != nil {
		return nil, err
	}
	if sender != nil {
		log.Info("mail enabled", logx.String("driver", mcfg.Driver))
	}
	return sender, nil
}
