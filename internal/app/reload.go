package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// validateConfig vets a reloaded config before the manager commits it, so a
// bad edit never reaches the running services.
func (a *App) validateConfig(_ context.Context, cfg *Config) error {
	bounds := []struct {
		name  string
		value int
	}{
		{"reminders.max_reminders", cfg.Reminders.MaxReminders},
		{"scheduler.workers", cfg.Scheduler.Workers},
		{"scheduler.history_size", cfg.Scheduler.HistorySize},
		{"scheduler.retry_max", cfg.Scheduler.RetryMax},
	}
	for _, b := range bounds {
		if b.value < 0 {
			return fmt.Errorf("%s must be >= 0", b.name)
		}
	}

	if _, err := parseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if _, err := parseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}

	// The section mappers double as validators; all are safe on disabled
	// sections.
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapMailConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAPIConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPprofConfig(cfg); err != nil {
		return err
	}
	_, _, err := mapStorageConfig(cfg)
	return err
}

// reloadLoop applies committed config updates for as long as the app runs.
func (a *App) reloadLoop(ctx context.Context, sub chan *Config) {
	defer a.cfgm.Unsubscribe(sub)
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			if next = drainLatest(sub, next); next == nil {
				continue
			}
			a.applyConfig(ctx, prev, next)
			prev = next
		}
	}
}

// drainLatest empties a burst of queued updates, keeping only the newest.
func drainLatest(sub <-chan *Config, cur *Config) *Config {
	for {
		select {
		case next := <-sub:
			if next != nil {
				cur = next
			}
		default:
			return cur
		}
	}
}

// applyConfig pushes one committed config onto the running services.
func (a *App) applyConfig(ctx context.Context, prev, next *Config) {
	sections, attrs := SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload had no effective changes")
	} else {
		a.log.Debug("config change summary", changeFields(sections, attrs)...)
	}

	// Storage and mail pick their driver at startup.
	for _, s := range sections {
		if s == "storage" || s == "mail" {
			a.log.Warn("config changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	a.applyLogging(next)

	// The owner list feeds both command access checks and the fallback
	// target for reminders created without a chat.
	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	a.rem.SetDefaultTarget(defaultTarget(next))
	a.rem.Apply(reminder.Config{MaxReminders: next.Reminders.MaxReminders})

	a.applyScheduler(ctx, next)
	a.applyNotifier(ctx, next)
	a.applySurfaces(ctx, next)

	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Info("config reloaded", changeFields(sections, attrs)...)
}

func changeFields(sections []string, attrs []logx.Field) []logx.Field {
	return append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
}

// applyLogging updates the sink target before the config lands, so enabling
// Telegram logging in the same edit does not warn about a missing target.
func (a *App) applyLogging(next *Config) {
	if chatID, ok := logChatID(next.Telegram.GroupLog); ok {
		a.logs.SetTelegramTarget(chatID, next.Logging.Telegram.ThreadID)
	} else if strings.TrimSpace(next.Telegram.GroupLog) == "" {
		// an emptied value clears the target
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(logConfigFrom(next))
}

func (a *App) applyScheduler(ctx context.Context, next *Config) {
	wasEnabled := a.sched.Enabled()
	cfg, err := mapSchedulerConfig(next)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Any("err", err))
		return
	}
	a.sched.Apply(cfg)

	switch {
	case wasEnabled && !cfg.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !wasEnabled && cfg.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}
}

func (a *App) applyNotifier(ctx context.Context, next *Config) {
	wasEnabled := a.notif.Enabled()
	cfg, err := mapNotifierConfig(next)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Any("err", err))
		return
	}
	a.notif.Apply(cfg)

	switch {
	case wasEnabled && !cfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !wasEnabled && cfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(ctx)
	}
}

// applySurfaces reconfigures the HTTP listeners; both restart themselves
// when the new config needs it.
func (a *App) applySurfaces(ctx context.Context, next *Config) {
	if cfg, err := mapAPIConfig(next); err != nil {
		a.log.Warn("invalid api config; keeping previous", logx.Any("err", err))
	} else {
		a.api.Reconfigure(ctx, cfg)
	}
	if cfg, err := mapPprofConfig(next); err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Any("err", err))
	} else {
		a.pprof.Reconfigure(ctx, cfg)
	}
}

// relayEvents mirrors bus traffic into the debug log.
func (a *App) relayEvents(ctx context.Context, events <-chan eventbus.Event, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			// debug level; reminder fires make this chatty
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}
