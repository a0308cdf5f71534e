package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// sectionDiff is one section's verdict: whether it changed and, if so, the
// safe attributes describing the new state.
type sectionDiff struct {
	name    string
	changed bool
	attrs   []logx.Field
}

// SummarizeConfigChange reports the sorted list of changed sections plus
// structured attrs safe for logging. Secrets (bot token, API tokens, mail
// keys) never appear, only their set-ness.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	sections := []sectionDiff{
		diffTelegram(oldCfg, newCfg),
		diffLogging(oldCfg, newCfg),
		diffPprof(oldCfg, newCfg),
		diffReminders(oldCfg, newCfg),
		diffScheduler(oldCfg, newCfg),
		diffNotifier(oldCfg, newCfg),
		diffMail(oldCfg, newCfg),
		diffAPI(oldCfg, newCfg),
		diffStorage(oldCfg, newCfg),
	}

	changed := make([]string, 0, len(sections))
	attrs := make([]logx.Field, 0, 24)
	for _, s := range sections {
		if s.changed {
			changed = append(changed, s.name)
			attrs = append(attrs, s.attrs...)
		}
	}
	sort.Strings(changed)
	return changed, attrs
}

// trimNe reports whether two strings differ after trimming.
func trimNe(a, b string) bool {
	return strings.TrimSpace(a) != strings.TrimSpace(b)
}

// setNe reports whether set-ness differs, for secret fields whose values must
// stay out of the summary.
func setNe(a, b string) bool {
	return (strings.TrimSpace(a) != "") != (strings.TrimSpace(b) != "")
}

func diffTelegram(o, n *Config) sectionDiff {
	// The token itself is compared nowhere and logged nowhere.
	if !trimNe(o.Telegram.PollTimeout, n.Telegram.PollTimeout) &&
		reflect.DeepEqual(o.Telegram.OwnerUserIDs, n.Telegram.OwnerUserIDs) &&
		!trimNe(o.Telegram.GroupLog, n.Telegram.GroupLog) {
		return sectionDiff{name: "telegram"}
	}
	return sectionDiff{name: "telegram", changed: true, attrs: []logx.Field{
		logx.String("telegram.poll_timeout", strings.TrimSpace(n.Telegram.PollTimeout)),
		logx.Int("telegram.owner_count", len(n.Telegram.OwnerUserIDs)),
		logx.Bool("telegram.group_log_set", strings.TrimSpace(n.Telegram.GroupLog) != ""),
	}}
}

func diffLogging(o, n *Config) sectionDiff {
	if o.Logging.Level == n.Logging.Level &&
		o.Logging.Console == n.Logging.Console &&
		o.Logging.File.Enabled == n.Logging.File.Enabled &&
		!trimNe(o.Logging.File.Path, n.Logging.File.Path) &&
		o.Logging.Telegram == n.Logging.Telegram {
		return sectionDiff{name: "logging"}
	}
	return sectionDiff{name: "logging", changed: true, attrs: []logx.Field{
		logx.String("logx.level", n.Logging.Level),
		logx.Bool("logx.console", n.Logging.Console),
		logx.Bool("logx.file_enabled", n.Logging.File.Enabled),
		logx.Bool("logx.telegram_enabled", n.Logging.Telegram.Enabled),
	}}
}

func diffPprof(o, n *Config) sectionDiff {
	op, np := o.Pprof, n.Pprof
	if op.Enabled == np.Enabled &&
		!trimNe(op.Addr, np.Addr) &&
		!trimNe(op.Prefix, np.Prefix) &&
		op.AllowInsecure == np.AllowInsecure &&
		!trimNe(op.ReadTimeout, np.ReadTimeout) &&
		!trimNe(op.WriteTimeout, np.WriteTimeout) &&
		!trimNe(op.IdleTimeout, np.IdleTimeout) &&
		op.MutexProfileFraction == np.MutexProfileFraction &&
		op.BlockProfileRate == np.BlockProfileRate &&
		op.MemProfileRate == np.MemProfileRate &&
		!setNe(op.Token, np.Token) {
		return sectionDiff{name: "pprof"}
	}
	return sectionDiff{name: "pprof", changed: true, attrs: []logx.Field{
		logx.Bool("pprof.enabled", np.Enabled),
		logx.String("pprof.addr", strings.TrimSpace(np.Addr)),
		logx.Bool("pprof.token_set", strings.TrimSpace(np.Token) != ""),
		logx.Bool("pprof.allow_insecure", np.AllowInsecure),
	}}
}

func diffReminders(o, n *Config) sectionDiff {
	if o.Reminders == n.Reminders {
		return sectionDiff{name: "reminders"}
	}
	return sectionDiff{name: "reminders", changed: true, attrs: []logx.Field{
		logx.Int("reminders.max_reminders", n.Reminders.MaxReminders),
	}}
}

func diffScheduler(o, n *Config) sectionDiff {
	os, ns := o.Scheduler, n.Scheduler
	if os.Enabled == ns.Enabled &&
		os.Workers == ns.Workers &&
		!trimNe(os.DefaultTimeout, ns.DefaultTimeout) &&
		os.HistorySize == ns.HistorySize &&
		os.RetryMax == ns.RetryMax &&
		!trimNe(os.Timezone, ns.Timezone) {
		return sectionDiff{name: "scheduler"}
	}
	return sectionDiff{name: "scheduler", changed: true, attrs: []logx.Field{
		logx.Bool("scheduler.enabled", ns.Enabled),
		logx.Int("scheduler.workers", ns.Workers),
		logx.String("scheduler.default_timeout", strings.TrimSpace(ns.DefaultTimeout)),
		logx.String("scheduler.timezone", strings.TrimSpace(ns.Timezone)),
	}}
}

func diffNotifier(o, n *Config) sectionDiff {
	// A nil section means runtime defaults; compare against those so an
	// omitted section and an explicitly-default one read the same.
	oN := notifierOrDefault(o.Notifier)
	nN := notifierOrDefault(n.Notifier)
	if oN == nN {
		return sectionDiff{name: "notifier"}
	}
	return sectionDiff{name: "notifier", changed: true, attrs: []logx.Field{
		logx.Bool("notifier.enabled", nN.Enabled),
		logx.Int("notifier.workers", nN.Workers),
		logx.Int("notifier.queue_size", nN.QueueSize),
		logx.Int("notifier.rate_per_sec", nN.RatePerSec),
		logx.Int("notifier.retry_max", nN.RetryMax),
		logx.String("notifier.default_channel", nN.DefaultChannel),
		logx.Bool("notifier.persist_dedup", nN.PersistDedup),
	}}
}

func diffMail(o, n *Config) sectionDiff {
	type view struct {
		driver, from, to string
		keySet           bool
	}
	flat := func(m *MailConfig) view {
		if m == nil {
			return view{}
		}
		return view{
			driver: strings.TrimSpace(m.Driver),
			from:   strings.TrimSpace(m.From),
			to:     strings.TrimSpace(m.DefaultTo),
			keySet: strings.TrimSpace(m.APIKey) != "",
		}
	}
	ov, nv := flat(o.Mail), flat(n.Mail)
	if ov == nv {
		return sectionDiff{name: "mail"}
	}
	return sectionDiff{name: "mail", changed: true, attrs: []logx.Field{
		logx.String("mail.driver", nv.driver),
		logx.Bool("mail.from_set", nv.from != ""),
		logx.Bool("mail.default_to_set", nv.to != ""),
		logx.Bool("mail.api_key_set", nv.keySet),
	}}
}

func diffAPI(o, n *Config) sectionDiff {
	oA, nA := apiOrZero(o.API), apiOrZero(n.API)
	if oA.Enabled == nA.Enabled &&
		!trimNe(oA.Addr, nA.Addr) &&
		!setNe(oA.Token, nA.Token) &&
		reflect.DeepEqual(oA.CORSOrigins, nA.CORSOrigins) &&
		!trimNe(oA.ReadTimeout, nA.ReadTimeout) &&
		!trimNe(oA.WriteTimeout, nA.WriteTimeout) &&
		!trimNe(oA.IdleTimeout, nA.IdleTimeout) {
		return sectionDiff{name: "api"}
	}
	return sectionDiff{name: "api", changed: true, attrs: []logx.Field{
		logx.Bool("api.enabled", nA.Enabled),
		logx.String("api.addr", strings.TrimSpace(nA.Addr)),
		logx.Bool("api.token_set", strings.TrimSpace(nA.Token) != ""),
		logx.Int("api.cors_origins", len(nA.CORSOrigins)),
	}}
}

func diffStorage(o, n *Config) sectionDiff {
	type view struct {
		driver, busy string
		pathSet      bool
	}
	flat := func(s *StorageConfig) view {
		if s == nil {
			return view{}
		}
		return view{
			driver:  strings.TrimSpace(s.Driver),
			busy:    strings.TrimSpace(s.BusyTimeout),
			pathSet: strings.TrimSpace(s.Path) != "",
		}
	}
	ov, nv := flat(o.Storage), flat(n.Storage)
	if ov == nv {
		return sectionDiff{name: "storage"}
	}
	return sectionDiff{name: "storage", changed: true, attrs: []logx.Field{
		logx.String("storage.driver", nv.driver),
		logx.Bool("storage.path_set", nv.pathSet),
		logx.String("storage.busy_timeout", nv.busy),
	}}
}

// notifierOrDefault mirrors the notifier's runtime defaults so summaries
// reflect effective settings.
func notifierOrDefault(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{
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
		}
	}
	out := *n
	if strings.TrimSpace(out.DefaultChannel) == "" {
		out.DefaultChannel = "telegram"
	}
	return out
}

func apiOrZero(a *APIConfig) APIConfig {
	if a == nil {
		return APIConfig{}
	}
	return *a
}
