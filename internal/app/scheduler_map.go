package app

import (
	"strings"
	"time"

	"remindbot/internal/scheduler"
)

// mapSchedulerConfig maps the JSON scheduler section onto the runtime
// config, filling defaults for omitted values.
func mapSchedulerConfig(cfg *Config) (scheduler.Config, error) {
	if cfg == nil {
		return scheduler.Config{}, nil
	}
	sc := cfg.Scheduler

	out := scheduler.Config{
		Enabled:        sc.Enabled,
		Workers:        sc.Workers,
		HistorySize:    sc.HistorySize,
		Timezone:       sc.Timezone,
		RetryMax:       sc.RetryMax,
		DefaultTimeout: 30 * time.Second,
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	switch {
	case out.HistorySize < 0:
		out.HistorySize = 0
	case out.HistorySize == 0:
		out.HistorySize = 200
	}
	switch {
	case out.RetryMax < 0:
		out.RetryMax = 0
	case out.RetryMax == 0:
		out.RetryMax = 3
	}

	// Omitted means 30s; an explicit "0s" disables the per-fire timeout.
	if strings.TrimSpace(sc.DefaultTimeout) != "" {
		d, err := parseDurationField("scheduler.default_timeout", sc.DefaultTimeout)
		if err != nil {
			return scheduler.Config{}, err
		}
		out.DefaultTimeout = d
	}
	return out, nil
}
