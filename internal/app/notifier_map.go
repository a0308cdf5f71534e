package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/notifier"
	kit "remindbot/internal/transport"
)

// mapNotifierConfig maps the JSON notifier section into the runtime config
// (parsed durations). An omitted section means enabled with defaults, so a
// bare config file still delivers reminders.
func mapNotifierConfig(cfg *Config) (notifier.Config, error) {
	out := notifier.Config{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       500 * time.Millisecond,
		RetryMaxDelay:   10 * time.Second,
		DedupWindow:     1 * time.Minute,
		DedupMaxEntries: 2000,
		DefaultChannel:  kit.ChannelTelegram,
	}

	if cfg == nil || cfg.Notifier == nil {
		return out, nil
	}
	n := cfg.Notifier
	out.Enabled = n.Enabled
	out.PersistDedup = n.PersistDedup
	if n.Workers != 0 {
		out.Workers = n.Workers
	}
	if n.QueueSize != 0 {
		out.QueueSize = n.QueueSize
	}
	if n.RatePerSec != 0 {
		out.RatePerSec = n.RatePerSec
	}
	if n.RetryMax != 0 {
		out.RetryMax = n.RetryMax
	}
	if n.DedupMaxEntries != 0 {
		out.DedupMaxEntries = n.DedupMaxEntries
	}

	// Durations.
	var err error
	out.RetryBase, err = parseDurationOrDefault("notifier.retry_base", n.RetryBase, out.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	out.RetryMaxDelay, err = parseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, out.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	out.DedupWindow, err = parseDurationOrDefault("notifier.dedup_window", n.DedupWindow, out.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}

	switch ch := strings.ToLower(strings.TrimSpace(n.DefaultChannel)); ch {
	case "":
	case kit.ChannelTelegram, kit.ChannelEmail:
		out.DefaultChannel = ch
	default:
		return notifier.Config{}, fmt.Errorf("notifier.default_channel: unknown %q (want telegram or email)", n.DefaultChannel)
	}

	// Bounds.
	if out.Workers < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.workers must be >= 0")
	}
	if out.QueueSize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	}
	if out.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if out.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.retry_max must be >= 0")
	}
	if out.DedupMaxEntries < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.dedup_max_entries must be >= 0")
	}

	return out, nil
}
