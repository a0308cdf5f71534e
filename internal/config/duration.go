package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one duration-valued config field. Empty input
// means 0 (the caller decides what zero means there); negatives are rejected.
// path names the offending key in errors, e.g. "notifier.retry_base".
func ParseDurationField(path, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: bad duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is omitted or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d > 0 {
		return d, nil
	}
	return def, nil
}
