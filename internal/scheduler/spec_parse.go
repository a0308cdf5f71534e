package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SpecKind is the normalized kind of a schedule string: a cron expression
// (robfig/cron) or a fixed interval.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a parsed schedule string.
//
// Accepted forms:
//   - cron, crontab.guru style: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - interval as a Go duration: "55m", "2h30m"
//   - interval as HH:MM: "00:50" (50 minutes), "02:30" (2h30m)
//
// A "cron:" prefix forces cron parsing; "interval:" or "every:" forces
// interval parsing.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

func cronSpec(expr string) ParsedSpec {
	return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}
}

func intervalSpec(d time.Duration, src string) ParsedSpec {
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule normalizes a schedule string into either a cron expression or
// an interval duration.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		// Slice the original, not low: cron day names may be uppercase.
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return cronSpec(expr), nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if !strings.HasPrefix(low, p) {
			continue
		}
		d, src, err := parseInterval(s[len(p):])
		if err != nil {
			return ParsedSpec{}, err
		}
		return intervalSpec(d, src), nil
	}

	// Bare strings: whitespace or a leading '@' reads as cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return cronSpec(s), nil
	}

	// HH:MM reads as an interval.
	if reHHMM.MatchString(s) {
		d, err := hhmmDuration(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		return intervalSpec(d, "hhmm"), nil
	}

	// Anything left must be a Go duration.
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be > 0")
		}
		return intervalSpec(d, "duration"), nil
	}

	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')",
		raw,
	)
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return 0, "", fmt.Errorf("interval required")
	case reHHMM.MatchString(v):
		d, err := hhmmDuration(v)
		return d, "hhmm", err
	}

	d, err := time.ParseDuration(v)
	switch {
	case err != nil:
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	case d <= 0:
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}

// hhmmDuration converts "HH:MM" to a duration. Hours run up to 999 here;
// wall-clock targets go through parseHHMM instead.
func hhmmDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
