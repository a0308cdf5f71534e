package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

// shorten caps s at n bytes, marking the cut with "..." when there is room.
func shorten(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n <= 3:
		return s[:n]
	}
	return s[:n-3] + "..."
}

// fmtBytes renders a byte count with one decimal in the largest fitting unit.
func fmtBytes(n uint64) string {
	const k = 1024
	units := []struct {
		mul  uint64
		name string
	}{
		{k * k * k, "GB"},
		{k * k, "MB"},
		{k, "KB"},
	}
	for _, u := range units {
		if n >= u.mul {
			return fmt.Sprintf("%.1f%s", float64(n)/float64(u.mul), u.name)
		}
	}
	return fmt.Sprintf("%dB", n)
}

// durRel renders a duration the way countdowns read: "45s", "1m30s",
// "26h0m". Hours never wrap into days and the sign is dropped.
func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int(d.Seconds())
	switch {
	case total < 60:
		return fmt.Sprintf("%ds", total)
	case total < 3600:
		return fmt.Sprintf("%dm%ds", total/60, total%60)
	}
	return fmt.Sprintf("%dh%dm", total/3600, total%3600/60)
}

// repeatLabel renders a stored repeat spec for humans. Interval specs are
// normalized ("01:30" and "90m" both read "every 1h30m"), cron specs stay as
// written.
func repeatLabel(raw string) string {
	p, err := router.ParseSchedule(raw)
	if err != nil {
		return "repeats " + raw
	}
	switch p.Kind {
	case router.ScheduleInterval:
		return "repeats every " + durCompact(p.Every)
	case router.ScheduleCron:
		return "repeats " + p.Cron
	}
	return "repeats " + raw
}

// durCompact is time.Duration.String without zero tail units ("45m0s" -> "45m").
func durCompact(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

// whenLabel is the one-line "when does it fire" description used in list and
// confirm views.
func whenLabel(r reminder.Reminder, now time.Time, loc *time.Location) string {
	var s string
	if r.Repeating() {
		s = repeatLabel(r.Repeat)
	} else {
		at := r.At.In(loc)
		s = at.Format("2006-01-02 15:04")
		if at.After(now) {
			s += " (in " + durRel(at.Sub(now)) + ")"
		} else {
			s += " (overdue " + durRel(now.Sub(at)) + ")"
		}
	}
	if r.Channel == kit.ChannelEmail {
		s += " · email"
	}
	return s
}

// audit records a reminder mutation into the audit trail, best-effort
// (storage may be disabled).
func (b *Bot) audit(ctx context.Context, req *router.Request, action, target string, opErr error, took time.Duration, meta map[string]any) {
	if req.Services == nil || req.Services.Store == nil {
		return
	}
	a := storage.AuditEntry{
		At:       time.Now(),
		ActorID:  req.FromID,
		ChatID:   req.Chat.ChatID,
		ThreadID: req.Chat.ThreadID,
		Source:   "bot",
		Action:   action,
		Target:   target,
		OK:       opErr == nil,
		TookMS:   took.Milliseconds(),
	}
	if req.Update.Message != nil {
		a.ActorUsername = req.Update.Message.FromUsername
	}
	if opErr != nil {
		a.Error = opErr.Error()
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["cmd"] = req.Command
	if j, err := json.Marshal(meta); err == nil {
		a.MetaJSON = string(j)
	}

	auditCtx := ctx
	if auditCtx == nil {
		auditCtx = context.Background()
	}
	cctx, cancel := context.WithTimeout(auditCtx, 1*time.Second)
	defer cancel()
	if err := req.Services.Store.AppendAudit(cctx, a); err != nil {
		b.log.Debug("audit append failed", logx.Err(err), logx.String("action", action))
	}
}
