package bot

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport/telegram/router"
	"remindbot/pkg/tgui"
)

func (b *Bot) cmdStatus(ctx context.Context, req *router.Request) error {
	svc := req.Services
	if svc == nil || svc.Reminders == nil {
		return b.replyErr(ctx, req, "reminder service not available")
	}
	loc := b.location(req)

	bld := tgui.New().Title("🧭", "remind status")

	rs := svc.Reminders.Snapshot()
	bld.KV("reminders", fmt.Sprintf("%d/%d", rs.Count, rs.Limit))

	if svc.Scheduler != nil {
		ss := svc.Scheduler.Snapshot()
		state := "disabled"
		if svc.Scheduler.Enabled() {
			state = "enabled"
		}
		bld.KV("scheduler", fmt.Sprintf("%s, tz %s, workers %d, queue %d/%d",
			state, ss.Timezone, ss.Workers, ss.QueueLen, ss.QueueCap))

		if ups := upcomingFires(ss, rs.Items, 5); len(ups) > 0 {
			bld.Blank()
			bld.RawLine(tgui.B("next fires").String())
			now := time.Now()
			for _, u := range ups {
				label := u.at.In(loc).Format("2006-01-02 15:04") + " (in " + durRel(u.at.Sub(now)) + ")"
				if u.repeating {
					label += " ↻"
				}
				bld.RawLine("• " + tgui.Esc(label).String() + " " + tgui.B(u.title).String() + " " + tgui.Code(u.short).String())
			}
		}
	} else {
		bld.KV("scheduler", "unavailable")
	}

	bld.Blank()
	if svc.Notifier != nil {
		state := "disabled"
		if svc.Notifier.Enabled() {
			state = "enabled"
		}
		queued, capacity := svc.Notifier.QueueDepth()
		bld.KV("notifier", fmt.Sprintf("%s, queue %d/%d", state, queued, capacity))
	} else {
		bld.KV("notifier", "unavailable")
	}
	if svc.Store != nil {
		bld.KV("audit", "on")
	} else {
		bld.KV("audit", "disabled")
	}

	msg := bld.Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

type upcoming struct {
	at        time.Time
	title     string
	short     string
	repeating bool
}

// upcomingFires joins scheduler entries back to reminders by the
// "reminder:<uuid>" naming convention and returns the next fires soonest
// first. Scheduler entries that do not belong to a reminder (maintenance
// jobs) are skipped.
func upcomingFires(ss router.Snapshot, items []reminder.Reminder, limit int) []upcoming {
	byID := make(map[string]reminder.Reminder, len(items))
	for _, r := range items {
		byID[r.ID.String()] = r
	}
	var out []upcoming
	for _, o := range ss.Once {
		id := strings.TrimPrefix(o.Name, "reminder:")
		if id == o.Name {
			continue
		}
		r, ok := byID[id]
		if !ok || o.At.IsZero() {
			continue
		}
		out = append(out, upcoming{at: o.At, title: r.Title, short: reminder.ShortID(r.ID)})
	}
	for _, s := range ss.Schedules {
		id := strings.TrimPrefix(s.Name, "reminder:")
		if id == s.Name {
			continue
		}
		r, ok := byID[id]
		if !ok || s.Next.IsZero() {
			continue
		}
		out = append(out, upcoming{at: s.Next, title: r.Title, short: reminder.ShortID(r.ID), repeating: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (b *Bot) cmdHealth(ctx context.Context, req *router.Request) error {
	svc := req.Services
	if svc == nil {
		return b.replyErr(ctx, req, "services not available")
	}

	// Usage:
	//   /health      -> overview
	//   /health sup  -> plus per-goroutine supervisor detail
	supDetail := false
	if len(req.Args) > 0 {
		if strings.EqualFold(req.Args[0], "sup") || strings.EqualFold(req.Args[0], "supervisor") || strings.EqualFold(req.Args[0], "detail") {
			supDetail = true
		}
	}
	if req.BoolFlags != nil {
		if req.BoolFlags["sup"] || req.BoolFlags["supervisor"] || req.BoolFlags["detail"] {
			supDetail = true
		}
	}

	up := time.Since(b.started)
	gos := runtime.NumGoroutine()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	extraSup := map[string]*router.Supervisor{}
	if svc.RuntimeSupervisors != nil {
		extraSup = svc.RuntimeSupervisors.Snapshot()
	}
	extraNames := make([]string, 0, len(extraSup))
	for name, sup := range extraSup {
		if sup == nil {
			continue
		}
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)

	// Plain text (no parse mode) so odd runtime strings never break rendering.
	var sb strings.Builder
	sb.Grow(2048)

	sb.WriteString(fmt.Sprintf("uptime:     %s\n", durRel(up)))
	if b.version != "" {
		sb.WriteString(fmt.Sprintf("version:    %s\n", b.version))
	}
	sb.WriteString(fmt.Sprintf("goroutines: %d\n", gos))
	sb.WriteString("\n")

	sb.WriteString("💾 mem\n")
	sb.WriteString(fmt.Sprintf("  Alloc:     %s\n", fmtBytes(m.Alloc)))
	sb.WriteString(fmt.Sprintf("  Sys:       %s\n", fmtBytes(m.Sys)))
	sb.WriteString(fmt.Sprintf("  HeapInuse: %s\n", fmtBytes(m.HeapInuse)))
	sb.WriteString(fmt.Sprintf("  NumGC:     %d\n", m.NumGC))
	sb.WriteString("\n")

	if svc.Reminders != nil {
		rs := svc.Reminders.Snapshot()
		repeating := 0
		for _, r := range rs.Items {
			if r.Repeating() {
				repeating++
			}
		}
		sb.WriteString("⏰ reminders\n")
		sb.WriteString(fmt.Sprintf("  count:     %d/%d\n", rs.Count, rs.Limit))
		sb.WriteString(fmt.Sprintf("  repeating: %d\n", repeating))
		sb.WriteString("\n")
	}

	if svc.Scheduler != nil {
		ss := svc.Scheduler.Snapshot()
		state := "disabled"
		if svc.Scheduler.Enabled() {
			state = "enabled"
		}
		sb.WriteString("⏱ scheduler\n")
		sb.WriteString(fmt.Sprintf("  state:     %s\n", state))
		sb.WriteString(fmt.Sprintf("  tz:        %s\n", ss.Timezone))
		sb.WriteString(fmt.Sprintf("  workers:   %d\n", ss.Workers))
		sb.WriteString(fmt.Sprintf("  queue:     %d/%d\n", ss.QueueLen, ss.QueueCap))
		sb.WriteString(fmt.Sprintf("  schedules: %d (+%d once)\n", len(ss.Schedules), len(ss.Once)))
		sb.WriteString("\n")
	}

	if svc.Notifier != nil {
		state := "disabled"
		if svc.Notifier.Enabled() {
			state = "enabled"
		}
		queued, capacity := svc.Notifier.QueueDepth()
		sb.WriteString("📣 notifier\n")
		sb.WriteString(fmt.Sprintf("  state:     %s\n", state))
		sb.WriteString(fmt.Sprintf("  queue:     %d/%d\n", queued, capacity))
		sb.WriteString("\n")
	}

	sb.WriteString("🧵 supervisor\n")
	if svc.AppSupervisor != nil {
		c := svc.AppSupervisor.Counters()
		sb.WriteString(fmt.Sprintf("  app: active=%d started=%d\n", c.Active, c.Started))
	} else {
		sb.WriteString("  app: n/a\n")
	}
	for _, name := range extraNames {
		c := extraSup[name].Counters()
		sb.WriteString(fmt.Sprintf("  %s: active=%d started=%d\n", name, c.Active, c.Started))
	}

	if supDetail {
		sb.WriteString("\n🧵 supervisor detail\n")
		if svc.AppSupervisor != nil {
			sb.WriteString("\n  app goroutines\n")
			writeSupDetails(&sb, svc.AppSupervisor.Snapshot(), 12)
		}
		for _, name := range extraNames {
			sb.WriteString("\n  " + name + " goroutines\n")
			writeSupDetails(&sb, extraSup[name].Snapshot(), 12)
		}
	}

	msg := tgui.New().
		ParseMode("").
		DisablePreview(true).
		Title("🩺", "health").
		Blank().
		RawLine(sb.String()).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func writeSupDetails(sb *strings.Builder, snap rtsup.SupervisorSnapshot, limit int) {
	if limit <= 0 {
		limit = 10
	}
	n := 0
	for _, g := range snap.Goroutines {
		// Hide the wrapper goroutines GoRestart runs under to avoid noise.
		if strings.HasSuffix(g.Name, ".restart") {
			continue
		}
		if g.Active == 0 && g.Started == 0 {
			continue
		}
		line := fmt.Sprintf("    - %s active=%d started=%d restarts=%d panics=%d", g.Name, g.Active, g.Started, g.Restarts, g.Panics)
		if g.LastErr != "" {
			when := ""
			if !g.LastErrAt.IsZero() {
				when = fmt.Sprintf(" (%s ago)", durRel(time.Since(g.LastErrAt)))
			}
			line += ", last_err=" + shorten(g.LastErr, 96) + when
		}
		if !g.LastStopAt.IsZero() {
			line += fmt.Sprintf(", last_stop=%s ago", durRel(time.Since(g.LastStopAt)))
		}
		sb.WriteString(line + "\n")
		n++
		if n >= limit {
			break
		}
	}
	if n == 0 {
		sb.WriteString("    (no data)\n")
	}
}

func (b *Bot) cmdAudit(ctx context.Context, req *router.Request) error {
	if req.Services == nil || req.Services.Store == nil {
		return b.replyErr(ctx, req, "storage is disabled, no audit trail")
	}
	limit := 10
	if len(req.Args) > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(req.Args[0])); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 50 {
		limit = 50
	}

	entries, err := req.Services.Store.RecentAudit(ctx, limit)
	if err != nil {
		return b.replyErr(ctx, req, "audit read failed: "+err.Error())
	}
	if len(entries) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, "audit trail is empty", nil)
		return err
	}

	loc := b.location(req)
	var sb strings.Builder
	for _, e := range entries {
		target := e.Target
		if target == "" {
			target = "-"
		}
		status := "ok"
		if !e.OK {
			status = "fail"
			if e.Error != "" {
				status += " " + shorten(e.Error, 60)
			}
		}
		sb.WriteString(fmt.Sprintf("%s [%s] %s %s %s\n",
			e.At.In(loc).Format("01-02 15:04"), e.Source, e.Action, target, status))
	}

	msg := tgui.New().
		Title("🧾", fmt.Sprintf("audit (last %d)", len(entries))).
		PreMulti(sb.String()).
		Build()
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}
