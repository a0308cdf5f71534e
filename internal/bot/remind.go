package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	"remindbot/pkg/tgui"
)

// Accepted --at layouts, tried in order. A time without a date anchors to
// today in the scheduler timezone; a target already in the past is kept as-is
// and fires on the next tick.
var whenLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"15:04",
}

func parseWhen(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty time")
	}
	for _, layout := range whenLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		if layout == "15:04" {
			now := time.Now().In(loc)
			t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q (want e.g. \"2026-08-24 09:30\", \"09:30\" or RFC3339)", raw)
}

// location resolves the timezone wall-clock targets are interpreted in.
func (b *Bot) location(req *router.Request) *time.Location {
	if req != nil && req.Config != nil {
		if tz := strings.TrimSpace(req.Config.Scheduler.Timezone); tz != "" {
			if loc, err := time.LoadLocation(tz); err == nil {
				return loc
			}
		}
	}
	return time.Local
}

func (b *Bot) replyErr(ctx context.Context, req *router.Request, text string) error {
	_, _ = req.Adapter.SendText(ctx, req.Chat, "⚠️ "+text, nil)
	return nil
}

func (b *Bot) cmdAdd(ctx context.Context, req *router.Request) error {
	if req.Services == nil || req.Services.Reminders == nil {
		return b.replyErr(ctx, req, "reminder service not available")
	}
	if len(req.Args) == 0 {
		msg := b.viewAddUsage()
		_, err := msg.Send(ctx, req.Adapter, req.Chat)
		return err
	}

	title := strings.TrimSpace(req.Args[0])
	message := strings.TrimSpace(strings.Join(req.Args[1:], " "))

	atRaw := strings.TrimSpace(req.Flags["at"])
	inRaw := strings.TrimSpace(req.Flags["in"])
	repeat := strings.TrimSpace(req.Flags["repeat"])

	set := 0
	for _, v := range []string{atRaw, inRaw, repeat} {
		if v != "" {
			set++
		}
	}
	if set == 0 {
		return b.replyErr(ctx, req, "when should it fire? set one of --at, --in or --repeat")
	}
	if set > 1 {
		return b.replyErr(ctx, req, "set exactly one of --at, --in or --repeat")
	}

	start := time.Now()
	var at time.Time
	switch {
	case atRaw != "":
		t, err := parseWhen(atRaw, b.location(req))
		if err != nil {
			return b.replyErr(ctx, req, "bad --at: "+err.Error())
		}
		at = t
	case inRaw != "":
		d, err := time.ParseDuration(inRaw)
		if err != nil || d <= 0 {
			return b.replyErr(ctx, req, "bad --in: want a positive duration like 45m or 2h30m")
		}
		at = time.Now().Add(d)
	default:
		// Validate the spec here so the user gets a targeted message instead
		// of a generic add failure.
		if _, err := router.ParseSchedule(repeat); err != nil {
			return b.replyErr(ctx, req, "bad --repeat: "+err.Error())
		}
	}

	r := reminder.Reminder{
		Title:   title,
		Message: message,
		At:      at,
		Repeat:  repeat,
		Channel: strings.ToLower(strings.TrimSpace(req.Flags["channel"])),
		EmailTo: strings.TrimSpace(req.Flags["to"]),
		Target:  req.Chat,
	}
	added, err := req.Services.Reminders.Add(ctx, r)

	target := title
	if err == nil {
		target = reminder.ShortID(added.ID)
	}
	b.audit(ctx, req, "reminder.add", target, err, time.Since(start), map[string]any{
		"title": title, "at": atRaw, "in": inRaw, "repeat": repeat, "channel": r.Channel,
	})
	if err != nil {
		return b.replyErr(ctx, req, "not added: "+err.Error())
	}

	msg := b.viewAdded(added, b.location(req))
	_, sendErr := msg.Send(ctx, req.Adapter, req.Chat)
	return sendErr
}

func (b *Bot) cmdDel(ctx context.Context, req *router.Request) error {
	if req.Services == nil || req.Services.Reminders == nil {
		return b.replyErr(ctx, req, "reminder service not available")
	}
	if len(req.Args) == 0 {
		// No id given: show the list, its 🗑 buttons start the same flow.
		msg := b.viewList(req, 0)
		_, err := msg.Send(ctx, req.Adapter, req.Chat)
		return err
	}
	id := strings.TrimSpace(req.Args[0])
	r, err := req.Services.Reminders.Get(id)
	if err != nil {
		return b.replyErr(ctx, req, lookupErrText(id, err))
	}
	msg := b.viewConfirmDelete(r, b.location(req))
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func lookupErrText(id string, err error) string {
	switch {
	case errors.Is(err, reminder.ErrAmbiguous):
		return fmt.Sprintf("%q matches several reminders, give a longer prefix", id)
	case errors.Is(err, reminder.ErrNotFound):
		return fmt.Sprintf("no reminder matches %q (see /remind list)", id)
	default:
		return err.Error()
	}
}

func (b *Bot) cmdTest(ctx context.Context, req *router.Request) error {
	if req.Services == nil || req.Services.Notifier == nil {
		return b.replyErr(ctx, req, "notifier is unavailable")
	}
	text := strings.TrimSpace(strings.Join(req.Args, " "))
	if text == "" {
		text = "test notification"
	}
	ch := strings.ToLower(strings.TrimSpace(req.Flags["channel"]))
	if ch == "" {
		ch = kit.ChannelTelegram
	}

	n := kit.Notification{
		Channel: ch,
		Target:  req.Chat,
		Text:    "🧪 " + text,
		// Repeated tests with the same text should all arrive, so don't let
		// the content-derived dedup key suppress them.
		DedupKey: "test:" + strconv.FormatInt(time.Now().UnixNano(), 36),
	}
	if ch == kit.ChannelEmail {
		n.Email = &kit.EmailMessage{
			To:      strings.TrimSpace(req.Flags["to"]),
			Subject: "remindbot test",
			Body:    text,
		}
	}
	if err := req.Services.Notifier.Notify(ctx, n); err != nil {
		return b.replyErr(ctx, req, "not queued: "+err.Error())
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, "queued on "+ch, nil)
	return nil
}

func (b *Bot) viewAddUsage() tgui.Message {
	return tgui.New().
		Title("⏰", "remind add").
		Line(`usage: /remind add "<title>" [message...]`).
		Bullets(
			`--at "2026-08-24 09:30"  fire at a wall-clock time`,
			"--in 45m  fire after a delay",
			`--repeat "@daily"  fire on a schedule (cron or @every 1h)`,
			"--channel email --to me@example.com  deliver by mail",
		).
		Build()
}
