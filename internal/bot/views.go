package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	"remindbot/pkg/tgui"
)

const listPageSize = 8

func (b *Bot) cmdList(ctx context.Context, req *router.Request) error {
	if req.Services == nil || req.Services.Reminders == nil {
		return b.replyErr(ctx, req, "reminder service not available")
	}
	page := 0
	if v := strings.TrimSpace(req.Flags["page"]); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n - 1
		}
	}
	msg := b.viewList(req, page)
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

// viewList renders one page of the reminder list, newest last, with a 🗑
// button per item and prev/next paging.
func (b *Bot) viewList(req *router.Request, page int) tgui.Message {
	snap := req.Services.Reminders.Snapshot()
	items := snap.Items

	bld := tgui.New().Title("⏰", fmt.Sprintf("Reminders (%d/%d)", snap.Count, snap.Limit))

	if len(items) == 0 {
		bld.Line("nothing scheduled")
		bld.RawLine(tgui.I(`add one: /remind add "pay rent" --at "2026-09-01 09:00"`).String())
		kb := tgui.NewInline().Row(
			tgui.Btn("🔄 Refresh", tgui.Data(feature, "list", "0")),
			tgui.Btn("✖️ Close", tgui.Data(feature, "close", "")),
		)
		bld.Inline(kb)
		return bld.Build()
	}

	// A stale pagination button can point past the end after deletions.
	if maxPage := (len(items) - 1) / listPageSize; page > maxPage {
		page = maxPage
	}
	sub, page, size, _, _, hasPrev, hasNext := tgui.PaginateSlice(items, page, listPageSize)
	now := time.Now()
	loc := b.location(req)

	for _, r := range sub {
		bld.RawLine("• " + tgui.Code(reminder.ShortID(r.ID)).String() + " " + tgui.B(tgui.TruncRunes(r.Title, 48)).String())
		bld.RawLine("   ↳ " + tgui.Esc(whenLabel(r, now, loc)).String())
	}
	bld.RawLine(tgui.I(tgui.PageLabel(page, size, len(items))).String())

	btns := make([]tele.Btn, 0, len(sub))
	for _, r := range sub {
		tok := b.tokens.PutString(r.ID.String())
		btns = append(btns, tgui.Btn("🗑 "+reminder.ShortID(r.ID), tgui.Data(feature, "del", tok)))
	}
	kb := tgui.NewInline().Grid(2, btns...)
	if hasPrev || hasNext {
		row := make([]tele.Btn, 0, 2)
		if hasPrev {
			row = append(row, tgui.Btn("⬅️ Prev", tgui.Data(feature, "list", strconv.Itoa(page-1))))
		}
		if hasNext {
			row = append(row, tgui.Btn("Next ➡️", tgui.Data(feature, "list", strconv.Itoa(page+1))))
		}
		kb.Row(row...)
	}
	kb.Row(
		tgui.Btn("🔄 Refresh", tgui.Data(feature, "list", strconv.Itoa(page))),
		tgui.Btn("✖️ Close", tgui.Data(feature, "close", "")),
	)
	bld.Inline(kb)
	return bld.Build()
}

func (b *Bot) viewAdded(r reminder.Reminder, loc *time.Location) tgui.Message {
	bld := tgui.New().Title("✅", "Reminder added").
		KV("id", reminder.ShortID(r.ID)).
		KV("title", r.Title)
	if r.Message != "" {
		bld.KV("message", shorten(r.Message, 120))
	}
	if r.Repeating() {
		bld.KV("repeat", r.Repeat)
	} else {
		bld.KV("at", r.At.In(loc).Format("2006-01-02 15:04:05 MST"))
	}
	if r.Channel == kit.ChannelEmail {
		to := r.EmailTo
		if to == "" {
			to = "(default recipient)"
		}
		bld.KV("email", to)
	}
	kb := tgui.NewInline().Row(
		tgui.Btn("📋 List", tgui.Data(feature, "list", "0")),
		tgui.Btn("✖️ Close", tgui.Data(feature, "close", "")),
	)
	bld.Inline(kb)
	return bld.Build()
}

func (b *Bot) viewConfirmDelete(r reminder.Reminder, loc *time.Location) tgui.Message {
	tok := b.tokens.PutString(r.ID.String())
	bld := tgui.New().Title("🗑", "Delete reminder?")
	bld.Pre(fmt.Sprintf("id:    %s\ntitle: %s\nwhen:  %s", reminder.ShortID(r.ID), r.Title, whenLabel(r, time.Now(), loc)))
	bld.Inline(tgui.ConfirmInline(
		tgui.Btn("✅ Delete", tgui.Data(feature, "rm", tok)),
		tgui.Btn("↩️ Keep", tgui.Data(feature, "list", "0")),
	))
	return bld.Build()
}

func (b *Bot) viewDeleted(r reminder.Reminder) tgui.Message {
	bld := tgui.New().Title("🗑", "Deleted")
	bld.Line(reminder.ShortID(r.ID) + " " + r.Title)
	kb := tgui.NewInline().Row(
		tgui.Btn("📋 List", tgui.Data(feature, "list", "0")),
		tgui.Btn("✖️ Close", tgui.Data(feature, "close", "")),
	)
	bld.Inline(kb)
	return bld.Build()
}

func (b *Bot) viewGone(err error) tgui.Message {
	text := "that reminder is already gone"
	if errors.Is(err, reminder.ErrAmbiguous) {
		text = "the id is no longer unique, pick it from the list"
	}
	bld := tgui.New().Title("⚠️", "Not found").Line(text)
	kb := tgui.NewInline().Row(
		tgui.Btn("📋 List", tgui.Data(feature, "list", "0")),
		tgui.Btn("✖️ Close", tgui.Data(feature, "close", "")),
	)
	bld.Inline(kb)
	return bld.Build()
}

func (b *Bot) viewExpired() tgui.Message {
	bld := tgui.New().Title("⌛", "Expired")
	bld.Line("this button expired, run /remind list again")
	kb := tgui.NewInline().Row(
		tgui.Btn("📋 List", tgui.Data(feature, "list", "0")),
		tgui.Btn("✖️ Close", tgui.Data(feature, "close", "")),
	)
	bld.Inline(kb)
	return bld.Build()
}

func (b *Bot) viewClosed() tgui.Message {
	bld := tgui.New().Title("✖️", "Closed")
	bld.RawLine(tgui.I("View dismissed. /remind list brings it back.").String())
	return bld.Build()
}
