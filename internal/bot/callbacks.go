package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// editOrSend updates the message the button lives on in place. Falls back to
// a fresh message when the edit fails (message too old, deleted, etc).
func (b *Bot) editOrSend(ctx context.Context, req *router.Request, msg tgui.Message) error {
	cb := req.Update.Callback
	if cb != nil && cb.MessageID != 0 {
		ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
		err := msg.Edit(ctx, req.Adapter, ref, req.Chat)
		if err == nil {
			return nil
		}
		// Pressing Refresh on an unchanged list is not an error.
		if strings.Contains(strings.ToLower(err.Error()), "not modified") {
			return nil
		}
		b.log.Debug("edit failed, sending new message", logx.Err(err), logx.Int("message_id", cb.MessageID))
	}
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cbList(ctx context.Context, req *router.Request, payload string) error {
	page := 0
	if n, err := strconv.Atoi(strings.TrimSpace(payload)); err == nil && n > 0 {
		page = n
	}
	return b.editOrSend(ctx, req, b.viewList(req, page))
}

func (b *Bot) cbConfirmDel(ctx context.Context, req *router.Request, payload string) error {
	id, ok := b.tokens.GetString(payload)
	if !ok {
		return b.editOrSend(ctx, req, b.viewExpired())
	}
	r, err := req.Services.Reminders.Get(id)
	if err != nil {
		return b.editOrSend(ctx, req, b.viewGone(err))
	}
	return b.editOrSend(ctx, req, b.viewConfirmDelete(r, b.location(req)))
}

func (b *Bot) cbDelete(ctx context.Context, req *router.Request, payload string) error {
	id, ok := b.tokens.GetString(payload)
	if !ok {
		return b.editOrSend(ctx, req, b.viewExpired())
	}
	start := time.Now()
	removed, err := req.Services.Reminders.Remove(ctx, id)
	if err != nil {
		b.audit(ctx, req, "reminder.del", id, err, time.Since(start), nil)
		return b.editOrSend(ctx, req, b.viewGone(err))
	}
	b.audit(ctx, req, "reminder.del", reminder.ShortID(removed.ID), nil, time.Since(start), map[string]any{
		"id":    removed.ID.String(),
		"title": removed.Title,
	})
	return b.editOrSend(ctx, req, b.viewDeleted(removed))
}

func (b *Bot) cbClose(ctx context.Context, req *router.Request, payload string) error {
	return b.editOrSend(ctx, req, b.viewClosed())
}
