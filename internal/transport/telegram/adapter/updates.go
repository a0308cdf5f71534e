package adapter

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// Incoming telebot events, normalized to kit updates.

func (a *Adapter) bindHandlers() {
	a.bot.Handle(tele.OnText, a.handleText)
	a.bot.Handle(tele.OnCallback, a.handleCallback)
}

func (a *Adapter) handleText(c tele.Context) error {
	m := c.Message()
	if m == nil {
		return nil
	}
	a.emit(kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsGroup:      isGroupChat(m.Chat),
		},
	})
	return nil
}

func (a *Adapter) handleCallback(c tele.Context) error {
	cb := c.Callback()
	m := c.Message()
	if cb == nil || m == nil {
		return nil
	}
	a.emit(kit.Update{
		Kind: kit.UpdateCallback,
		Callback: &kit.Callback{
			ID:        cb.ID,
			ChatID:    m.Chat.ID,
			ThreadID:  m.ThreadID,
			FromID:    cb.Sender.ID,
			MessageID: m.ID,
			Data:      cb.Data,
		},
	})
	return nil
}

func isGroupChat(c *tele.Chat) bool {
	return c.Type == tele.ChatGroup || c.Type == tele.ChatSuperGroup
}

// emit hands the update to the current consumer. Updates are dropped, not
// queued, when the consumer falls behind; the drop reporter logs totals.
func (a *Adapter) emit(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}
