package adapter

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

const maxMessageRunes = 4000

// splitTelegramText splits text into chunks that fit Telegram's message size.
// Cuts prefer newline boundaries; in HTML parse mode a cut backs out of a tag
// it would otherwise land inside (best-effort).
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = maxMessageRunes
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")

	chunks := make([]string, 0, (len(rs)+limit-1)/limit)
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			if nl := breakAtNewline(rs, start, end, limit/3); nl != -1 {
				end = nl
			}
		}
		if html && end < len(rs) {
			end = retreatFromOpenTag(rs, start, end)
		}
		chunks = append(chunks, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return chunks
}

// breakAtNewline reports the position just past the rightmost newline in
// rs[start:end] that still leaves a chunk of at least minRunes, or -1.
func breakAtNewline(rs []rune, start, end, minRunes int) int {
	for i := end - 1; i > start; i-- {
		if rs[i] != '\n' {
			continue
		}
		if i-start >= minRunes {
			return i + 1
		}
	}
	return -1
}

// retreatFromOpenTag moves the cut to just before an HTML tag left dangling
// in rs[start:end]. A '<' with no '>' after it means the window ends mid-tag;
// the tag then opens the next chunk instead.
func retreatFromOpenTag(rs []rune, start, end int) int {
	opened, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			opened = i
		case '>':
			closed = i
		}
	}
	if opened > closed && opened > start+1 {
		return opened
	}
	return end
}

// ctxErr is a non-blocking poll of ctx; a nil ctx counts as live.
func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func sendOptions(opt *kit.SendOptions, threadID int) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
}

func replyMarkup(opt *kit.SendOptions) *tele.ReplyMarkup {
	rm, _ := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	return rm
}

// SendText delivers text to a chat, splitting it across several messages when
// it exceeds the Telegram limit. The returned ref points at the first message
// sent; reply markup attaches to that one only.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, maxMessageRunes, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctxErr(ctx); err != nil {
			return first, err
		}
		so := sendOptions(opt, to.ThreadID)
		if i == 0 {
			so.ReplyMarkup = replyMarkup(opt)
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// EditText rewrites a previously sent message in place. Text that no longer
// fits the edited message goes out as fresh sends after it.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, maxMessageRunes, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	msg := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := sendOptions(opt, 0)
	so.ReplyMarkup = replyMarkup(opt)
	if _, err := a.bot.Edit(msg, chunks[0], so); err != nil {
		return err
	}

	chat := &tele.Chat{ID: ref.ChatID}
	for _, chunk := range chunks[1:] {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, sendOptions(opt, ref.ThreadID)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}
