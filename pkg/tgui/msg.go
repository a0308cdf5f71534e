package tgui

import (
	"context"
	"strings"

	kit "remindbot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// Message is a rendered UI unit: the text of the first Telegram message,
// its send options, and any follow-up messages. Handlers build one Message
// and hand it to Send or Edit instead of juggling ParseMode and markup at
// every call site.
type Message struct {
	Text string
	Opt  *kit.SendOptions

	// More holds follow-up messages (e.g. overflow chunks from PreMulti).
	// Each element is a complete, valid message on its own.
	More []string
}

func (m Message) options() *kit.SendOptions {
	if m.Opt != nil {
		return m.Opt
	}
	return &kit.SendOptions{}
}

// Send delivers the message, then any follow-ups. Markup rides only on the
// first message.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	opt := m.options()
	ref, err := ad.SendText(ctx, to, m.Text, opt)
	if err != nil {
		return ref, err
	}
	return ref, m.sendMore(ctx, ad, to, opt)
}

// Edit rewrites the message at ref in place. Follow-ups cannot be edited
// retroactively, so they go out as fresh messages to the same chat.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef, to kit.ChatTarget) error {
	opt := m.options()
	if err := ad.EditText(ctx, ref, m.Text, opt); err != nil {
		return err
	}
	return m.sendMore(ctx, ad, to, opt)
}

func (m Message) sendMore(ctx context.Context, ad kit.Adapter, to kit.ChatTarget, opt *kit.SendOptions) error {
	if len(m.More) == 0 {
		return nil
	}
	followOpt := *opt
	followOpt.ReplyMarkupAdapter = nil
	for _, part := range m.More {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if _, err := ad.SendText(ctx, to, part, &followOpt); err != nil {
			return err
		}
	}
	return nil
}

// Builder assembles a Message line by line. The zero configuration is
// ParseMode=HTML with link previews off; plain-text output is a ParseMode("")
// call away.
type Builder struct {
	parseMode      string
	disablePreview bool
	keyboard       *tele.ReplyMarkup
	lines          []string
	more           []string
}

func New() *Builder {
	return &Builder{parseMode: "HTML", disablePreview: true}
}

func (b *Builder) html() bool { return strings.EqualFold(b.parseMode, "HTML") }

func (b *Builder) push(s string) *Builder {
	b.lines = append(b.lines, s)
	return b
}

// ParseMode overrides the Telegram parse mode ("HTML", "Markdown", or empty
// for plain text).
func (b *Builder) ParseMode(mode string) *Builder {
	b.parseMode = strings.TrimSpace(mode)
	return b
}

// DisablePreview toggles link previews for the built message.
func (b *Builder) DisablePreview(v bool) *Builder {
	b.disablePreview = v
	return b
}

// Inline attaches an inline keyboard; nil detaches.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil {
		b.keyboard = nil
	} else {
		b.keyboard = kb.Markup()
	}
	return b
}

// Title adds a bold headline, optionally led by an emoji.
func (b *Builder) Title(emoji, title string) *Builder {
	emoji = strings.TrimSpace(emoji)
	title = strings.TrimSpace(title)
	if title == "" {
		return b
	}
	line := title
	if b.html() {
		line = B(title).String()
		if emoji != "" {
			line = Esc(emoji).String() + " " + line
		}
	} else if emoji != "" {
		line = emoji + " " + line
	}
	return b.push(line)
}

// Section adds a bold section header.
func (b *Builder) Section(title string) *Builder {
	title = strings.TrimSpace(title)
	if title == "" {
		return b
	}
	if b.html() {
		return b.push(B(title).String())
	}
	return b.push(title)
}

// Line adds one line of text, escaped under HTML parse mode.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		return b.push("")
	}
	if b.html() {
		return b.push(Esc(s).String())
	}
	return b.push(s)
}

// RawLine adds a line without escaping. The caller vouches for the markup.
func (b *Builder) RawLine(s string) *Builder { return b.push(s) }

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.push("") }

// Bullets adds one bullet line per non-empty item.
func (b *Builder) Bullets(items ...string) *Builder {
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			b.Line("• " + item)
		}
	}
	return b
}

// KV adds a "• key: value" row with the key in bold under HTML.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return b
	}
	if b.html() {
		return b.push("• " + B(key).String() + ": " + Esc(value).String())
	}
	if value == "" {
		return b.push("• " + key)
	}
	return b.push("• " + key + ": " + value)
}

// Code adds an inline code line (plain text outside HTML mode).
func (b *Builder) Code(s string) *Builder {
	s = strings.TrimSpace(s)
	if s == "" {
		return b
	}
	if b.html() {
		return b.push(Code(s).String())
	}
	return b.push(s)
}

// Pre adds one preformatted block. Content longer than a single Telegram
// message belongs in PreMulti.
func (b *Builder) Pre(code string) *Builder {
	code = strings.TrimRight(code, "\n")
	if code == "" {
		return b
	}
	if b.html() {
		return b.push(Pre(code).String())
	}
	return b.push(code)
}

// PreMulti splits long preformatted content into several messages, each
// wrapped in its own <pre><code> block so every chunk is valid HTML on its
// own. The first chunk joins the current message; the rest become follow-ups.
func (b *Builder) PreMulti(code string, chunkLimit ...int) *Builder {
	code = strings.TrimRight(code, "\n")
	if code == "" {
		return b
	}
	if !b.html() {
		return b.push(code)
	}

	limit := 3500
	if len(chunkLimit) > 0 && chunkLimit[0] > 0 {
		limit = chunkLimit[0]
	}
	// Budget is in runes of content, minus the wrapper tags.
	budget := limit - len("<pre><code></code></pre>")
	if budget < 128 {
		budget = 128
	}

	for i, chunk := range packLines(code, budget) {
		block := Pre(chunk).String()
		if i == 0 {
			b.push(block)
		} else {
			b.more = append(b.more, block)
		}
	}
	return b
}

// packLines greedily packs newline-separated content into chunks of at most
// budget runes each. A single line longer than the budget is hard-split on
// rune boundaries.
func packLines(content string, budget int) []string {
	var (
		chunks []string
		cur    []string
		used   int
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur = cur[:0]
			used = 0
		}
	}

	for _, line := range strings.Split(content, "\n") {
		for {
			n := len([]rune(line))
			cost := n
			if len(cur) > 0 {
				cost++ // joining newline
			}
			if used+cost <= budget {
				cur = append(cur, line)
				used += cost
				break
			}
			if len(cur) > 0 {
				flush()
				continue
			}
			// Oversized line on an empty chunk: hard split.
			rs := []rune(line)
			chunks = append(chunks, string(rs[:budget]))
			line = string(rs[budget:])
		}
	}
	flush()
	return chunks
}

// Build renders the accumulated lines into a Message.
func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	opt := &kit.SendOptions{ParseMode: b.parseMode, DisablePreview: b.disablePreview}
	if b.keyboard != nil {
		opt.ReplyMarkupAdapter = b.keyboard
	}
	return Message{Text: text, Opt: opt, More: append([]string(nil), b.more...)}
}
