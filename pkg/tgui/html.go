package tgui

import "html"

// H marks a string as already escaped for Telegram HTML parse mode. Builders
// accept H where raw markup is intended and plain string where it is not.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text for HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// B renders bold text.
func B(s string) H { return "<b>" + Esc(s) + "</b>" }

// I renders italic text.
func I(s string) H { return "<i>" + Esc(s) + "</i>" }

// Code renders inline code.
func Code(s string) H { return "<code>" + Esc(s) + "</code>" }

// Pre renders a preformatted block. Telegram wants tags balanced within each
// message, so long content goes through Builder.PreMulti rather than one
// giant Pre.
func Pre(s string) H { return "<pre><code>" + Esc(s) + "</code></pre>" }
