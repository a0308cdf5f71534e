package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline collects rows of callback buttons and renders them to a telebot
// ReplyMarkup on demand.
type Inline struct {
	rows []tele.Row
}

func NewInline() *Inline { return &Inline{} }

// Row appends one row of buttons.
func (i *Inline) Row(btns ...tele.Btn) *Inline {
	if len(btns) > 0 {
		i.rows = append(i.rows, tele.Row(btns))
	}
	return i
}

// Grid appends btns laid out cols per row.
func (i *Inline) Grid(cols int, btns ...tele.Btn) *Inline {
	if cols <= 0 {
		cols = 1
	}
	for len(btns) > cols {
		i.Row(btns[:cols]...)
		btns = btns[cols:]
	}
	return i.Row(btns...)
}

// Markup materializes the keyboard.
func (i *Inline) Markup() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rm.Inline(i.rows...)
	return rm
}

// ConfirmInline is the two-button yes/no row used by destructive flows.
func ConfirmInline(yes, no tele.Btn) *Inline {
	return NewInline().Row(yes, no)
}

// Btn makes a callback button. data goes out verbatim; build it with Data so
// the "feature:action:payload" shape stays parseable.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}
