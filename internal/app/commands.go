package app

import (
	"remindbot/internal/bot"
	logx "remindbot/pkg/logx"
)

// registerCommands installs the built-in command surface. Called from Start
// after the app supervisor exists, so the Telegram menu push runs supervised.
func (a *App) registerCommands() {
	b := bot.New(a.log.With(logx.String("comp", "bot")), a.version)
	a.cmdm.SetRegistry(b.Commands(), b.Callbacks())
}
