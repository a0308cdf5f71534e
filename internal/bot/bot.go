// Package bot implements the Telegram command surface of remindbot: creating,
// listing and deleting reminders, plus the operational commands (status,
// health, audit) an owner needs to keep an eye on the process.
package bot

import (
	"context"
	"time"

	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// feature is the callback namespace for every inline button this package
// emits (callback data is "remind:<action>:<payload>").
const feature = "remind"

// Bot holds the state shared by command and callback handlers.
type Bot struct {
	log     logx.Logger
	tokens  *tgui.TokenStore
	started time.Time
	version string
}

func New(log logx.Logger, version string) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{
		log: log,
		// Delete flows keep the full reminder id behind a short token so the
		// callback data stays inside Telegram's 64-byte limit.
		tokens:  tgui.NewTokenStore().WithTTL(15 * time.Minute).WithMax(512),
		started: time.Now(),
		version: version,
	}
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "ping",
			Description: "check that the bot is alive",
			Usage:       "/ping",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				_, _ = req.Adapter.SendText(ctx, req.Chat, "pong", nil)
				return nil
			},
		},
		{
			Route:       "uptime",
			Aliases:     []string{"up"},
			Description: "how long the bot has been running",
			Usage:       "/uptime",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				_, _ = req.Adapter.SendText(ctx, req.Chat, "uptime: "+durRel(time.Since(b.started)), nil)
				return nil
			},
		},
		{
			Route:       "remind",
			Description: "show the reminder list",
			Usage:       "/remind  (see subcommands)",
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdList,
		},
		{
			Route:       "remind add",
			Aliases:     []string{"ra"},
			Description: "create a reminder",
			Usage:       `/remind add "<title>" [message...] --at "2026-08-24 09:30" | --in 45m | --repeat "@daily" [--channel email] [--to addr]`,
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdAdd,
		},
		{
			Route:       "remind list",
			Aliases:     []string{"rl"},
			Description: "list reminders",
			Usage:       "/remind list [--page N]",
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdList,
		},
		{
			Route:       "remind del",
			Aliases:     []string{"rd"},
			Description: "delete a reminder (asks to confirm)",
			Usage:       "/remind del <id>",
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdDel,
		},
		{
			Route:       "remind status",
			Description: "reminder/scheduler/notifier overview",
			Usage:       "/remind status",
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdStatus,
		},
		{
			Route:       "remind test",
			Description: "send a test notification",
			Usage:       "/remind test [text...] [--channel email] [--to addr]",
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdTest,
		},
		{
			Route:       "audit",
			Description: "recent audit trail entries",
			Usage:       "/audit [n]",
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdAudit,
		},
		{
			Route:       "health",
			Aliases:     []string{"status"},
			Description: "runtime health (memory, queues, supervisors)",
			Usage:       "/health [sup]",
			Access:      router.AccessOwnerOnly,
			Handle:      b.cmdHealth,
		},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Feature: feature, Action: "list", Description: "reminder list pagination", Handle: b.cbList},
		{Feature: feature, Action: "del", Description: "delete confirmation card", Handle: b.cbConfirmDel},
		{Feature: feature, Action: "rm", Description: "confirmed delete", Handle: b.cbDelete},
		{Feature: feature, Action: "close", Description: "dismiss the view", Handle: b.cbClose},
	}
}
