package router

import (
	"sort"
	"strings"
	"unicode"

	kit "remindbot/internal/transport"
)

// Telegram limits for bot commands: name charset [a-z0-9_], max 32 chars,
// description max 256 chars, at most 100 menu entries.
const (
	maxCommandLen     = 32
	maxDescriptionLen = 256
	maxMenuEntries    = 100
)

// sanitizeTelegramCommand maps an arbitrary route or alias onto the
// Telegram command charset. Separators collapse to single underscores and
// anything unrepresentable is dropped.
func sanitizeTelegramCommand(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '-', r == '/', unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, strings.ToLower(strings.TrimSpace(s)))

	var b strings.Builder
	b.Grow(len(mapped))
	prev := byte('_') // swallows leading underscores
	for i := 0; i < len(mapped); i++ {
		c := mapped[i]
		if c == '_' && prev == '_' {
			continue
		}
		b.WriteByte(c)
		prev = c
	}

	out := clipCommand(strings.TrimRight(b.String(), "_"))
	if out == "" {
		return ""
	}
	// Telegram clients expect commands to start with a letter.
	if out[0] >= '0' && out[0] <= '9' {
		out = clipCommand("cmd_" + out)
	}
	return out
}

func clipCommand(s string) string {
	if len(s) > maxCommandLen {
		s = strings.TrimRight(s[:maxCommandLen], "_")
	}
	return s
}

// telegramCommandNameFromRoute derives the menu name of a route, e.g.
// ["remind","add"] -> "remind_add".
func telegramCommandNameFromRoute(route []string) (string, bool) {
	out := sanitizeTelegramCommand(strings.Join(route, "_"))
	return out, out != ""
}

type menuItem struct {
	name string
	desc string
	rank int // 0 = top-level, 1 = leaf shortcut
}

// menuCommands assembles the bot menu: top-level commands and groups
// first, then multi-token leaf shortcuts such as /remind_add.
func menuCommands(tree *routeNode, cmds []Command) []kit.BotCommand {
	best := map[string]menuItem{}
	keep := func(it menuItem, ok bool) {
		if !ok {
			return
		}
		cur, seen := best[it.name]
		if !seen || it.rank < cur.rank || (it.rank == cur.rank && len(it.desc) < len(cur.desc)) {
			best[it.name] = it
		}
	}

	for _, it := range topLevelMenuItems(tree) {
		keep(normalizeMenuItem(it))
	}
	for _, it := range leafMenuItems(cmds) {
		keep(normalizeMenuItem(it))
	}

	items := make([]menuItem, 0, len(best))
	for _, it := range best {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		return items[i].name < items[j].name
	})

	n := min(len(items), maxMenuEntries)
	out := make([]kit.BotCommand, 0, n)
	for _, it := range items[:n] {
		out = append(out, kit.BotCommand{Command: it.name, Description: it.desc})
	}
	return out
}

func topLevelMenuItems(tree *routeNode) []menuItem {
	if tree == nil {
		return nil
	}
	items := make([]menuItem, 0, len(tree.sub))
	for _, name := range tree.names() {
		n, _ := tree.get(name)
		if n == nil {
			continue
		}
		desc := nodeSummary(n)
		if subtreeOwnerOnly(n) {
			desc = "🔒 " + desc
		}
		items = append(items, menuItem{name: name, desc: desc})
	}
	return items
}

func leafMenuItems(cmds []Command) []menuItem {
	var items []menuItem
	for _, c := range cmds {
		route := splitRoute(c.Route)
		// single-token routes are already in the top-level list
		if len(route) < 2 {
			continue
		}
		name, ok := telegramCommandNameFromRoute(route)
		if !ok {
			continue
		}
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = strings.Join(route, " ")
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		items = append(items, menuItem{name: name, desc: desc, rank: 1})
	}
	return items
}

func normalizeMenuItem(it menuItem) (menuItem, bool) {
	it.name = sanitizeTelegramCommand(it.name)
	if it.name == "" {
		return menuItem{}, false
	}
	desc := strings.ReplaceAll(strings.TrimSpace(it.desc), "\n", " ")
	if desc == "" {
		desc = it.name
	}
	if len(desc) > maxDescriptionLen {
		desc = desc[:maxDescriptionLen]
	}
	it.desc = desc
	return it, true
}
