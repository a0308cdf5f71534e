package router

import (
	"html"
	"sort"
	"strings"
)

const unknownCommandHelp = "❓ <b>Unknown command</b>\nType <code>/help</code> to see the command list."

// helpText renders HTML help for a command path. An empty path lists the
// top level; the output is safe for ParseMode="HTML".
func (m *CommandManager) helpText(path []string) string {
	g := m.snapshotRegistry()
	if len(path) == 0 {
		return renderTopHelp(g.tree)
	}

	cur := g.tree
	full := make([]string, 0, len(path))
	for _, p := range path {
		n, ok := cur.get(p)
		if !ok {
			// aliases resolve in /help too
			if leaf, ok2 := g.alias[p]; ok2 && leaf != nil && leaf.run != nil {
				cur = leaf
				full = splitRoute(leaf.run.Route)
				break
			}
			return unknownCommandHelp
		}
		cur = n
		full = append(full, p)
	}
	return renderNodeHelp(cur, full)
}

func renderTopHelp(tree *routeNode) string {
	var b strings.Builder
	b.WriteString("📚 <b>Commands</b>\n")
	b.WriteString("Type <code>/help &lt;cmd&gt;</code> for details.\n")

	names := tree.names()
	row := func(name string, n *routeNode, lock bool) {
		if lock {
			b.WriteString("• 🔒 ")
		} else {
			b.WriteString("• ")
		}
		b.WriteString("<code>/" + html.EscapeString(name) + "</code>")
		if d := nodeSummary(n); d != "" {
			b.WriteString(" — " + html.EscapeString(d))
		}
		b.WriteByte('\n')
	}
	// public commands first, owner-only grouped below
	for _, name := range names {
		if n, _ := tree.get(name); n != nil && !subtreeOwnerOnly(n) {
			row(name, n, false)
		}
	}
	for _, name := range names {
		if n, _ := tree.get(name); n != nil && subtreeOwnerOnly(n) {
			row(name, n, true)
		}
	}

	b.WriteString("Tip: type <code>/</code> in Telegram and start typing to see suggestions (autocomplete).")
	return b.String()
}

func renderNodeHelp(cur *routeNode, full []string) string {
	var b strings.Builder
	b.WriteString("📚 <b>Help</b> <code>" + html.EscapeString("/"+strings.Join(full, " ")) + "</code>\n")

	switch {
	case cur != nil && cur.run != nil:
		c := cur.run
		if d := strings.TrimSpace(c.Description); d != "" {
			b.WriteString(html.EscapeString(d) + "\n")
		}
		if c.Access == AccessOwnerOnly {
			b.WriteString("🔒 <i>Owner only</i>\n")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			b.WriteString("<b>Usage</b>\n<code>" + html.EscapeString(u) + "</code>\n")
		}
		if short := commandShortcuts(*c); len(short) > 0 {
			b.WriteString("<b>Shortcuts</b>\n")
			for _, s := range short {
				b.WriteString("• <code>/" + html.EscapeString(s) + "</code>\n")
			}
		}
	default:
		b.WriteString("Command group (has subcommands).\n")
		if subtreeOwnerOnly(cur) {
			b.WriteString("🔒 <i>Owner only</i>\n")
		}
	}

	if cur != nil && len(cur.sub) > 0 {
		b.WriteString("<b>Subcommands</b>\n")
		for _, name := range cur.names() {
			n, _ := cur.get(name)
			if n == nil {
				continue
			}
			route := "/" + strings.Join(append(append([]string(nil), full...), name), " ")
			if subtreeOwnerOnly(n) {
				b.WriteString("• 🔒 ")
			} else {
				b.WriteString("• ")
			}
			b.WriteString("<code>" + html.EscapeString(route) + "</code>")
			if d := nodeSummary(n); d != "" {
				b.WriteString(" — " + html.EscapeString(d))
			}
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// nodeSummary is the one-line description shown in lists: the command's
// own description, or a subcommand hint for container nodes.
func nodeSummary(n *routeNode) string {
	if n == nil {
		return ""
	}
	if n.run != nil {
		if d := strings.TrimSpace(n.run.Description); d != "" {
			return d
		}
	}
	if len(n.sub) == 0 {
		return ""
	}
	kids := n.names()
	shown := kids[:min(3, len(kids))]
	hint := strings.Join(shown, ", ")
	if len(kids) > len(shown) {
		hint += ", …"
	}
	return "subcommands: " + hint
}

// subtreeOwnerOnly decides whether a tree entry gets the lock marker. A
// command node answers for itself; a container counts as owner-only when
// no descendant is open to everyone.
func subtreeOwnerOnly(n *routeNode) bool {
	if n == nil {
		return false
	}
	if n.run != nil {
		return n.run.Access == AccessOwnerOnly
	}
	return !subtreeHasPublic(n)
}

func subtreeHasPublic(n *routeNode) bool {
	if n == nil {
		return false
	}
	if n.run != nil && n.run.Access == AccessEveryone {
		return true
	}
	for _, ch := range n.sub {
		if subtreeHasPublic(ch) {
			return true
		}
	}
	return false
}

// commandShortcuts lists the root-level spellings of a command: its
// Telegram menu name plus explicit aliases and their sanitized variants.
func commandShortcuts(c Command) []string {
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" {
			seen[s] = true
		}
	}
	if menu, ok := telegramCommandNameFromRoute(splitRoute(c.Route)); ok {
		add(menu)
	}
	for _, a := range c.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(a, " ") {
			continue
		}
		add(a)
		add(sanitizeTelegramCommand(a))
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
