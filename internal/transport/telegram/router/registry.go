package router

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Access controls who may run a command.
type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Command is one registered bot command. Route is a space-separated path,
// so "remind add" is the add subcommand of /remind.
type Command struct {
	Route       string
	Aliases     []string // root-level shortcuts, e.g. ["remind_add", "ra"]
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess controls who can press an inline button. The zero value
// is owner-only; operational actions in groups should stay that way.
type CallbackAccess int

const (
	CallbackAccessOwnerOnly CallbackAccess = iota
	CallbackAccessEveryone
)

// CallbackRoute handles callback data of the form "feature:action:payload".
type CallbackRoute struct {
	Feature     string
	Action      string
	Description string
	Access      CallbackAccess
	Timeout     time.Duration
	Handle      CallbackHandlerFunc
}

// routeNode is one node of the command tree. run is nil for pure container
// nodes ("/remind" when only "remind add" and "remind list" exist).
type routeNode struct {
	run *Command
	sub map[string]*routeNode
}

func (n *routeNode) insert(path []string, c Command) *routeNode {
	cur := n
	for _, tok := range path {
		child := cur.sub[tok]
		if child == nil {
			child = &routeNode{sub: map[string]*routeNode{}}
			cur.sub[tok] = child
		}
		cur = child
	}
	cur.run = &c
	return cur
}

func (n *routeNode) get(name string) (*routeNode, bool) {
	child, ok := n.sub[name]
	return child, ok
}

func (n *routeNode) names() []string {
	out := make([]string, 0, len(n.sub))
	for name := range n.sub {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func splitRoute(route string) []string {
	fs := strings.Fields(route)
	if len(fs) == 0 {
		return nil
	}
	return fs
}

// registry is an immutable snapshot of the routable surface. SetRegistry
// builds a fresh one and swaps it in, so readers never observe a
// half-built tree during hot reload.
type registry struct {
	tree      *routeNode
	alias     map[string]*routeNode // root-level shortcut -> leaf
	callbacks map[string]map[string]CallbackRoute
}

func newRegistry() *registry {
	return &registry{
		tree:      &routeNode{sub: map[string]*routeNode{}},
		alias:     map[string]*routeNode{},
		callbacks: map[string]map[string]CallbackRoute{},
	}
}

// buildRegistry indexes commands and callbacks, returning the registry and
// the commands that actually made it in (for the menu publisher).
func buildRegistry(cmds []Command, cbs []CallbackRoute) (*registry, []Command) {
	g := newRegistry()
	kept := make([]Command, 0, len(cmds))

	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		leaf := g.tree.insert(route, c)
		kept = append(kept, c)
		g.autoAlias(route, leaf)
		g.explicitAliases(c.Aliases, leaf)
	}

	for _, r := range cbs {
		feature := strings.TrimSpace(r.Feature)
		action := strings.TrimSpace(r.Action)
		if feature == "" || action == "" || r.Handle == nil {
			continue
		}
		if g.callbacks[feature] == nil {
			g.callbacks[feature] = map[string]CallbackRoute{}
		}
		g.callbacks[feature][action] = r
	}
	return g, kept
}

// autoAlias registers the Telegram-menu name of a route ("remind add" ->
// "remind_add") as a root-level shortcut. The canonical single-token name
// itself is skipped: aliasing "remind" straight to its leaf would
// short-circuit "/remind add" before tree traversal sees the subcommand.
func (g *registry) autoAlias(route []string, leaf *routeNode) {
	menu, ok := telegramCommandNameFromRoute(route)
	if !ok {
		return
	}
	if len(route) == 1 && menu == route[0] {
		return
	}
	if _, exists := g.alias[menu]; !exists {
		g.alias[menu] = leaf
	}
}

func (g *registry) explicitAliases(aliases []string, leaf *routeNode) {
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(a, " ") {
			continue
		}
		g.alias[a] = leaf
		// Telegram-safe variant, e.g. "remind-add" -> "remind_add".
		if sa := sanitizeTelegramCommand(a); sa != "" {
			if _, exists := g.alias[sa]; !exists {
				g.alias[sa] = leaf
			}
		}
	}
}

func (g *registry) callback(feature, action string) (CallbackRoute, bool) {
	r, ok := g.callbacks[feature][action]
	return r, ok
}

// resolution is the outcome of routing one message; cmd is nil when the
// path landed on a container node.
type resolution struct {
	cmd  *Command
	path []string
	rest []string
}

// resolve routes the first word plus args: alias table first, then the
// command tree until a flag token or unknown word stops the descent. The
// second result is false when the word matches nothing at all.
func (g *registry) resolve(word string, args []string) (resolution, bool) {
	if leaf, ok := g.alias[word]; ok && leaf != nil && leaf.run != nil {
		return resolution{cmd: leaf.run, path: splitRoute(leaf.run.Route), rest: args}, true
	}
	node, ok := g.tree.get(word)
	if !ok {
		return resolution{}, false
	}
	path := []string{word}
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		child, ok := node.get(args[0])
		if !ok {
			break
		}
		node = child
		path = append(path, args[0])
		args = args[1:]
	}
	return resolution{cmd: node.run, path: path, rest: args}, true
}
