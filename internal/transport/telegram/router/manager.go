package router

import (
	"context"
	"sync"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Request carries everything a command handler needs for one update.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Path    []string // matched command path tokens (message updates only)
	Command string   // route or callback key
	Args    []string // positional args after flags were peeled off
	Payload string   // raw callback payload

	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Adapter     kit.Adapter
	Config      *Config
	Logger      logx.Logger
	Services    *Services
	OwnerUserID []int64
}

// Services are the app ports command handlers reach through a Request.
type Services struct {
	Reminders RemindersPort
	Scheduler SchedulerPort
	Notifier  NotifierPort
	Store     StorePort // nil when storage is disabled

	// AppSupervisor is set by the app once started; nil in minimal/test
	// environments.
	AppSupervisor *Supervisor

	// RuntimeSupervisors exposes subsystem supervisors (adapter, scheduler,
	// notifier, api) for operational commands like /health. Best-effort,
	// entries may be nil.
	RuntimeSupervisors *SupervisorRegistry
}

// RemindersPort is the reminder service surface used by command handlers.
type RemindersPort interface {
	Add(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error)
	Remove(ctx context.Context, id string) (reminder.Reminder, error)
	Get(id string) (reminder.Reminder, error)
	Snapshot() reminder.Snapshot
}

type SchedulerPort interface {
	Enabled() bool
	Snapshot() Snapshot
}

type NotifierPort interface {
	Enabled() bool
	Notify(ctx context.Context, n kit.Notification) error
	QueueDepth() (queued, capacity int)
}

// StorePort is the audit-trail slice of the storage backend.
type StorePort interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
	RecentAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

const jobQueueCap = 256

// CommandManager routes inbound updates to registered handlers through a
// bounded worker pool.
type CommandManager struct {
	mu     sync.RWMutex
	reg    *registry
	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	cfgm    *ConfigManager
	serv    *Services

	runMu   sync.Mutex
	running bool
	sup     *Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfgm *ConfigManager, serv *Services, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		reg:     newRegistry(),
		owners:  append([]int64(nil), owners...),
		log:     log,
		adapter: adapter,
		cfgm:    cfgm,
		serv:    serv,
		jobs:    make(chan func(), jobQueueCap),
	}
}

// Supervisor returns the dispatcher's internal supervisor, nil when the
// dispatch loop is not running. Used for operational visibility (/health).
func (m *CommandManager) Supervisor() *Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// SetOwners swaps the owner list used for AccessOwnerOnly checks. Safe to
// call during hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.owners...)
}

func (m *CommandManager) snapshotRegistry() *registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg
}

// SetRegistry replaces the routable command surface. In-flight requests
// keep the registry they resolved against.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	reg, kept := buildRegistry(append(cmds, m.helpCommand()), cbs)

	m.mu.Lock()
	m.reg = reg
	m.mu.Unlock()

	m.publishMenu(reg, kept)
}

// helpCommand is injected into every registry so /help always exists.
func (m *CommandManager) helpCommand() Command {
	return Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "show available commands",
		Usage:       "/help [cmd] [sub...]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			text := m.helpText(req.Args)
			_, _ = req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return nil
		},
	}
}

// publishMenu pushes the Telegram "/" autocomplete list, best-effort and
// off the caller's goroutine. Runs under the app supervisor when one is
// wired so shutdown cancels it cleanly.
func (m *CommandManager) publishMenu(reg *registry, cmds []Command) {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	menu := menuCommands(reg.tree, cmds)
	run := func(parent context.Context) {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		defer cancel()
		_ = up.UpdateMenuCommands(ctx, menu)
	}
	if m.serv != nil && m.serv.AppSupervisor != nil {
		m.serv.AppSupervisor.Go("telegram.menu.update", func(ctx context.Context) error {
			run(ctx)
			return nil
		})
		return
	}
	go run(context.Background())
}

func (m *CommandManager) supervisorRegistry() *SupervisorRegistry {
	if m.serv == nil {
		return nil
	}
	return m.serv.RuntimeSupervisors
}
