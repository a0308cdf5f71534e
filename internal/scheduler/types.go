package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

// Config controls the timer service.
type Config struct {
	Enabled        bool
	Workers        int
	DefaultTimeout time.Duration
	HistorySize    int
	Timezone       string // IANA name like "Europe/Berlin"; empty means local
	RetryMax       int    // retries per fire, default 3
}

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	OverlapSkipIfRunning
)

type TaskOptions struct {
	Overlap       OverlapPolicy
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // fraction of the delay, 0.2 means +/-20%
}

func (o TaskOptions) withDefaults(cfg Config) TaskOptions {
	if o.RetryMax <= 0 {
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	// Skip is the safer overlap default.
	if o.Overlap != OverlapAllow && o.Overlap != OverlapSkipIfRunning {
		o.Overlap = OverlapSkipIfRunning
	}
	return o
}

// overlapGate is shared between cron invocations of one definition so
// OverlapSkipIfRunning can see an active run.
type overlapGate struct {
	mu     sync.Mutex
	active bool
}

func (g *overlapGate) busy() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *overlapGate) set(v bool) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.active = v
	g.mu.Unlock()
}

type HistoryItem struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// TaskEvent is emitted on the event bus for fire lifecycle events.
// Keep it small; Data may be logged or serialized by subscribers.
type TaskEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// fire is one unit of work handed to the worker pool.
type fire struct {
	id      string
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	opt     TaskOptions
	gate    *overlapGate
}

// repeatDef is a persistent repeating definition. It survives Stop/Start and
// re-registers with cron on every (re)start.
type repeatDef struct {
	id      string
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	opt     TaskOptions
	gate    *overlapGate
}

// onceEntry is a persistent one-time definition plus its runtime timer.
// Entry identity doubles as the staleness check: a timer callback only fires
// if the map still holds the exact entry it was armed for.
type onceEntry struct {
	at      time.Time
	timeout time.Duration
	job     func(ctx context.Context) error
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config
	loc *time.Location

	parser cron.Parser
	cr     *cron.Cron
	defs   []repeatDef

	queue chan fire
	// quit is non-nil while the service runs; closing it releases the workers.
	quit chan struct{}
	// stopping is non-nil while a Stop is in progress; closed once workers
	// have fully exited and state is cleared.
	stopping chan struct{}
	sup      *rtsup.Supervisor

	// One-time definitions; timers are rebuilt from these across Stop/Start.
	onceMu sync.Mutex
	once   map[string]*onceEntry

	histMu  sync.Mutex
	history []HistoryItem
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

// OnceInfo describes a pending one-time fire.
type OnceInfo struct {
	Name string
	At   time.Time
}

type Snapshot struct {
	Enabled   bool
	Timezone  string
	Workers   int
	QueueLen  int
	QueueCap  int
	Schedules []ScheduleInfo
	Once      []OnceInfo
	History   []HistoryItem
}
