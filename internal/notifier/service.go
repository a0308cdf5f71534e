package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/mail"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const (
	sendTimeout   = 10 * time.Second
	historyCap    = 300
	dedupQueueCap = 1024
)

// delivery is one accepted notification on its way through the queue. The
// dedup key is resolved at intake so workers never recompute it.
type delivery struct {
	note kit.Notification
	key  string
}

// Service is the delivery pipeline behind every reminder fire and system
// notice: queue + worker pool + rate limit + retry + duplicate suppression.
// Telegram delivery goes through the chat adapter, email through the mail
// sender.
//
// Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	sender  mail.Sender
	bus     eventbus.Bus
	store   storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	intakeWG  sync.WaitGroup

	queue    chan delivery
	dedupQ   chan keyWrite
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while a stop drains

	keys dedupCache

	// Delivered history for the status command.
	hmu     sync.Mutex
	history []HistoryItem
}

// New builds the service. adapter, sender, bus and store may each be nil;
// a nil backend simply makes its channel unavailable.
func New(cfg Config, adapter kit.Adapter, sender mail.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		sender:  sender,
		log:     log,
		bus:     bus,
		store:   store,
	}
	s.applyLocked(cfg)
	return s
}

// Supervisor exposes the notifier's internal supervisor for operational
// commands; nil while not started.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// ChannelReady reports whether a delivery channel has a configured backend.
func (s *Service) ChannelReady(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case kit.ChannelTelegram:
		return s.adapter != nil
	case kit.ChannelEmail:
		return s.sender != nil
	default:
		return false
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = withDefaults(cfg)
	s.cfg = cfg
	// Token bucket with burst = rate per sec, so short spikes don't stall.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if strings.ToLower(strings.TrimSpace(cfg.DefaultChannel)) == kit.ChannelEmail {
		cfg.DefaultChannel = kit.ChannelEmail
	} else {
		cfg.DefaultChannel = kit.ChannelTelegram
	}
	return cfg
}

// Start spins up the worker pool. Idempotent; a Start racing an in-flight
// Stop waits for the drain to finish first.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if s.queue != nil || !s.cfg.Enabled {
		return
	}

	s.queue = make(chan delivery, s.cfg.QueueSize)
	s.accepting = true
	if s.cfg.PersistDedup && s.store != nil {
		s.dedupQ = make(chan keyWrite, dedupQueueCap)
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		// delivery trouble must never take the app down with it
		rtsup.WithCancelOnError(false),
	)

	if s.dedupQ != nil {
		s.spawnPersist(s.sup, s.dedupQ, s.store)
	}
	for i := 0; i < s.cfg.Workers; i++ {
		s.spawnWorker(s.sup, s.queue, i)
	}
}

func (s *Service) spawnWorker(sup *rtsup.Supervisor, q <-chan delivery, idx int) {
	sup.GoRestart("worker."+strconv.Itoa(idx), func(ctx context.Context) error {
		s.workerLoop(ctx, q)
		return s.loopExit(ctx, "worker")
	}, rtsup.WithPublishFirstError(true))
}

func (s *Service) spawnPersist(sup *rtsup.Supervisor, ch <-chan keyWrite, st storage.Store) {
	sup.GoRestart("dedup.persist", func(ctx context.Context) error {
		s.persistLoop(ctx, ch, st)
		return s.loopExit(ctx, "persist loop")
	}, rtsup.WithPublishFirstError(true))
}

// loopExit classifies a loop return for the supervisor's restart policy:
// shutdown reads as a clean stop, anything else restarts.
func (s *Service) loopExit(ctx context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping {
		return context.Canceled
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("notifier " + what + " exited unexpectedly")
}

// Stop closes intake, then drains queued deliveries until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return
	}
	if done := s.stopDone; done != nil {
		// another Stop is already in flight
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	q, pch, sup := s.queue, s.dedupQ, s.sup
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go s.drain(q, pch, sup, done)

	select {
	case <-done:
	case <-ctx.Done():
		// force-stop internal loops, the drain finishes in background
		if sup != nil {
			sup.Cancel()
		}
	}
}

// drain lets in-flight enqueues finish, closes the channels so loops exit,
// and waits the workers out.
func (s *Service) drain(q chan delivery, pch chan keyWrite, sup *rtsup.Supervisor, done chan struct{}) {
	defer close(done)

	s.intakeWG.Wait()
	closeQuiet(pch)
	closeQuiet(q)
	if sup != nil {
		_ = sup.Wait(context.Background())
	}

	s.mu.Lock()
	s.queue, s.dedupQ, s.sup, s.stopDone = nil, nil, nil, nil
	s.mu.Unlock()
}

// closeQuiet closes ch, absorbing the panic of a doubled close.
func closeQuiet[T any](ch chan T) {
	if ch == nil {
		return
	}
	defer func() { _ = recover() }()
	close(ch)
}

// intake is the config snapshot one Notify call works against.
type intake struct {
	q       chan delivery
	window  time.Duration
	maxKeys int
	persist bool
	st      storage.Store
	pch     chan keyWrite
}

func (s *Service) beginIntake(n *kit.Notification) (intake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return intake{}, ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		return intake{}, ErrStopped
	}
	if strings.TrimSpace(n.Channel) == "" {
		n.Channel = s.cfg.DefaultChannel
	}
	s.intakeWG.Add(1)
	return intake{
		q:       s.queue,
		window:  s.cfg.DedupWindow,
		maxKeys: s.cfg.DedupMaxEntries,
		persist: s.cfg.PersistDedup,
		st:      s.store,
		pch:     s.dedupQ,
	}, nil
}

func validate(n kit.Notification) error {
	switch n.Channel {
	case kit.ChannelTelegram:
		if strings.TrimSpace(n.Text) == "" {
			return errors.New("empty text")
		}
		if n.Target.IsZero() {
			return errors.New("no telegram target")
		}
		return nil
	case kit.ChannelEmail:
		if n.Email == nil {
			return errors.New("email payload missing")
		}
		return nil
	default:
		return fmt.Errorf("unknown channel %q", n.Channel)
	}
}

// Notify validates n and places it on the delivery queue. It returns an
// error when the notification cannot be accepted; a nil return means the
// pipeline owns it from here (including the deduped case).
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	in, err := s.beginIntake(&n)
	if err != nil {
		return err
	}
	defer s.intakeWG.Done()

	if err := validate(n); err != nil {
		return err
	}

	key := dedupKeyFor(n)
	if in.window > 0 && key != "" && s.suppressed(ctx, key, in.persist, in.st) {
		s.publish("notifier.deduped", n, key, "")
		return nil
	}

	select {
	case in.q <- delivery{note: n, key: key}:
	default:
		s.publish("notifier.dropped", n, key, ErrQueueFull.Error())
		return ErrQueueFull
	}

	// The suppression window opens only after the queue accepts the job, so
	// a rejected enqueue stays retryable by the caller.
	if in.window > 0 && key != "" {
		s.markSuppressed(key, in)
	}
	s.publish("notifier.queued", n, key, "")
	return nil
}

// Snapshot returns the delivered history, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// QueueDepth returns the current queue length and capacity (0, 0 when the
// service is stopped).
func (s *Service) QueueDepth() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return 0, 0
	}
	return len(s.queue), cap(s.queue)
}

func (s *Service) appendHistory(n kit.Notification) {
	line := prefixForPriority(n.Priority) + n.Text
	if n.Channel == kit.ChannelEmail && n.Email != nil {
		line = n.Email.Subject
	}
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Channel: n.Channel, Text: line})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, n kit.Notification, key, errText string) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: NotificationEvent{
		Channel:  n.Channel,
		ChatID:   n.Target.ChatID,
		ThreadID: n.Target.ThreadID,
		Key:      key,
		At:       now,
		Error:    errText,
	}})
}
