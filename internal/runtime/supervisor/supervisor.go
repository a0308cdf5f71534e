package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "remindbot/pkg/logx"
)

// Supervisor owns a set of named goroutines tied to one context. It recovers
// panics, records per-task stats, optionally cancels everything on the first
// error, and supports timeout-aware waiting during shutdown.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log       logx.Logger
	stopOnErr bool

	// nStarted/nActive are operational counters, not synchronization.
	nStarted uint64
	nActive  int64

	errOnce  sync.Once
	firstErr atomic.Value // error

	wg       sync.WaitGroup
	waitOnce sync.Once
	waitDone chan struct{}

	muStats sync.Mutex
	tasks   map[string]*taskStats
}

type SupervisorOption func(*Supervisor)

func WithLogger(log logx.Logger) SupervisorOption {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context as soon as any goroutine
// returns a non-nil error or panics.
func WithCancelOnError(enabled bool) SupervisorOption {
	return func(s *Supervisor) { s.stopOnErr = enabled }
}

func NewSupervisor(parent context.Context, opts ...SupervisorOption) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:      ctx,
		cancel:   cancel,
		waitDone: make(chan struct{}),
		tasks:    map[string]*taskStats{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel signals every goroutine to stop without waiting for them.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first published error, if any.
func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

// Go runs fn once. An error return (other than context.Canceled) or a panic
// is published as the supervisor's first error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	atomic.AddUint64(&s.nStarted, 1)
	atomic.AddInt64(&s.nActive, 1)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer atomic.AddInt64(&s.nActive, -1)

		s.debugLog("task started", name)
		startedAt := s.markStart(name, false)

		err, pan, stack := capture(s.ctx, fn)
		switch {
		case pan != nil:
			s.markPanic(name, pan)
			s.errorLog("task panicked", name, logx.Any("panic", pan), logx.String("stack", string(stack)))
			err = fmt.Errorf("panic in %s: %v", name, pan)
			s.markStop(name, startedAt, err)
			s.publish(err)
		case err != nil && !errors.Is(err, context.Canceled):
			err = fmt.Errorf("%s: %w", name, err)
			s.markStop(name, startedAt, err)
			s.publish(err)
		default:
			s.markStop(name, startedAt, nil)
		}
		s.debugLog("task stopped", name)
	}()
}

// Go0 is Go for functions without an error return.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// retryPolicy is the tuned behavior of one GoRestart loop.
type retryPolicy struct {
	base         time.Duration
	cap          time.Duration
	limit        int // <=0: unlimited restarts
	stopOnClean  bool
	fatalFinal   bool
	publishFirst bool
}

type RestartOption func(*retryPolicy)

// WithRestartBackoff bounds the exponential delay between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(p *retryPolicy) {
		if min > 0 {
			p.base = min
		}
		if max > 0 {
			p.cap = max
		}
	}
}

// WithMaxRestarts caps how many times a failing task is restarted. The
// initial run is not a restart.
func WithMaxRestarts(n int) RestartOption {
	return func(p *retryPolicy) { p.limit = n }
}

// WithFatalOnFinalError publishes the last error once restarts are exhausted,
// triggering cancel-on-error when that is enabled.
func WithFatalOnFinalError(enabled bool) RestartOption {
	return func(p *retryPolicy) { p.fatalFinal = enabled }
}

// WithPublishFirstError records the first failure in Err while the task keeps
// restarting, so health checks can see it.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(p *retryPolicy) { p.publishFirst = enabled }
}

// WithStopOnCleanExit controls whether a nil return ends the loop (default)
// or counts as an exit to restart from.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(p *retryPolicy) { p.stopOnClean = enabled }
}

// GoRestart keeps fn running: every error or panic schedules a rerun after a
// jittered exponential backoff, until the context ends or the restart limit
// is hit. Meant for pollers, watchers and consumers that should self-heal.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	pol := retryPolicy{
		base:        250 * time.Millisecond,
		cap:         30 * time.Second,
		stopOnClean: true,
	}
	for _, o := range opts {
		o(&pol)
	}
	if pol.base <= 0 {
		pol.base = 250 * time.Millisecond
	}
	if pol.cap < pol.base {
		pol.cap = pol.base
	}

	// The hosting goroutine gets its own stats name so the loop itself is not
	// confused with the task's runs.
	s.Go0(name+".restart", func(ctx context.Context) { s.restartLoop(ctx, name, fn, pol) })
}

// GoRestart0 is GoRestart for functions without an error return.
func (s *Supervisor) GoRestart0(name string, fn func(ctx context.Context), opts ...RestartOption) {
	if fn == nil {
		return
	}
	s.GoRestart(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	}, opts...)
}

func (s *Supervisor) restartLoop(ctx context.Context, name string, fn func(ctx context.Context) error, pol retryPolicy) {
	delay := pol.base
	restarts := 0

	for ctx.Err() == nil {
		startedAt := s.markStart(name, restarts > 0)

		err, pan, stack := capture(ctx, fn)
		if pan != nil {
			s.markPanic(name, pan)
			s.errorLog("task panicked in restart loop", name, logx.Any("panic", pan), logx.String("stack", string(stack)))
			err = fmt.Errorf("panic: %v", pan)
		}

		// Context cancellation during the run is shutdown, not failure.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			s.markStop(name, startedAt, nil)
			return
		}
		if err == nil {
			if pol.stopOnClean {
				s.markStop(name, startedAt, nil)
				return
			}
			err = errors.New("exited")
		}

		named := fmt.Errorf("%s: %w", name, err)
		s.markStop(name, startedAt, named)
		if pol.publishFirst {
			// Record for health checks, but keep restarting: this must not
			// trip cancel-on-error.
			s.recordFirst(named)
		}

		restarts++
		if pol.limit > 0 && restarts > pol.limit {
			s.errorLog("task abandoned after max restarts", name, logx.Int("restarts", restarts), logx.Any("err", err))
			if pol.fatalFinal {
				s.publish(named)
			}
			return
		}

		// A run that survived a while earns a fresh backoff window.
		if time.Since(startedAt) >= 30*time.Second {
			delay = pol.base
		}
		wait := withJitter(delay, pol.cap)
		s.warnLog("task restarting", name, logx.Duration("backoff", wait), logx.Any("err", err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if delay *= 2; delay > pol.cap {
			delay = pol.cap
		}
	}
}

// withJitter clamps d to cap and stretches it by up to 20%.
func withJitter(d, cap time.Duration) time.Duration {
	if d > cap {
		d = cap
	}
	if spread := int64(d) / 5; spread > 0 {
		d += time.Duration(time.Now().UnixNano() % (spread + 1))
	}
	return d
}

// capture runs fn and reports a panic as a value instead of unwinding.
func capture(ctx context.Context, fn func(ctx context.Context) error) (err error, pan any, stack []byte) {
	defer func() {
		if r := recover(); r != nil {
			pan = r
			stack = debug.Stack()
		}
	}()
	err = fn(ctx)
	return
}

// Stop cancels everything and waits like Wait.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine finished or ctx expires. On a full stop
// it returns the first published error, if any.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.waitDone)
		}()
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.waitDone:
		return s.Err()
	}
}

// publish records err as the first error and applies cancel-on-error.
func (s *Supervisor) publish(err error) {
	if err == nil {
		return
	}
	s.recordFirst(err)
	if s.stopOnErr {
		s.cancel()
	}
}

func (s *Supervisor) recordFirst(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
}

func (s *Supervisor) debugLog(msg, name string, fields ...logx.Field) {
	if !s.log.IsZero() {
		s.log.Debug(msg, append([]logx.Field{logx.String("name", name)}, fields...)...)
	}
}

func (s *Supervisor) warnLog(msg, name string, fields ...logx.Field) {
	if !s.log.IsZero() {
		s.log.Warn(msg, append([]logx.Field{logx.String("name", name)}, fields...)...)
	}
}

func (s *Supervisor) errorLog(msg, name string, fields ...logx.Field) {
	if !s.log.IsZero() {
		s.log.Error(msg, append([]logx.Field{logx.String("name", name)}, fields...)...)
	}
}
