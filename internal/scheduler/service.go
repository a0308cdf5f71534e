package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		// SecondOptional accepts both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		once:   map[string]*onceEntry{},
	}
}

// Enabled reports the current config flag. Thread-safe; Apply may run
// concurrently.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Supervisor returns the service's internal supervisor (nil if not started),
// for operational visibility (/health).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tzChanged := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.quit == nil {
		return
	}
	if tzChanged {
		// Cron entries bake their location in; rebuild with the new one and
		// re-register every definition.
		s.rebuildCronLocked()
	}
	// Worker pool size changes take effect on the next Start.
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	cur := s.snapshotConfig()
	s.log.Debug("start requested", logx.Bool("enabled", cur.Enabled), logx.Int("workers", cur.Workers), logx.String("tz", strings.TrimSpace(cur.Timezone)))

	// A Stop may still be draining; never let two worker pools overlap.
	if !s.awaitIdleThenLock(ctx) {
		return
	}
	defer s.mu.Unlock()

	s.quit = make(chan struct{})
	// Fresh queue per run so fires enqueued before a stop/start toggle never
	// execute stale.
	s.queue = make(chan fire, 256)

	loc := s.locationLocked()
	s.loc = loc
	s.cr = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for i := range s.defs {
		if err := s.registerWithCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule re-register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}

	workers := cur.Workers
	if workers <= 0 {
		workers = 2
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "scheduler"))),
		// A wedged fire must not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	s.spawnWorkersLocked(workers)

	s.cr.Start()
	// Resume one-time fires from their persistent definitions.
	s.rearmOnceTimers()
	s.log.Info("service started", logx.Int("workers", workers), logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// awaitIdleThenLock blocks until no run or stop is in progress, then returns
// with s.mu held. A false return means ctx ended, or the service is already
// running; either way the lock is released.
func (s *Service) awaitIdleThenLock(ctx context.Context) bool {
	for {
		s.mu.Lock()
		if s.quit == nil {
			return true
		}
		stopping := s.stopping
		s.mu.Unlock()
		if stopping == nil {
			// Running and not stopping: Start is a no-op.
			return false
		}
		select {
		case <-stopping:
		case <-ctx.Done():
			return false
		}
	}
}

// spawnWorkersLocked starts the pool under the service supervisor. Call with
// s.mu held after quit/queue/sup are set.
func (s *Service) spawnWorkersLocked(workers int) {
	sup := s.sup
	quit := s.quit
	queue := s.queue

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, quit, queue, idx)
			if s.shuttingDown() {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("scheduler worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

func (s *Service) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping != nil || s.quit == nil
}

func (s *Service) snapshotConfig() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	if s.quit == nil {
		s.mu.Unlock()
		return
	}
	if s.stopping != nil {
		// Another Stop is already draining; just wait for it.
		done := s.stopping
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopping = done
	quit := s.quit
	cr := s.cr
	sup := s.sup
	// Nil the cron handle first so its callbacks stop enqueueing promptly.
	s.cr = nil
	s.mu.Unlock()

	close(quit)
	if cr != nil {
		<-cr.Stop().Done()
	}

	// Stop runtime timers; the definitions stay so pending fires resume on
	// the next Start.
	s.onceMu.Lock()
	for _, e := range s.once {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	s.onceMu.Unlock()

	// Finalize in the background so Stop can return on ctx timeout without
	// leaving half-cleared state behind.
	go func() {
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.quit = nil
		s.queue = nil
		s.sup = nil
		s.stopping = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force worker exit; cleanup continues in the background.
		if sup != nil {
			sup.Cancel()
		}
	}
}

func (s *Service) locationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	if s.cfg.DefaultTimeout > 0 {
		return s.cfg.DefaultTimeout
	}
	return 0
}

func (s *Service) publishEvent(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	if ev.Started.IsZero() {
		ev.Started = time.Now()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
