package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

func (s *Service) enqueue(f fire) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping fire", logx.String("task", f.name))
		return
	}
	select {
	case q <- f:
	default:
		s.log.Warn("scheduler queue full; dropping fire", logx.String("task", f.name), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
		s.publishEvent("task.dropped", TaskEvent{ID: f.id, Name: f.name, Started: time.Now(), Error: "queue_full"})
	}
}

func (s *Service) worker(ctx context.Context, quit <-chan struct{}, queue <-chan fire, idx int) {
	s.log.Debug("worker started", logx.Int("worker", idx))
	defer s.log.Debug("worker stopped", logx.Int("worker", idx))
	for {
		// Drain-free exit check first so a closed quit wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case f := <-queue:
			s.execute(ctx, quit, f)
		}
	}
}

// execute runs one fire through its retry budget and records the outcome.
func (s *Service) execute(ctx context.Context, quit <-chan struct{}, f fire) {
	start := time.Now()
	s.publishEvent("task.started", TaskEvent{ID: f.id, Name: f.name, Started: start})

	f.gate.set(true)
	defer f.gate.set(false)

	cfg := s.snapshotConfig()
	opt := f.opt.withDefaults(cfg)

	attempts, err := s.runWithRetries(ctx, quit, f, opt)
	dur := time.Since(start)

	item := HistoryItem{ID: f.id, Name: f.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("fire failed", logx.String("task", f.name), logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publishEvent("task.failed", TaskEvent{ID: f.id, Name: f.name, Started: start, Duration: dur, Attempts: attempts, Error: item.Error})
	} else {
		// Frequent fast fires stay at debug; only slow ones surface at info.
		lvl := s.log.Debug
		if dur >= 750*time.Millisecond {
			lvl = s.log.Info
		}
		lvl("fire completed", logx.String("task", f.name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publishEvent("task.finished", TaskEvent{ID: f.id, Name: f.name, Started: start, Duration: dur, Attempts: attempts})
	}

	s.recordHistory(item, cfg.HistorySize)
}

// runWithRetries makes up to 1+RetryMax attempts with per-attempt timeouts,
// sleeping a jittered exponential delay between attempts. Shutdown aborts the
// budget immediately.
func (s *Service) runWithRetries(ctx context.Context, quit <-chan struct{}, f fire, opt TaskOptions) (attempts int, err error) {
	total := 1 + max(opt.RetryMax, 0)

	for attempt := 1; attempt <= total; attempt++ {
		attempts = attempt
		err = s.runOnce(ctx, f)
		if err == nil || attempt == total {
			return attempts, err
		}

		delay := backoffDelay(opt, attempt) // attempt=1 delays the first retry
		if delay <= 0 {
			continue
		}
		s.log.Debug("fire retry scheduled", logx.String("task", f.name), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			stopTimer(tmr)
			return attempts, ctx.Err()
		case <-quit:
			stopTimer(tmr)
			return attempts, errors.New("scheduler stopped")
		case <-tmr.C:
		}
	}
	return attempts, err
}

// runOnce applies the per-attempt timeout so a timed-out first attempt does
// not poison the retries.
func (s *Service) runOnce(ctx context.Context, f fire) error {
	if f.timeout <= 0 {
		return f.run(ctx)
	}
	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.run(runCtx)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		<-t.C
	}
}

func (s *Service) recordHistory(item HistoryItem, size int) {
	// Zero or negative history_size would grow without bound on a
	// long-running process; cap it.
	if size <= 0 {
		size = 200
	}
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// backoffDelay is the sleep before retry n (n starts at 1): base doubled
// per retry, jittered by ±RetryJitter, clamped to RetryMaxDelay.
func backoffDelay(opt TaskOptions, retry int) time.Duration {
	base := opt.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	ceil := opt.RetryMaxDelay
	if ceil <= 0 {
		ceil = 15 * time.Second
	}
	jit := opt.RetryJitter
	if jit <= 0 {
		jit = 0.2
	}

	d := base
	for i := 1; i < retry && d < ceil; i++ {
		d *= 2
	}
	if d > ceil {
		d = ceil
	}

	// Scale into [1-jit, 1+jit].
	d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*jit))
	switch {
	case d < 0:
		return 0
	case d > ceil:
		return ceil
	}
	return d
}
