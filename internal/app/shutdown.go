package app

import (
	"context"
	"fmt"
	"time"

	logx "remindbot/pkg/logx"
)

const slowStopStep = 500 * time.Millisecond

// stopStep is one bounded phase of the shutdown sequence.
type stopStep struct {
	name  string
	limit time.Duration
	run   func(context.Context) error
}

// Stop shuts the app down in dependency order: triggers before the delivery
// pipeline, transports before their backends. Each phase gets a time bound
// so one stuck component cannot stall the whole exit.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context up front so supervised loops begin unwinding
	// while the ordered steps execute.
	a.sup.Cancel()

	steps := []stopStep{
		{"scheduler", 2 * time.Second, func(c context.Context) error { a.sched.Stop(c); return nil }},
		{"api", 2 * time.Second, func(c context.Context) error { a.api.Stop(c); return nil }},
		{"pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil }},
		{"notifier", time.Second, func(c context.Context) error { a.notif.Stop(c); return nil }},
		{"adapter", 2 * time.Second, func(c context.Context) error { return a.adapter.Stop(c) }},
		{"storage", time.Second, func(c context.Context) error {
			if a.store == nil {
				return nil
			}
			return a.store.Close()
		}},
		// Supervised goroutines last: config watch/reload and the command
		// dispatcher exit once everything they drive is down.
		{"supervisor", 2 * time.Second, func(c context.Context) error { return a.sup.Wait(c) }},
	}
	for _, st := range steps {
		a.runStop(ctx, st)
	}

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

// runStop executes one step, logging slow and overdue finishes. A step that
// outlives its deadline keeps running in the background, and its eventual
// exit is logged so goroutine leaks show up.
func (a *App) runStop(ctx context.Context, st stopStep) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", st.name), logx.Duration("max", st.limit))

	stepCtx, cancel := boundedCtx(ctx, st.limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", st.name, r)
			}
		}()
		done <- st.run(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", st.name), logx.String("err", err.Error()))
		}
		took := time.Since(start)
		report := a.log.Debug
		if took >= slowStopStep {
			report = a.log.Info
		}
		report("stop step end", logx.String("name", st.name), logx.Duration("took", took))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", st.name),
			logx.String("err", stepCtx.Err().Error()),
			logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			took := time.Since(start)
			if err != nil {
				a.log.Warn("stop step finished after deadline",
					logx.String("name", st.name), logx.String("err", err.Error()), logx.Duration("took", took))
				return
			}
			a.log.Info("stop step finished after deadline",
				logx.String("name", st.name), logx.Duration("took", took))
		}()
	}
}

// boundedCtx caps ctx at limit; the caller's own deadline wins when tighter.
func boundedCtx(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc) {
	if limit <= 0 {
		return ctx, func() {}
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= limit {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, limit)
}
