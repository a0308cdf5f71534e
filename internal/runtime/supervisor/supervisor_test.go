package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoPropagatesFirstError(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())

	sup.Go("worker", func(ctx context.Context) error { return errBoom })
	err := sup.Wait(waitCtx(t))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Wait = %v, want errBoom", err)
	}
	if sup.Err() == nil || sup.Err().Error() != "worker: boom" {
		t.Fatalf("Err = %v, want name-prefixed error", sup.Err())
	}
}

func TestGoSwallowsContextCanceled(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())

	sup.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sup.Cancel()
	if err := sup.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait after clean shutdown = %v, want nil", err)
	}
}

func TestWithCancelOnError(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background(), WithCancelOnError(true))

	sup.Go("fail", func(ctx context.Context) error { return errBoom })
	select {
	case <-sup.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor context not canceled after goroutine error")
	}
	_ = sup.Wait(waitCtx(t))
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())

	sup.Go("panicky", func(ctx context.Context) error { panic("kaboom") })
	err := sup.Wait(waitCtx(t))
	if err == nil || err.Error() != "panic in panicky: kaboom" {
		t.Fatalf("Wait = %v, want recovered panic error", err)
	}

	snap := sup.Snapshot()
	var found bool
	for _, g := range snap.Goroutines {
		if g.Name == "panicky" {
			found = true
			if g.Panics != 1 || g.LastPanic != "kaboom" {
				t.Fatalf("stats = %+v, want one recorded panic", g)
			}
		}
	}
	if !found {
		t.Fatalf("no stats row for panicky: %+v", snap.Goroutines)
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())

	var runs atomic.Int32
	sup.GoRestart("once", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, WithRestartBackoff(time.Millisecond, time.Millisecond))

	if err := sup.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1 (clean exit must not restart)", got)
	}
}

func TestGoRestartGivesUpAfterMaxRestarts(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())

	var runs atomic.Int32
	sup.GoRestart("flaky", func(ctx context.Context) error {
		runs.Add(1)
		return errBoom
	},
		WithRestartBackoff(time.Millisecond, 2*time.Millisecond),
		WithMaxRestarts(2),
		WithFatalOnFinalError(true),
	)

	err := sup.Wait(waitCtx(t))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Wait = %v, want the final error published", err)
	}
	// Initial run plus two restarts.
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}

	snap := sup.Snapshot()
	if snap.FirstError == "" {
		t.Fatal("snapshot missing first error")
	}
	for _, g := range snap.Goroutines {
		if g.Name == "flaky" {
			if g.Started != 3 || g.Restarts != 2 {
				t.Fatalf("stats = started %d restarts %d, want 3 and 2", g.Started, g.Restarts)
			}
			if g.LastErr == "" {
				t.Fatalf("stats = %+v, want last error recorded", g)
			}
		}
	}
}

func TestGoRestartLoopModeRunsUntilCancel(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())

	var runs atomic.Int32
	sup.GoRestart("pump", func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			sup.Cancel()
		}
		return nil
	},
		WithStopOnCleanExit(false),
		WithRestartBackoff(time.Millisecond, time.Millisecond),
	)

	if err := sup.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait = %v, want nil (loop exits are not failures)", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoRestartPublishesFirstErrorWhileRetrying(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())

	sup.GoRestart("retrying", func(ctx context.Context) error { return errBoom },
		WithRestartBackoff(time.Millisecond, time.Millisecond),
		WithPublishFirstError(true),
	)

	deadline := time.Now().Add(2 * time.Second)
	for sup.Err() == nil && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if !errors.Is(sup.Err(), errBoom) {
		t.Fatalf("Err = %v, want first error visible while still retrying", sup.Err())
	}
	if err := sup.Stop(waitCtx(t)); !errors.Is(err, errBoom) {
		t.Fatalf("Stop = %v, want the published error", err)
	}
}

func TestCountersTrackActive(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	sup.Go0("holder", func(ctx context.Context) {
		close(started)
		<-release
	})

	<-started
	if c := sup.Counters(); c.Active != 1 || c.Started != 1 {
		t.Fatalf("Counters = %+v, want one active", c)
	}
	close(release)
	if err := sup.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if c := sup.Counters(); c.Active != 0 {
		t.Fatalf("Active = %d after Wait, want 0", c.Active)
	}
}
