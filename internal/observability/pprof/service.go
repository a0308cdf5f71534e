// Package pprof serves the Go runtime profiling endpoints on a private
// listener, guarded the same way as the JSON API: loopback bind by default,
// optional bearer token elsewhere.
package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

const defaultAddr = "127.0.0.1:6060"

// Config controls the optional pprof HTTP server. Binding anywhere but
// loopback requires Token or an explicit AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Prefix        string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MutexProfileFraction int
	BlockProfileRate     int
	MemProfileRate       int
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	ln       net.Listener
	srv      *http.Server
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

// Supervisor exposes the service's internal supervisor for operational
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

// Reconfigure applies cfg, starting, stopping or bouncing the server as
// needed. Profiling rates apply even while the server is disabled.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	applyRuntimeRates(cfg)

	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case needsRestart(prev, cfg):
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// needsRestart reports whether a running server must be bounced to pick up
// the new config. Profile rates apply live and never require one.
func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		normalizePrefix(a.Prefix) != normalizePrefix(b.Prefix) ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

// applyRuntimeRates sets the runtime profiling knobs; zero keeps the Go
// default for each.
func applyRuntimeRates(cfg Config) {
	if cfg.MutexProfileFraction >= 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate >= 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
	if cfg.MemProfileRate > 0 {
		runtime.MemProfileRate = cfg.MemProfileRate
	}
}

// Start launches the server under a bounded restart loop. Idempotent; a
// Start racing a Stop waits for the stop to finish first.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.mu.Lock()
		if s.stopDone == nil {
			break
		}
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	// s.mu is held here
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "pprof"))),
		// optional observability, never hard-kill the app
		rtsup.WithCancelOnError(false),
	)
	s.sup = sup
	s.mu.Unlock()

	// A persistently failing bind or an insecure-bind refusal gives up
	// after a bounded number of attempts instead of thrashing.
	sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithMaxRestarts(10),
		rtsup.WithFatalOnFinalError(true),
	)
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.sup == nil {
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
	done := make(chan struct{})
	s.stopDone = done
	srv, ln, sup := s.srv, s.ln, s.sup
	s.mu.Unlock()

	go s.teardown(ctx, srv, ln, sup, done)

	select {
	case <-done:
	case <-ctx.Done():
		// force-stop internal loops, teardown finishes in background
		if sup != nil {
			sup.Cancel()
		}
	}
}

// teardown runs the actual shutdown so Stop callers can time out without
// leaking half-stopped state.
func (s *Service) teardown(ctx context.Context, srv *http.Server, ln net.Listener, sup *rtsup.Supervisor, done chan struct{}) {
	defer close(done)

	if srv != nil {
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(context.Background())
	}

	s.mu.Lock()
	s.ln, s.srv, s.sup = nil, nil, nil
	s.stopDone = nil
	s.mu.Unlock()
	s.log.Info("pprof stopped")
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	log := s.log
	s.mu.Unlock()

	if !cur.Enabled {
		return context.Canceled
	}

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if err := checkBindSafety(cur, addr, log); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("pprof listen failed", logx.String("addr", addr), logx.Any("err", err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:      newMux(cur),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}
	defer func() { _ = srv.Close() }()

	s.publishHandles(ln, srv)
	go shutdownOnCancel(ctx, srv)

	log.Info("pprof started",
		logx.String("addr", ln.Addr().String()),
		logx.String("prefix", normalizePrefix(cur.Prefix)),
		logx.Bool("token_set", cur.Token != ""),
	)

	return s.serveResult(ctx, srv, srv.Serve(ln))
}

// checkBindSafety refuses an unauthenticated non-loopback bind unless the
// operator opted in. Profiles expose heap and stack internals.
func checkBindSafety(cfg Config, addr string, log logx.Logger) error {
	if isLoopbackAddr(addr) || cfg.Token != "" {
		return nil
	}
	if !cfg.AllowInsecure {
		log.Error("pprof refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
		return errors.New("pprof refused to start: insecure bind")
	}
	log.Warn("pprof running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	return nil
}

// publishHandles exposes the live listener and server for Stop.
func (s *Service) publishHandles(ln net.Listener, srv *http.Server) {
	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()
}

// shutdownOnCancel bounds the supervisor-cancel path; Stop does the real
// graceful shutdown.
func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(cctx)
}

func (s *Service) serveResult(ctx context.Context, srv *http.Server, err error) error {
	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	switch {
	case stopping || ctx.Err() != nil:
		return context.Canceled
	case err == nil || errors.Is(err, http.ErrServerClosed):
		// Serve returned cleanly while nobody asked it to stop.
		return errors.New("pprof server exited unexpectedly")
	default:
		return err
	}
}
