// Package api serves the JSON surface for managing reminders: CRUD under
// /api/v1, a liveness probe, and a status summary. The server runs under a
// supervisor and restarts itself when a config change touches the listener.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

const defaultAddr = "127.0.0.1:8484"

// Config controls the optional HTTP API. A non-loopback bind without Token
// is served but logged loudly.
type Config struct {
	Enabled     bool
	Addr        string
	Token       string
	CORSOrigins []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	deps Deps

	run      *runner       // non-nil while started
	stopping chan struct{} // non-nil while a stop drains
}

// runner owns one incarnation of the HTTP server: the supervisor driving
// serve attempts plus the live listener handles.
type runner struct {
	sup     *rtsup.Supervisor
	stopped atomic.Bool

	hmu sync.Mutex
	ln  net.Listener
	srv *http.Server
}

func (r *runner) setHandles(ln net.Listener, srv *http.Server) {
	r.hmu.Lock()
	r.ln = ln
	r.srv = srv
	r.hmu.Unlock()
}

func (r *runner) takeHandles() (net.Listener, *http.Server) {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	ln, srv := r.ln, r.srv
	r.ln, r.srv = nil, nil
	return ln, srv
}

func (r *runner) clearHandles(srv *http.Server) {
	r.hmu.Lock()
	if r.srv == srv {
		r.ln, r.srv = nil, nil
	}
	r.hmu.Unlock()
}

func (r *runner) live() bool {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	return r.srv != nil
}

// shutdown drains one runner: graceful server shutdown, then the listener,
// then the serve loop.
func (r *runner) shutdown(ctx context.Context) {
	ln, srv := r.takeHandles()
	if srv != nil {
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	r.sup.Cancel()
	_ = r.sup.Wait(context.Background())
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, deps: deps, log: log}
}

// Supervisor exposes the service's internal supervisor for operational
// commands; nil while not started.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil
	}
	return s.run.sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Reconfigure applies cfg, starting, stopping or bouncing the server as
// needed. Safe to call during hot reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.run != nil && s.run.live()
	s.mu.Unlock()

	if !cfg.Enabled {
		if running {
			s.Stop(ctx)
		}
		return
	}
	if running && !needsRestart(prev, cfg) {
		return
	}
	if running {
		s.Stop(ctx)
	}
	s.Start(ctx)
}

// needsRestart reports whether the listener config changed in a way a
// running server cannot absorb.
func needsRestart(a, b Config) bool {
	if a.Addr != b.Addr || a.Token != b.Token {
		return true
	}
	if a.ReadTimeout != b.ReadTimeout || a.WriteTimeout != b.WriteTimeout || a.IdleTimeout != b.IdleTimeout {
		return true
	}
	return !slices.Equal(a.CORSOrigins, b.CORSOrigins)
}

// Start brings the server up if it isn't already. A Start racing an
// in-flight Stop waits for the teardown to finish before retrying.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		wait := s.tryStart(ctx)
		if wait == nil {
			return
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return
		}
	}
}

// tryStart launches a runner unless the service is already running or
// disabled. A non-nil result is an in-flight stop to wait out first.
func (s *Service) tryStart(ctx context.Context) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping != nil {
		return s.stopping
	}
	if s.run != nil || !s.cfg.Enabled {
		return nil
	}

	r := &runner{
		sup: rtsup.NewSupervisor(ctx,
			rtsup.WithLogger(s.log.With(logx.String("comp", "api"))),
			// optional surface, never hard-kill the app
			rtsup.WithCancelOnError(false),
		),
	}
	s.run = r

	// Bind failures retry with backoff and eventually give up; the final
	// error stays visible on the supervisor.
	r.sup.GoRestart("http.serve", func(c context.Context) error {
		return s.serveOnce(c, r)
	},
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithMaxRestarts(10),
		rtsup.WithFatalOnFinalError(true),
	)
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.run == nil {
		s.mu.Unlock()
		return
	}
	if s.stopping != nil {
		wait := s.stopping
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
		}
		return
	}
	r := s.run
	done := make(chan struct{})
	s.stopping = done
	s.mu.Unlock()

	r.stopped.Store(true)
	go func() {
		defer close(done)
		r.shutdown(ctx)

		s.mu.Lock()
		s.run = nil
		s.stopping = nil
		s.mu.Unlock()
		s.log.Info("api stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// force-stop internal loops, the drain finishes in background
		r.sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context, r *runner) error {
	s.mu.Lock()
	cur := s.cfg
	deps := s.deps
	log := s.log
	s.mu.Unlock()

	if !cur.Enabled || r.stopped.Load() {
		return context.Canceled
	}

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if cur.Token == "" && !isLoopbackAddr(addr) {
		log.Warn("api running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("api listen failed", logx.String("addr", addr), logx.Any("err", err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Handler:      newEngine(cur, deps, log),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}
	defer func() { _ = srv.Close() }()

	r.setHandles(ln, srv)
	go func() {
		// bounded; Stop owns the real graceful path
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(cctx)
	}()

	log.Info("api started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cur.Token != ""),
		logx.Int("cors_origins", len(cur.CORSOrigins)),
	)

	err = srv.Serve(ln)
	r.clearHandles(srv)

	switch {
	case r.stopped.Load() || ctx.Err() != nil:
		return context.Canceled
	case err == nil || errors.Is(err, http.ErrServerClosed):
		return errors.New("api server exited unexpectedly")
	default:
		return err
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
