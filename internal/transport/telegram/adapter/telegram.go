package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

const (
	defaultPollTimeout = 10 * time.Second
	apiCallTimeout     = 8 * time.Second
	stopGrace          = 2 * time.Second
	dropReportEvery    = 5 * time.Second
)

// Adapter runs a telebot long-poll loop and translates between telebot types
// and the transport kit types the rest of the app speaks.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	// out holds the current consumer channel as chan<- kit.Update. A typed
	// nil is stored up front so the dynamic type never changes.
	out atomic.Value

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor // owns poll loop, drop reporter, stop watcher

	// dropped counts updates the consumer was too slow to take. Totals are
	// logged on an interval, never per update.
	dropped uint64

	menuMu  sync.Mutex
	menuSum uint64
	http    *http.Client
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:  cfg,
		log:  log,
		bot:  bot,
		http: &http.Client{Timeout: apiCallTimeout},
	}
	var none chan<- kit.Update
	a.out.Store(none)
	a.bindHandlers()
	return a, nil
}

// Supervisor exposes the adapter's internal supervisor for health reporting.
// It is nil while the adapter is stopped.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// polling trouble stays local; the app decides what to do about it
		rtsup.WithCancelOnError(false),
	)
	a.sup = sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		a.reportDrops(c, cap(out))
	})

	// telebot knows nothing about contexts; bridge cancellation to its Stop.
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// bot.Start can return on its own in some failure modes. The restart
	// wrapper brings polling back instead of leaving the bot deaf.
	sup.GoRestart0("telebot.poll", a.pollOnce,
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) pollOnce(context.Context) {
	a.log.Info("polling started")
	if a.bot != nil {
		a.bot.Start()
	}
	a.log.Info("polling stopped")
}

func (a *Adapter) reportDrops(ctx context.Context, chanCap int) {
	flush := func() {
		if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", chanCap))
		}
	}
	t := time.NewTicker(dropReportEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-t.C:
			flush()
		}
	}
}

// Stop shuts polling down without letting a pending long-poll hold the app
// hostage: after a short grace window it abandons the wait.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	wasRunning := a.running
	a.sup = nil
	a.running = false
	var none chan<- kit.Update
	a.out.Store(none)
	a.runMu.Unlock()

	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", atomic.LoadUint64(&a.dropped)))
	if !wasRunning {
		a.log.Debug("telegram stop called but not running")
		return nil
	}
	if sup == nil {
		return nil
	}
	sup.Cancel()

	// bot.Stop should be quick; keep it off the shutdown path regardless.
	if a.bot != nil {
		go a.bot.Stop()
	}

	grace := stopGrace
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	err := sup.Wait(wctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		a.log.Warn("telegram stop timed out", logx.Err(err))
	case sup.Context().Err() != nil:
		// Expected after Cancel; a goroutine surfaced the cancellation.
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	default:
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}
