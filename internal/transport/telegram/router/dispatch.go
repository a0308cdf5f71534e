package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// DispatchLoop pumps updates into the worker pool until ctx ends or the
// updates channel closes. It always returns nil; routing problems are
// answered in-chat rather than surfaced as errors.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(2, runtime.NumCPU())

	sup := NewSupervisor(ctx,
		WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	if reg := m.supervisorRegistry(); reg != nil {
		reg.Set("telegram.router", sup)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// Flip running off first so offer degrades to "busy" replies.
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}
	for i := 0; i < workers; i++ {
		m.startWorker(sup, i)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		if reg := m.supervisorRegistry(); reg != nil {
			reg.Delete("telegram.router")
		}
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			switch up.Kind {
			case kit.UpdateMessage:
				m.handleMessage(ctx, up)
			case kit.UpdateCallback:
				m.handleCallback(ctx, up)
			}
		}
	}
}

func (m *CommandManager) startWorker(sup *Supervisor, idx int) {
	name := "command.worker." + strconv.Itoa(idx)
	sup.GoRestart(name, func(ctx context.Context) error {
		m.log.Debug("command worker started", logx.Int("worker", idx))
		defer m.log.Debug("command worker stopped", logx.Int("worker", idx))
		for {
			select {
			case <-ctx.Done():
				return nil
			case job, ok := <-m.jobs:
				if !ok {
					return nil
				}
				if job != nil {
					m.runJob(idx, job)
				}
			}
		}
	},
		WithRestartBackoff(200*time.Millisecond, 5*time.Second),
		WithPublishFirstError(true),
		WithStopOnCleanExit(true),
	)
}

// runJob insulates the worker loop. Middleware already recovers handler
// panics; this is the backstop for the glue around them.
func (m *CommandManager) runJob(idx int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

// offer enqueues without blocking. The recover absorbs sends on a jobs
// channel that shutdown already closed.
func (m *CommandManager) offer(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) handleMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	// strip the @botname suffix of group mentions
	if w, _, ok := strings.Cut(word, "@"); ok {
		word = w
	}

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	res, known := m.snapshotRegistry().resolve(word, parts[1:])
	switch {
	case !known:
		_, _ = m.adapter.SendText(root, chat, "unknown command, try /help", nil)
	case res.cmd == nil:
		// container node: show its help instead
		_, _ = m.adapter.SendText(root, chat, m.helpText(res.path), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	default:
		m.dispatch(root, up, *res.cmd, res.path, res.rest)
	}
}

func (m *CommandManager) dispatch(root context.Context, up kit.Update, cmd Command, path []string, args []string) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	owners := m.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && !slices.Contains(owners, msg.FromID) {
		_, _ = m.adapter.SendText(root, chat, "unauthorized", nil)
		return
	}

	pos, flags, bools := parseFlags(args)
	rid := newReqID()
	req := &Request{
		Update:      up,
		Chat:        chat,
		FromID:      msg.FromID,
		Path:        path,
		Command:     cmd.Route,
		Args:        pos,
		RawArgs:     args,
		Flags:       flags,
		BoolFlags:   bools,
		ReqID:       rid,
		Adapter:     m.adapter,
		Config:      m.cfgm.Get(),
		Logger:      m.requestLogger(rid, chat, msg.FromID, cmd.Route),
		Services:    m.serv,
		OwnerUserID: owners,
	}

	run := Chain(cmd.Handle, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(cmd.Timeout))
	if !m.offer(func() { _ = run(root, req) }) {
		_, _ = m.adapter.SendText(root, chat, "busy, try again", nil)
	}
}

func (m *CommandManager) handleCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	feature, rest, ok := strings.Cut(strings.TrimSpace(cb.Data), ":")
	if !ok {
		return
	}
	action, payload, _ := strings.Cut(rest, ":")

	route, ok := m.snapshotRegistry().callback(feature, action)
	if !ok {
		return
	}

	owners := m.ownersSnapshot()
	if route.Access == CallbackAccessOwnerOnly && !slices.Contains(owners, cb.FromID) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "forbidden")
		return
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	name := "cb:" + feature + ":" + action
	rid := newReqID()
	req := &Request{
		Update:      up,
		Chat:        chat,
		FromID:      cb.FromID,
		Command:     name,
		Payload:     payload,
		ReqID:       rid,
		Adapter:     m.adapter,
		Config:      m.cfgm.Get(),
		Logger:      m.requestLogger(rid, chat, cb.FromID, name),
		Services:    m.serv,
		OwnerUserID: owners,
	}

	run := Chain(
		func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) },
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(route.Timeout),
	)
	if !m.offer(func() {
		_ = run(root, req)
		// clears the client's loading spinner
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "busy")
	}
}

func (m *CommandManager) requestLogger(rid string, chat kit.ChatTarget, from int64, command string) logx.Logger {
	return m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", chat.ChatID),
		logx.Int("thread_id", chat.ThreadID),
		logx.Int64("from_id", from),
		logx.String("cmd", command),
	)
}
