package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig mirrors important log lines into a chat. MinLevel defaults
// to WARN; RatePerSec caps the mirror so a log storm cannot flood the chat.
type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const (
	mirrorQueueCap = 256
	mirrorTextCap  = 3500
)

// Service owns the sink set and hot-swaps the root logger on Apply.
// Loggers handed out via Logger() observe swaps immediately.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	// Telegram mirror: selected lines get reposted into a chat.
	sender       kit.Adapter
	mirrorQ      chan mirrorMsg
	mirrorOnce   sync.Once
	mirrorCancel context.CancelFunc
	mirrorWG     sync.WaitGroup

	// guarded by mu
	chatID   int64
	threadID int
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

type mirrorMsg struct {
	to   kit.ChatTarget
	text string
}

// New creates the logging service, applies cfg immediately, and returns the
// service plus a root Logger bound to it.
func New(cfg Config, sender kit.Adapter) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{
		cfg:      cfg,
		sender:   sender,
		mirrorQ:  make(chan mirrorMsg, mirrorQueueCap),
		threadID: cfg.Telegram.ThreadID,
	}

	// A console root carries logging until Apply builds the real sink set.
	s.root.Store(consoleRoot(parseLevel(cfg.Level, zerolog.InfoLevel)))
	s.Apply(cfg)

	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl, ok := s.root.Load().(zerolog.Logger); ok {
		return zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chatID
	if threadID != 0 {
		s.threadID = threadID
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	cancel := s.mirrorCancel
	s.file, s.mirrorCancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.mirrorWG.Wait()
	}
	if f != nil {
		_ = f.Close()
	}
	return nil
}

// Apply swaps outputs and levels at runtime. Safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.applyMirrorKnobs(cfg.Telegram)

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, consoleSink(Stdout()))
	}
	if cfg.File.Enabled {
		if f := openLogFile(cfg.File.Path); f != nil {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled {
		s.startMirrorOnce()
		writers = append(writers, &mirrorSink{svc: s})
		if s.chatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: telegram logging enabled but no target chat is set (telegram.group_log missing)")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleSink(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(zl)
}

func (s *Service) applyMirrorKnobs(tc TelegramConfig) {
	s.minLevel = parseLevel(tc.MinLevel, zerolog.WarnLevel)
	rps := max(tc.RatePerSec, 1)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if tc.ThreadID != 0 {
		s.threadID = tc.ThreadID
	}
}

func openLogFile(path string) *os.File {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "./remindbot.log"
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		return nil
	}
	return f
}

func (s *Service) startMirrorOnce() {
	s.mirrorOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.mirrorCancel = cancel
		s.mirrorWG.Add(1)
		go func() {
			defer s.mirrorWG.Done()
			s.mirrorLoop(ctx)
		}()
	})
}

func consoleRoot(lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(consoleSink(Stdout())).Level(lvl).With().Timestamp().Logger()
}

func consoleSink(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	// The caller field already holds file:line; pass it through untouched.
	cw.FormatCaller = func(v any) string {
		s, _ := v.(string)
		return s
	}
	return cw
}

func (s *Service) mirrorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.mirrorQ:
			if s.sender == nil {
				continue
			}
			_, _ = s.sender.SendText(ctx, m.to, m.text, &kit.SendOptions{DisablePreview: true})
		}
	}
}

// queueMirror never blocks; the mirror drops lines under pressure.
func (s *Service) queueMirror(to kit.ChatTarget, text string) {
	select {
	case s.mirrorQ <- mirrorMsg{to: to, text: text}:
	default:
	}
}

// mirrorSink is a zerolog sink; WriteLevel lets it honor MinLevel without
// re-parsing the level out of the JSON line.
type mirrorSink struct{ svc *Service }

func (w *mirrorSink) Write(p []byte) (int, error) {
	// Level defaults to info when WriteLevel isn't used.
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *mirrorSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}

	s.mu.Lock()
	to := kit.ChatTarget{ChatID: s.chatID, ThreadID: s.threadID}
	lim := s.limiter
	floor := s.minLevel
	s.mu.Unlock()

	if to.ChatID == 0 || s.sender == nil || lim == nil || level < floor || !lim.Allow() {
		return len(p), nil
	}
	if msg := renderTelegramLine(p); msg != "" {
		s.queueMirror(to, msg)
	}
	return len(p), nil
}

// renderTelegramLine turns one zerolog JSON line into a short human-readable
// chat message. Non-JSON input is mirrored raw.
func renderTelegramLine(p []byte) string {
	line := strings.TrimSpace(string(p))

	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return truncate(line, mirrorTextCap)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)
	if msg == "" {
		msg, _ = m["msg"].(string)
	}

	var b strings.Builder
	if lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	b.WriteString(msg)

	for k, v := range m {
		switch k {
		case "time", "level", "message", "msg":
			continue
		case "stack":
			fmt.Fprintf(&b, "\n- stack=\n%s", truncate(fmt.Sprint(v), 900))
		default:
			fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(v), 600))
		}
	}
	return truncate(b.String(), mirrorTextCap)
}

func truncate(s string, maxN int) string {
	switch {
	case maxN <= 0 || len(s) <= maxN:
		return s
	case maxN < 10:
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}

// Stdout returns the stdout sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the stderr sink.
func Stderr() io.Writer { return os.Stderr }
