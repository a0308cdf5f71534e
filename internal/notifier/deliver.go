package notifier

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"remindbot/internal/mail"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func (s *Service) workerLoop(ctx context.Context, q <-chan delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-q:
			if !ok {
				return
			}
			s.process(ctx, d)
		}
	}
}

// process pushes one delivery through rate limit, send and retry. Success
// lands in history and on the bus; exhausted retries publish a failure.
func (s *Service) process(ctx context.Context, d delivery) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	attempts := 1 + max(cfg.RetryMax, 0)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := s.deliver(sctx, d.note)
		cancel()
		if err == nil {
			s.appendHistory(d.note)
			s.publish("notifier.sent", d.note, d.key, "")
			return
		}
		lastErr = err
		s.log.Debug("delivery failed",
			logx.String("channel", d.note.Channel),
			logx.Int("attempt", attempt),
			logx.Int("max", attempts),
			logx.Err(err))
		if attempt < attempts && !s.sleepFor(ctx, retryDelay(cfg, attempt)) {
			return
		}
	}

	s.publish("notifier.failed", d.note, d.key, lastErr.Error())
	s.log.Warn("delivery gave up",
		logx.String("channel", d.note.Channel),
		logx.Int("attempts", attempts),
		logx.Err(lastErr))
}

func (s *Service) deliver(ctx context.Context, n kit.Notification) error {
	switch n.Channel {
	case kit.ChannelEmail:
		if s.sender == nil {
			return errors.New("no mail sender configured")
		}
		return s.sender.Send(ctx, mail.Message{
			To:      n.Email.To,
			Subject: n.Email.Subject,
			Body:    n.Email.Body,
		})
	default:
		if s.adapter == nil {
			return errors.New("no telegram adapter configured")
		}
		_, err := s.adapter.SendText(ctx, n.Target, prefixForPriority(n.Priority)+n.Text, n.Options)
		return err
	}
}

// sleepFor waits out d, reporting false when ctx ends the wait early.
func (s *Service) sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	default:
		return ""
	}
}

// retryDelay is exponential backoff from RetryBase with ±30% jitter, never
// above RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	base, ceil := cfg.RetryBase, cfg.RetryMaxDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if ceil <= 0 {
		ceil = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt && d < ceil; i++ {
		d *= 2
	}
	d = min(d, ceil)
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return max(min(d, ceil), 0)
}
