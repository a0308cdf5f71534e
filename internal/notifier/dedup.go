package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	dedupLookupTimeout = 25 * time.Millisecond
	dedupWriteTimeout  = 250 * time.Millisecond
)

// keyWrite asks the persist loop to record one suppression.
type keyWrite struct {
	key   string
	until time.Time
}

// dedupCache is the in-memory suppression set. The zero value is ready.
type dedupCache struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (c *dedupCache) active(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.m[key]
	return ok && now.Before(until)
}

func (c *dedupCache) remember(key string, until time.Time) {
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[string]time.Time)
	}
	c.m[key] = until
	c.mu.Unlock()
}

// trim drops expired entries, then evicts the soonest-expiring ones while
// the cache is over its cap.
func (c *dedupCache) trim(now time.Time, max int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, until := range c.m {
		if !now.Before(until) {
			delete(c.m, k)
		}
	}
	for max > 0 && len(c.m) > max {
		var (
			victim string
			first  time.Time
		)
		for k, until := range c.m {
			if victim == "" || until.Before(first) {
				victim, first = k, until
			}
		}
		delete(c.m, victim)
	}
}

// suppressed reports whether key falls inside an open suppression window.
// The memory cache answers first; the store is consulted with a short
// deadline so a slow disk cannot stall the intake path.
func (s *Service) suppressed(ctx context.Context, key string, persist bool, st storage.Store) bool {
	now := time.Now()
	if s.keys.active(key, now) {
		return true
	}
	if !persist || st == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	lctx, cancel := context.WithTimeout(ctx, dedupLookupTimeout)
	defer cancel()
	until, ok, err := st.GetDedup(lctx, key)
	if err != nil || !ok || !now.Before(until) {
		return false
	}
	s.keys.remember(key, until)
	return true
}

// markSuppressed opens the window for key and queues the durable write.
func (s *Service) markSuppressed(key string, in intake) {
	until := time.Now().Add(in.window)
	s.keys.remember(key, until)
	s.keys.trim(time.Now(), in.maxKeys)

	if !in.persist || in.pch == nil {
		return
	}
	select {
	case in.pch <- keyWrite{key: key, until: until}:
	default:
		// dropped write; memory cache still covers the window
	}
}

// dedupKeyFor derives the suppression key: the producer's explicit key when
// set, otherwise a hash over channel, target and content.
func dedupKeyFor(n kit.Notification) string {
	if k := strings.TrimSpace(n.DedupKey); k != "" {
		return k
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d:%d:%d|", n.Channel, n.Target.ChatID, n.Target.ThreadID, n.Priority)
	if n.Channel == kit.ChannelEmail && n.Email != nil {
		_, _ = fmt.Fprintf(h, "%s|%s|%s", n.Email.To, n.Email.Subject, n.Email.Body)
	} else {
		_, _ = io.WriteString(h, n.Text)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// persistLoop applies suppression writes to the store, one short deadline
// per write so shutdown never waits on a wedged disk.
func (s *Service) persistLoop(ctx context.Context, ch <-chan keyWrite, st storage.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(context.Background(), dedupWriteTimeout)
			if err := st.PutDedup(wctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}
