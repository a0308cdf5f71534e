package config

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"

	"github.com/fsnotify/fsnotify"
)

const (
	// reloadDebounce absorbs editor write bursts (truncate+write, atomic
	// rename) so a save parses the file once, not once per syscall.
	reloadDebounce = 250 * time.Millisecond

	watchBackoffBase = 250 * time.Millisecond
	watchBackoffMax  = 5 * time.Second
)

// Watch blocks until ctx is done, reloading the config whenever the file
// changes. fsnotify watchers can wedge (stop delivering, close their
// channels) on some platforms, so a broken watcher is rebuilt with jittered
// backoff instead of ending the loop.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	retry := watchBackoff{base: watchBackoffBase, max: watchBackoffMax}
	var deb reloadDebouncer
	defer deb.stop()

	for ctx.Err() == nil {
		w, err := newDirWatcher(dir)
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config watch setup failed", logx.Any("err", err), logx.String("dir", dir))
			}
			if !sleepCtx(ctx, retry.next()) {
				return nil
			}
			continue
		}

		retry.reset()
		if !m.log.IsZero() {
			m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
		}

		m.consumeEvents(ctx, w, file, &deb)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}

		wait := retry.next()
		if !m.log.IsZero() {
			m.log.Warn("config watcher stopped; restarting",
				logx.String("dir", dir),
				logx.String("file", file),
				logx.Duration("backoff", wait),
			)
		}
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
	return nil
}

func newDirWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// consumeEvents drains watcher channels until ctx ends or the watcher breaks.
func (m *ConfigManager) consumeEvents(ctx context.Context, w *fsnotify.Watcher, file string, deb *reloadDebouncer) {
	const anyChange = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			// The directory is watched, not the file, so atomic-rename saves
			// still produce events. Match by basename.
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op&anyChange != 0 {
				if !m.log.IsZero() {
					m.log.Debug("config change detected; scheduling reload", logx.String("path", m.path))
				}
				deb.schedule(func() { m.reload(ctx) })
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			lower := strings.ToLower(err.Error())
			// Overflow means events were missed; reload once instead of
			// trusting the backlog. Substring match because the sentinel
			// moved between fsnotify versions.
			if strings.Contains(lower, "overflow") {
				if !m.log.IsZero() {
					m.log.Warn("config watch overflow; forcing reload", logx.Any("err", err))
				}
				deb.schedule(func() { m.reload(ctx) })
				continue
			}
			if !m.log.IsZero() {
				m.log.Warn("config watch error", logx.Any("err", err))
			}
			// Some backends report closure as an error instead of closing
			// their channels.
			if strings.Contains(lower, "closed") {
				return
			}
		}
	}
}

// reload parses, validates, commits and publishes one file change. Any
// failure leaves the committed config untouched.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil || cfg == nil {
		if !m.log.IsZero() {
			reason := "config is nil"
			if err != nil {
				reason = err.Error()
			}
			m.log.Warn("config parse failed", logx.String("path", m.path), logx.String("err", reason))
		}
		return
	}

	h := hashConfig(cfg)
	if h != 0 && h == m.committedHash() {
		if !m.log.IsZero() {
			m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		}
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Any("err", err))
			}
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	if !m.log.IsZero() {
		m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
	}
}

// reloadDebouncer runs the latest scheduled fn once per quiet period.
type reloadDebouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

func (d *reloadDebouncer) schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(reloadDebounce, fn)
}

func (d *reloadDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// sleepCtx waits for d, reporting false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// watchBackoff doubles from base to max with up to 50% jitter.
type watchBackoff struct {
	base, max time.Duration
	cur       time.Duration
}

func (b *watchBackoff) next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.base
	}
	wait := b.cur + time.Duration(rand.Int63n(int64(b.cur/2)+1))
	if b.cur < b.max {
		if b.cur *= 2; b.cur > b.max {
			b.cur = b.max
		}
	}
	return wait
}

func (b *watchBackoff) reset() { b.cur = b.base }
