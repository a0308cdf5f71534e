package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

// AddSchedule registers either a cron or an interval task depending on what
// the schedule string parses to; see ParseSchedule for the accepted forms.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddScheduleOpt(name, schedule, timeout, TaskOptions{}, job)
}

// AddScheduleOpt is AddSchedule with explicit task options.
func (s *Service) AddScheduleOpt(name, schedule string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCronOpt(name, ps.Cron, timeout, opt, job)
	case SpecInterval:
		return s.AddIntervalOpt(name, ps.Every, timeout, opt, job)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddCronOpt(name, spec, timeout, TaskOptions{}, job)
}

func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	return s.addRepeating("cron", name, spec, timeout, opt, job)
}

func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddIntervalOpt(name, every, timeout, TaskOptions{}, job)
}

func (s *Service) AddIntervalOpt(name string, every time.Duration, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	return s.addRepeating("interval", name, fmt.Sprintf("@every %s", every.String()), timeout, opt, job)
}

// AddDaily fires every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name string, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	return s.AddCronOpt(name, fmt.Sprintf("%d %d * * *", m, h), timeout, TaskOptions{}, job)
}

// AddWeekly fires weekly at HH:MM on the given weekday (scheduler timezone).
func (s *Service) AddWeekly(name string, weekday time.Weekday, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	// cron weekday: Sunday=0.
	return s.AddCronOpt(name, fmt.Sprintf("%d %d * * %d", m, h, int(weekday)), timeout, TaskOptions{}, job)
}

// addRepeating upserts a repeating definition by name and registers it with
// cron when the service is running.
func (s *Service) addRepeating(kind, name, spec string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	id := fmt.Sprintf("%s:%d", kind, time.Now().UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert by name so hot-reloads and repeat registrations never duplicate.
	_ = s.dropRepeatingLocked(name)
	s.defs = append(s.defs, repeatDef{
		id:      id,
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		job:     job,
		opt:     opt.withDefaults(s.cfg),
		gate:    &overlapGate{},
	})
	if s.cr == nil {
		// Not started yet; the definition registers on the next Start.
		return id, nil
	}

	d := &s.defs[len(s.defs)-1]
	if err := s.registerWithCronLocked(d); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return id, err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("id", id), logx.String("spec", spec), logx.Duration("timeout", d.timeout)}
	if next := s.upcomingRunsLocked(spec, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("schedule registered", fields...)
	return id, nil
}

// AddOnce registers a one-time fire at the given instant. A target already in
// the past runs almost immediately on a worker instead of being rejected, so
// a reminder created "late" still notifies exactly once.
//
// Registration upserts by name: re-adding a name replaces the pending fire.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}
	if job == nil {
		return "", errors.New("job required")
	}

	// Snapshot location and default timeout without holding onceMu.
	s.mu.Lock()
	loc := s.loc
	cfg := s.cfg
	s.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	resolved := timeout
	if resolved <= 0 && cfg.DefaultTimeout > 0 {
		resolved = cfg.DefaultTimeout
	}

	e := &onceEntry{at: at.In(loc), timeout: resolved, job: job}

	s.onceMu.Lock()
	if old := s.once[name]; old != nil && old.timer != nil {
		old.timer.Stop()
	}
	// Replacing the map entry orphans the old one; its timer callback will
	// see a different entry and bail.
	s.once[name] = e
	s.armOnceLocked(name, e)
	s.onceMu.Unlock()

	return name, nil
}

// armOnceLocked starts the runtime timer for e. Call with s.onceMu held and
// s.once[name] == e.
func (s *Service) armOnceLocked(name string, e *onceEntry) {
	delay := time.Until(e.at)
	if delay < 0 {
		// Already due; fire on the next timer tick.
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() {
		// A removed or replaced definition makes this callback stale.
		s.onceMu.Lock()
		if s.once[name] != e {
			s.onceMu.Unlock()
			return
		}
		// Clear the definition before running so a restart cannot fire it twice.
		delete(s.once, name)
		s.onceMu.Unlock()

		cfg := s.snapshotConfig()
		s.enqueue(fire{
			id:      fmt.Sprintf("once:%d", time.Now().UnixNano()),
			name:    name,
			timeout: e.timeout,
			run:     e.job,
			opt:     TaskOptions{}.withDefaults(cfg),
			gate:    &overlapGate{},
		})
	})
}

// Remove unschedules everything registered under name, repeating or one-time.
// It returns true if something was removed. Safe to call when the service is
// not running; persistent definitions are removed either way.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	s.mu.Lock()
	removed := s.dropRepeatingLocked(name)
	s.mu.Unlock()

	s.onceMu.Lock()
	if e, ok := s.once[name]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.once, name)
		removed = true
	}
	s.onceMu.Unlock()

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// dropRepeatingLocked removes all defs matching name and unregisters them
// from cron when running. Call with s.mu held.
func (s *Service) dropRepeatingLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	kept := s.defs[:0]
	for i := range s.defs {
		d := s.defs[i]
		if d.name != name {
			kept = append(kept, d)
			continue
		}
		if s.cr != nil && d.entryID != 0 {
			s.cr.Remove(d.entryID)
		}
		removed = true
	}
	s.defs = kept
	return removed
}

func (s *Service) registerWithCronLocked(d *repeatDef) error {
	eid, err := s.cr.AddFunc(d.spec, func() {
		if d.opt.Overlap == OverlapSkipIfRunning && d.gate.busy() {
			s.log.Debug("schedule skipped (previous run still active)", logx.String("task", d.name))
			s.publishEvent("task.skipped", TaskEvent{ID: d.id, Name: d.name, Started: time.Now(), Error: "overlap_skip"})
			return
		}
		s.enqueue(fire{id: d.id, name: d.name, timeout: d.timeout, run: d.job, opt: d.opt, gate: d.gate})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}

// rebuildCronLocked tears down and rebuilds cron with the current location,
// re-registering every definition. Call with s.mu held.
func (s *Service) rebuildCronLocked() {
	if s.cr != nil {
		<-s.cr.Stop().Done()
	}
	loc := s.locationLocked()
	s.loc = loc
	s.cr = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.defs {
		_ = s.registerWithCronLocked(&s.defs[i])
	}
	s.cr.Start()
	s.log.Info("cron rebuilt", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// rearmOnceTimers recreates runtime timers from the persistent one-time
// definitions after a (re)start.
func (s *Service) rearmOnceTimers() {
	s.onceMu.Lock()
	defer s.onceMu.Unlock()
	for name, e := range s.once {
		if e.timer != nil {
			// Straggler from a partial stop.
			e.timer.Stop()
		}
		if e.job == nil {
			delete(s.once, name)
			continue
		}
		s.armOnceLocked(name, e)
	}
}

// upcomingRunsLocked renders a short list of the next run times for a cron
// spec, empty unless debug logging is on. Call with s.mu held.
func (s *Service) upcomingRunsLocked(spec string, n int) string {
	if n <= 0 || !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.locationLocked()
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	var b strings.Builder
	t := time.Now().In(loc)
	for i := 0; i < n; i++ {
		if t = sched.Next(t); t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
