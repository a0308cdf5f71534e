package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Scheduler is the slice of the timer service the reminder service needs.
type Scheduler interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
	Enabled() bool
}

// Notifier hands rendered notifications to the delivery pipeline.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
	// ChannelReady reports whether a delivery channel is configured.
	ChannelReady(channel string) bool
}

// Auditor is the slice of the storage layer fire attempts are recorded in.
// The surfaces audit add/remove themselves; only the service sees fires.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Service owns the reminder list and keeps it in lockstep with the
// scheduler: every stored reminder has exactly one registered fire, named
// "reminder:<id>", and vice versa.
type Service struct {
	log   logx.Logger
	bus   eventbus.Bus
	sched Scheduler
	not   Notifier
	store *Store

	mu            sync.Mutex
	cfg           Config
	defaultTarget kit.ChatTarget
	audit         Auditor
}

// New builds the service. bus may be nil.
func New(cfg Config, log logx.Logger, bus eventbus.Bus, sched Scheduler, not Notifier) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:   log,
		bus:   bus,
		sched: sched,
		not:   not,
		store: NewStore(cfg.maxReminders()),
		cfg:   cfg,
	}
}

// SetDefaultTarget sets the fallback telegram destination used when a
// reminder was created without one (e.g. over the HTTP API).
func (s *Service) SetDefaultTarget(t kit.ChatTarget) {
	s.mu.Lock()
	s.defaultTarget = t
	s.mu.Unlock()
}

// SetAuditSink wires the audit trail. A nil sink disables fire records.
func (s *Service) SetAuditSink(a Auditor) {
	s.mu.Lock()
	s.audit = a
	s.mu.Unlock()
}

// Apply updates runtime limits on config reload.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	changed := s.cfg.MaxReminders != cfg.MaxReminders
	s.cfg = cfg
	s.mu.Unlock()
	if changed {
		s.store.SetLimit(cfg.maxReminders())
		s.log.Info("reminder limit updated", logx.Int("max", cfg.maxReminders()))
	}
}

// Add validates r, stores it and registers its fire with the scheduler. The
// returned reminder carries the assigned id. A one-shot target instant in
// the past is accepted and fires almost immediately; when both At and Repeat
// are set the schedule wins.
func (s *Service) Add(ctx context.Context, r Reminder) (Reminder, error) {
	_ = ctx
	r.Title = strings.TrimSpace(r.Title)
	r.Message = strings.TrimSpace(r.Message)
	r.Repeat = strings.TrimSpace(r.Repeat)
	if r.Title == "" {
		return Reminder{}, errors.New("title required")
	}
	if r.Repeat == "" && r.At.IsZero() {
		return Reminder{}, errors.New("time required")
	}

	switch strings.ToLower(strings.TrimSpace(r.Channel)) {
	case "", kit.ChannelTelegram:
		r.Channel = kit.ChannelTelegram
	case kit.ChannelEmail:
		r.Channel = kit.ChannelEmail
		if s.not == nil || !s.not.ChannelReady(kit.ChannelEmail) {
			return Reminder{}, errors.New("email delivery is not configured")
		}
	default:
		return Reminder{}, fmt.Errorf("unknown channel %q", r.Channel)
	}

	if s.sched == nil || !s.sched.Enabled() {
		return Reminder{}, errors.New("scheduler is disabled")
	}

	r.ID = uuid.New()
	r.CreatedAt = time.Now()

	if err := s.store.Append(r); err != nil {
		return Reminder{}, err
	}

	name := schedName(r.ID)
	var err error
	if r.Repeating() {
		_, err = s.sched.AddSchedule(name, r.Repeat, 0, s.fireJob(r.ID))
	} else {
		_, err = s.sched.AddOnce(name, r.At, 0, s.fireJob(r.ID))
	}
	if err != nil {
		// Keep the list and the scheduler in lockstep.
		_, _ = s.store.Remove(r.ID)
		return Reminder{}, fmt.Errorf("schedule reminder: %w", err)
	}

	s.publish("reminder.created", r, "")
	fields := []logx.Field{
		logx.String("id", ShortID(r.ID)),
		logx.String("title", r.Title),
		logx.String("channel", r.Channel),
	}
	if r.Repeating() {
		fields = append(fields, logx.String("repeat", r.Repeat))
	} else {
		fields = append(fields, logx.Time("at", r.At))
	}
	s.log.Info("reminder added", fields...)
	return r, nil
}

// Remove deletes the reminder matching id (full id or unique prefix) and
// cancels its pending fire.
func (s *Service) Remove(ctx context.Context, id string) (Reminder, error) {
	_ = ctx
	r, err := s.store.ByPrefix(id)
	if err != nil {
		return Reminder{}, err
	}
	if s.sched != nil {
		s.sched.Remove(schedName(r.ID))
	}
	removed, ok := s.store.Remove(r.ID)
	if !ok {
		// Fired or removed concurrently after the lookup.
		return Reminder{}, ErrNotFound
	}
	s.publish("reminder.removed", removed, "")
	s.log.Info("reminder removed", logx.String("id", ShortID(removed.ID)), logx.String("title", removed.Title))
	return removed, nil
}

// Get resolves a reminder from a full id or a unique id prefix.
func (s *Service) Get(id string) (Reminder, error) {
	return s.store.ByPrefix(id)
}

// List returns all reminders in creation order.
func (s *Service) List() []Reminder {
	return s.store.List()
}

// Len returns the number of stored reminders.
func (s *Service) Len() int {
	return s.store.Len()
}

// Snapshot summarizes the service for status surfaces.
func (s *Service) Snapshot() Snapshot {
	items := s.store.List()
	return Snapshot{Count: len(items), Limit: s.store.Limit(), Items: items}
}

func schedName(id uuid.UUID) string { return "reminder:" + id.String() }

func (s *Service) fireJob(id uuid.UUID) func(ctx context.Context) error {
	return func(ctx context.Context) error { return s.fire(ctx, id) }
}

// fire runs on a scheduler worker when a reminder comes due. Handoff errors
// are returned so the scheduler's retry policy applies; the reminder stays in
// the list until the notifier accepts it.
func (s *Service) fire(ctx context.Context, id uuid.UUID) error {
	r, ok := s.store.Get(id)
	if !ok {
		// Removed after the fire was queued; nothing to deliver.
		return nil
	}
	start := time.Now()

	n := kit.Notification{
		Channel:  r.Channel,
		DedupKey: occurrenceKey(r),
		Text:     r.NotifyText(),
	}
	if r.Channel == kit.ChannelEmail {
		body := r.Message
		if body == "" {
			body = r.Title
		}
		n.Email = &kit.EmailMessage{To: r.EmailTo, Subject: r.Title, Body: body}
	} else {
		t := r.Target
		if t.IsZero() {
			s.mu.Lock()
			t = s.defaultTarget
			s.mu.Unlock()
		}
		if t.IsZero() {
			err := errors.New("no delivery target")
			s.publish("reminder.failed", r, err.Error())
			s.log.Error("reminder has no delivery target", logx.String("id", ShortID(r.ID)), logx.String("title", r.Title))
			s.auditFire(r, 0, err, time.Since(start))
			return err
		}
		n.Target = t
	}

	if s.not == nil {
		return errors.New("notifier unavailable")
	}
	if err := s.not.Notify(ctx, n); err != nil {
		s.publish("reminder.failed", r, err.Error())
		s.log.Warn("reminder handoff failed", logx.String("id", ShortID(r.ID)), logx.Err(err))
		s.auditFire(r, n.Target.ChatID, err, time.Since(start))
		return err
	}

	if !r.Repeating() {
		// One-shots are consumed by a successful handoff.
		_, _ = s.store.Remove(r.ID)
	}
	s.publish("reminder.fired", r, "")
	s.log.Info("reminder fired", logx.String("id", ShortID(r.ID)), logx.String("title", r.Title), logx.String("channel", r.Channel))
	s.auditFire(r, n.Target.ChatID, nil, time.Since(start))
	return nil
}

// auditFire appends one fire attempt to the audit trail, best-effort on a
// detached context so a spent worker deadline cannot cut the write off.
// Scheduler-level retries each append their own record.
func (s *Service) auditFire(r Reminder, chatID int64, opErr error, took time.Duration) {
	s.mu.Lock()
	sink := s.audit
	s.mu.Unlock()
	if sink == nil {
		return
	}
	e := storage.AuditEntry{
		At:     time.Now(),
		ChatID: chatID,
		Source: "scheduler",
		Action: "reminder.fire",
		Target: ShortID(r.ID),
		OK:     opErr == nil,
		TookMS: took.Milliseconds(),
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.AppendAudit(cctx, e); err != nil {
		s.log.Debug("fire audit append failed", logx.Err(err))
	}
}

// occurrenceKey dedups per fire occurrence, not per content, so reminders
// with identical texts never suppress each other. One-shot occurrences key on
// the target instant and stay stable across handoff retries.
func occurrenceKey(r Reminder) string {
	occ := r.At
	if r.Repeating() || occ.IsZero() {
		occ = time.Now()
	}
	return schedName(r.ID) + "@" + strconv.FormatInt(occ.UnixNano(), 10)
}

func (s *Service) publish(typ string, r Reminder, errText string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ReminderEvent{
		ID:      r.ID.String(),
		Title:   r.Title,
		At:      r.At,
		Repeat:  r.Repeat,
		Channel: r.Channel,
		Error:   errText,
	}})
}
