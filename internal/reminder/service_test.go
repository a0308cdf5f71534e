package reminder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// fakeSched records registrations and lets tests trigger fires by hand.
type fakeSched struct {
	mu      sync.Mutex
	enabled bool
	failAdd bool
	once    map[string]func(ctx context.Context) error
	onceAt  map[string]time.Time
	repeats map[string]func(ctx context.Context) error
	removed []string
}

func newFakeSched() *fakeSched {
	return &fakeSched{
		enabled: true,
		once:    map[string]func(ctx context.Context) error{},
		onceAt:  map[string]time.Time{},
		repeats: map[string]func(ctx context.Context) error{},
	}
}

func (f *fakeSched) AddOnce(name string, at time.Time, _ time.Duration, job func(ctx context.Context) error) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return "", errors.New("register failed")
	}
	f.once[name] = job
	f.onceAt[name] = at
	return name, nil
}

func (f *fakeSched) AddSchedule(name, _ string, _ time.Duration, job func(ctx context.Context) error) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return "", errors.New("register failed")
	}
	f.repeats[name] = job
	return name, nil
}

func (f *fakeSched) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	_, ok1 := f.once[name]
	_, ok2 := f.repeats[name]
	delete(f.once, name)
	delete(f.onceAt, name)
	delete(f.repeats, name)
	return ok1 || ok2
}

func (f *fakeSched) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// job returns the single registered fire func, one-shot or repeating.
func (f *fakeSched) job(t *testing.T) func(ctx context.Context) error {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.once)+len(f.repeats) != 1 {
		t.Fatalf("want exactly one registration, have %d once and %d repeating", len(f.once), len(f.repeats))
	}
	for _, j := range f.once {
		return j
	}
	for _, j := range f.repeats {
		return j
	}
	return nil
}

// fakeNotifier captures handed-off notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	email    bool
	failNext error
	sent     []kit.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n kit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) ChannelReady(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channel == kit.ChannelEmail {
		return f.email
	}
	return true
}

func (f *fakeNotifier) last(t *testing.T) kit.Notification {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("no notification handed off")
	}
	return f.sent[len(f.sent)-1]
}

func newTestService(fs *fakeSched, fn *fakeNotifier) *Service {
	return New(Config{}, logx.Nop(), nil, fs, fn)
}

func TestAddOneShotFireConsumes(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fn := &fakeNotifier{}
	svc := newTestService(fs, fn)

	at := time.Now().Add(time.Hour)
	r, err := svc.Add(context.Background(), Reminder{
		Title:   "standup",
		Message: "eng sync in 5",
		At:      at,
		Target:  kit.ChatTarget{ChatID: 77},
	})
	if err != nil {
		t.Fatalf("Add = %v", err)
	}
	if r.Channel != kit.ChannelTelegram {
		t.Fatalf("Channel = %q, want telegram", r.Channel)
	}
	name := "reminder:" + r.ID.String()
	fs.mu.Lock()
	gotAt, ok := fs.onceAt[name]
	fs.mu.Unlock()
	if !ok || !gotAt.Equal(at) {
		t.Fatalf("scheduler registration %q at %v, want %v", name, gotAt, at)
	}

	if err := fs.job(t)(context.Background()); err != nil {
		t.Fatalf("fire = %v", err)
	}
	n := fn.last(t)
	if n.Target.ChatID != 77 {
		t.Fatalf("Target.ChatID = %d, want 77", n.Target.ChatID)
	}
	if !strings.Contains(n.Text, "standup") || !strings.Contains(n.Text, "eng sync in 5") {
		t.Fatalf("Text = %q, want title and message", n.Text)
	}
	if n.DedupKey == "" {
		t.Fatalf("DedupKey empty")
	}
	if got := svc.Len(); got != 0 {
		t.Fatalf("Len after one-shot fire = %d, want 0", got)
	}
}

func TestAddAcceptsPastTarget(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	svc := newTestService(fs, &fakeNotifier{})

	at := time.Now().Add(-time.Hour)
	r, err := svc.Add(context.Background(), Reminder{Title: "late", At: at, Target: kit.ChatTarget{ChatID: 1}})
	if err != nil {
		t.Fatalf("Add with past target = %v", err)
	}
	fs.mu.Lock()
	gotAt := fs.onceAt["reminder:"+r.ID.String()]
	fs.mu.Unlock()
	if !gotAt.Equal(at) {
		t.Fatalf("registered at = %v, want %v", gotAt, at)
	}
}

func TestAddRepeatingSurvivesFire(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fn := &fakeNotifier{}
	svc := newTestService(fs, fn)

	r, err := svc.Add(context.Background(), Reminder{Title: "water", Repeat: "45m", Target: kit.ChatTarget{ChatID: 9}})
	if err != nil {
		t.Fatalf("Add = %v", err)
	}
	fs.mu.Lock()
	_, ok := fs.repeats["reminder:"+r.ID.String()]
	fs.mu.Unlock()
	if !ok {
		t.Fatalf("repeating registration missing")
	}

	if err := fs.job(t)(context.Background()); err != nil {
		t.Fatalf("fire = %v", err)
	}
	if got := svc.Len(); got != 1 {
		t.Fatalf("Len after repeating fire = %d, want 1", got)
	}

	// Distinct occurrences of the same reminder carry distinct dedup keys.
	first := fn.last(t).DedupKey
	if err := fs.job(t)(context.Background()); err != nil {
		t.Fatalf("second fire = %v", err)
	}
	if second := fn.last(t).DedupKey; second == first {
		t.Fatalf("repeating occurrences share dedup key %q", first)
	}
}

func TestAddRollsBackStoreOnRegisterFailure(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fs.failAdd = true
	svc := newTestService(fs, &fakeNotifier{})

	_, err := svc.Add(context.Background(), Reminder{Title: "x", At: time.Now().Add(time.Minute)})
	if err == nil {
		t.Fatalf("Add with failing scheduler succeeded")
	}
	if got := svc.Len(); got != 0 {
		t.Fatalf("Len after rollback = %d, want 0", got)
	}
}

func TestAddRejectsWhenSchedulerDisabled(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fs.enabled = false
	svc := newTestService(fs, &fakeNotifier{})

	_, err := svc.Add(context.Background(), Reminder{Title: "x", At: time.Now().Add(time.Minute)})
	if err == nil || !strings.Contains(err.Error(), "scheduler") {
		t.Fatalf("Add err = %v, want scheduler disabled", err)
	}
}

func TestAddEmailChannel(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fn := &fakeNotifier{}
	svc := newTestService(fs, fn)

	// Unconfigured mail rejects at add time.
	_, err := svc.Add(context.Background(), Reminder{Title: "pay rent", At: time.Now().Add(time.Hour), Channel: "email"})
	if err == nil || !strings.Contains(err.Error(), "email") {
		t.Fatalf("Add email err = %v, want not-configured", err)
	}

	fn.mu.Lock()
	fn.email = true
	fn.mu.Unlock()
	_, err = svc.Add(context.Background(), Reminder{
		Title:   "pay rent",
		Message: "transfer before noon",
		At:      time.Now().Add(time.Hour),
		Channel: "email",
		EmailTo: "me@example.org",
	})
	if err != nil {
		t.Fatalf("Add email = %v", err)
	}

	if err := fs.job(t)(context.Background()); err != nil {
		t.Fatalf("fire = %v", err)
	}
	n := fn.last(t)
	if n.Channel != kit.ChannelEmail || n.Email == nil {
		t.Fatalf("notification = %+v, want email payload", n)
	}
	if n.Email.To != "me@example.org" || n.Email.Subject != "pay rent" || n.Email.Body != "transfer before noon" {
		t.Fatalf("email payload = %+v", *n.Email)
	}
}

func TestAddRejectsUnknownChannel(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeSched(), &fakeNotifier{})
	_, err := svc.Add(context.Background(), Reminder{Title: "x", At: time.Now().Add(time.Minute), Channel: "pigeon"})
	if err == nil || !strings.Contains(err.Error(), "pigeon") {
		t.Fatalf("Add err = %v, want unknown channel", err)
	}
}

func TestRemoveCancelsSchedule(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	svc := newTestService(fs, &fakeNotifier{})

	r, err := svc.Add(context.Background(), Reminder{Title: "x", At: time.Now().Add(time.Hour), Target: kit.ChatTarget{ChatID: 5}})
	if err != nil {
		t.Fatalf("Add = %v", err)
	}

	removed, err := svc.Remove(context.Background(), ShortID(r.ID))
	if err != nil {
		t.Fatalf("Remove = %v", err)
	}
	if removed.ID != r.ID {
		t.Fatalf("Remove returned %s, want %s", removed.ID, r.ID)
	}
	name := "reminder:" + r.ID.String()
	fs.mu.Lock()
	cancelled := len(fs.removed) == 1 && fs.removed[0] == name
	fs.mu.Unlock()
	if !cancelled {
		t.Fatalf("scheduler Remove calls = %v, want [%s]", fs.removed, name)
	}

	if _, err := svc.Remove(context.Background(), ShortID(r.ID)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove err = %v, want ErrNotFound", err)
	}
}

func TestFireAfterRemoveDeliversNothing(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fn := &fakeNotifier{}
	svc := newTestService(fs, fn)

	r, err := svc.Add(context.Background(), Reminder{Title: "x", At: time.Now().Add(time.Hour), Target: kit.ChatTarget{ChatID: 5}})
	if err != nil {
		t.Fatalf("Add = %v", err)
	}
	job := fs.job(t)
	if _, err := svc.Remove(context.Background(), r.ID.String()); err != nil {
		t.Fatalf("Remove = %v", err)
	}

	if err := job(context.Background()); err != nil {
		t.Fatalf("stale fire = %v", err)
	}
	fn.mu.Lock()
	sent := len(fn.sent)
	fn.mu.Unlock()
	if sent != 0 {
		t.Fatalf("stale fire delivered %d notifications", sent)
	}
}

func TestFireFallsBackToDefaultTarget(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fn := &fakeNotifier{}
	svc := newTestService(fs, fn)

	if _, err := svc.Add(context.Background(), Reminder{Title: "x", At: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Add = %v", err)
	}
	job := fs.job(t)

	// No target anywhere: the fire fails and the reminder stays put.
	if err := job(context.Background()); err == nil {
		t.Fatalf("fire without any target succeeded")
	}
	if got := svc.Len(); got != 1 {
		t.Fatalf("Len after failed fire = %d, want 1", got)
	}

	svc.SetDefaultTarget(kit.ChatTarget{ChatID: 42, ThreadID: 3})
	if err := job(context.Background()); err != nil {
		t.Fatalf("fire with default target = %v", err)
	}
	n := fn.last(t)
	if n.Target.ChatID != 42 || n.Target.ThreadID != 3 {
		t.Fatalf("Target = %+v, want default", n.Target)
	}
}

func TestFireHandoffFailureKeepsReminder(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fn := &fakeNotifier{failNext: errors.New("queue full")}
	svc := newTestService(fs, fn)

	if _, err := svc.Add(context.Background(), Reminder{Title: "x", At: time.Now().Add(time.Hour), Target: kit.ChatTarget{ChatID: 5}}); err != nil {
		t.Fatalf("Add = %v", err)
	}
	job := fs.job(t)

	if err := job(context.Background()); err == nil {
		t.Fatalf("fire with failing notifier succeeded")
	}
	if got := svc.Len(); got != 1 {
		t.Fatalf("Len after failed handoff = %d, want 1", got)
	}

	// The retry hands off and consumes.
	if err := job(context.Background()); err != nil {
		t.Fatalf("retry fire = %v", err)
	}
	if got := svc.Len(); got != 0 {
		t.Fatalf("Len after retry = %d, want 0", got)
	}
}

func TestAddStoreFull(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	svc := New(Config{MaxReminders: 1}, logx.Nop(), nil, fs, &fakeNotifier{})

	if _, err := svc.Add(context.Background(), Reminder{Title: "a", At: time.Now().Add(time.Hour), Target: kit.ChatTarget{ChatID: 1}}); err != nil {
		t.Fatalf("Add a = %v", err)
	}
	if _, err := svc.Add(context.Background(), Reminder{Title: "b", At: time.Now().Add(time.Hour), Target: kit.ChatTarget{ChatID: 1}}); !errors.Is(err, ErrStoreFull) {
		t.Fatalf("Add b err = %v, want ErrStoreFull", err)
	}
}

// fakeAuditor collects appended audit entries.
type fakeAuditor struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (f *fakeAuditor) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func TestFireRecordsAudit(t *testing.T) {
	t.Parallel()
	fs := newFakeSched()
	fn := &fakeNotifier{failNext: errors.New("queue full")}
	svc := newTestService(fs, fn)
	aud := &fakeAuditor{}
	svc.SetAuditSink(aud)

	r, err := svc.Add(context.Background(), Reminder{Title: "x", At: time.Now().Add(time.Hour), Target: kit.ChatTarget{ChatID: 5}})
	if err != nil {
		t.Fatalf("Add = %v", err)
	}
	job := fs.job(t)

	// First attempt fails at handoff, the retry lands. Both leave a record.
	if err := job(context.Background()); err == nil {
		t.Fatalf("fire with failing notifier succeeded")
	}
	if err := job(context.Background()); err != nil {
		t.Fatalf("retry fire = %v", err)
	}

	aud.mu.Lock()
	defer aud.mu.Unlock()
	if len(aud.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(aud.entries))
	}
	failed, landed := aud.entries[0], aud.entries[1]
	if failed.OK || failed.Error == "" {
		t.Fatalf("first entry = %+v, want failed with error", failed)
	}
	if !landed.OK || landed.Error != "" {
		t.Fatalf("second entry = %+v, want ok", landed)
	}
	for _, e := range aud.entries {
		if e.Source != "scheduler" || e.Action != "reminder.fire" || e.Target != ShortID(r.ID) {
			t.Fatalf("entry = %+v, want scheduler fire record for %s", e, ShortID(r.ID))
		}
	}
	if landed.ChatID != 5 {
		t.Fatalf("ChatID = %d, want 5", landed.ChatID)
	}
}
