package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type sentMsg struct {
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []sentMsg
	edits []sentMsg
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMsg{text: text, opt: opt})
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (f *fakeAdapter) lastSent(t *testing.T) sentMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) lastEdit(t *testing.T) sentMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatal("no messages edited")
	}
	return f.edits[len(f.edits)-1]
}

type fakeReminders struct {
	mu      sync.Mutex
	limit   int
	items   []reminder.Reminder
	addErr  error
	nextID  uuid.UUID
	added   []reminder.Reminder
	removed []string
}

func (f *fakeReminders) Add(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return reminder.Reminder{}, f.addErr
	}
	if r.ID == uuid.Nil {
		if f.nextID != uuid.Nil {
			r.ID = f.nextID
		} else {
			r.ID = uuid.New()
		}
	}
	r.CreatedAt = time.Now()
	f.items = append(f.items, r)
	f.added = append(f.added, r)
	return r, nil
}

func (f *fakeReminders) Remove(ctx context.Context, id string) (reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := -1
	for i, r := range f.items {
		if strings.HasPrefix(r.ID.String(), strings.ToLower(id)) {
			if idx >= 0 {
				return reminder.Reminder{}, reminder.ErrAmbiguous
			}
			idx = i
		}
	}
	if idx < 0 {
		return reminder.Reminder{}, reminder.ErrNotFound
	}
	r := f.items[idx]
	f.items = append(f.items[:idx], f.items[idx+1:]...)
	f.removed = append(f.removed, id)
	return r, nil
}

func (f *fakeReminders) Get(id string) (reminder.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hit reminder.Reminder
	n := 0
	for _, r := range f.items {
		if strings.HasPrefix(r.ID.String(), strings.ToLower(id)) {
			hit = r
			n++
		}
	}
	switch n {
	case 0:
		return reminder.Reminder{}, reminder.ErrNotFound
	case 1:
		return hit, nil
	default:
		return reminder.Reminder{}, reminder.ErrAmbiguous
	}
}

func (f *fakeReminders) Snapshot() reminder.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	limit := f.limit
	if limit == 0 {
		limit = 100
	}
	return reminder.Snapshot{
		Count: len(f.items),
		Limit: limit,
		Items: append([]reminder.Reminder(nil), f.items...),
	}
}

type fakeScheduler struct {
	enabled bool
	snap    router.Snapshot
}

func (f *fakeScheduler) Enabled() bool             { return f.enabled }
func (f *fakeScheduler) Snapshot() router.Snapshot { return f.snap }

type fakeNotifier struct {
	mu      sync.Mutex
	enabled bool
	err     error
	sent    []kit.Notification
}

func (f *fakeNotifier) Enabled() bool { return f.enabled }

func (f *fakeNotifier) Notify(ctx context.Context, n kit.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) QueueDepth() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent), 64
}

type fakeStore struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (f *fakeStore) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

// RecentAudit keeps the Store contract: the most recent limit entries,
// oldest first.
func (f *fakeStore) RecentAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]storage.AuditEntry(nil), f.entries...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func newTestBot() *Bot { return New(logx.Nop(), "test") }

func msgReq(ad kit.Adapter, svc *router.Services, args []string, flags map[string]string) *router.Request {
	if flags == nil {
		flags = map[string]string{}
	}
	return &router.Request{
		Update: kit.Update{
			Kind:    kit.UpdateMessage,
			Message: &kit.Message{ID: 1, ChatID: 100, FromID: 42, FromUsername: "tester", Text: "/remind"},
		},
		Chat:      kit.ChatTarget{ChatID: 100},
		FromID:    42,
		Path:      []string{"remind"},
		Command:   "remind",
		Args:      args,
		Flags:     flags,
		BoolFlags: map[string]bool{},
		ReqID:     "t-1",
		Adapter:   ad,
		Logger:    logx.Nop(),
		Services:  svc,
	}
}

func cbReq(ad kit.Adapter, svc *router.Services, payload string) *router.Request {
	return &router.Request{
		Update: kit.Update{
			Kind:     kit.UpdateCallback,
			Callback: &kit.Callback{ID: "cb-1", FromID: 42, ChatID: 100, MessageID: 7, Data: "remind:x:" + payload},
		},
		Chat:     kit.ChatTarget{ChatID: 100},
		FromID:   42,
		Command:  "remind:x",
		Payload:  payload,
		ReqID:    "t-2",
		Adapter:  ad,
		Logger:   logx.Nop(),
		Services: svc,
	}
}

func markupRows(t *testing.T, opt *kit.SendOptions) [][]tele.InlineButton {
	t.Helper()
	if opt == nil || opt.ReplyMarkupAdapter == nil {
		t.Fatal("no reply markup attached")
	}
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("markup type = %T, want *tele.ReplyMarkup", opt.ReplyMarkupAdapter)
	}
	return rm.InlineKeyboard
}

func findButtonData(t *testing.T, rows [][]tele.InlineButton, prefix string) string {
	t.Helper()
	for _, row := range rows {
		for _, btn := range row {
			if strings.HasPrefix(btn.Data, prefix) {
				return btn.Data
			}
		}
	}
	t.Fatalf("no button with data prefix %q", prefix)
	return ""
}

func TestViewListEmpty(t *testing.T) {
	t.Parallel()

	b := newTestBot()
	svc := &router.Services{Reminders: &fakeReminders{}}
	req := msgReq(&fakeAdapter{}, svc, nil, nil)

	msg := b.viewList(req, 0)
	if !strings.Contains(msg.Text, "nothing scheduled") {
		t.Fatalf("empty list text = %q, want mention of nothing scheduled", msg.Text)
	}
	rows := markupRows(t, msg.Opt)
	if len(rows) != 1 || len(rows[0]) != 2 {
		t.Fatalf("empty list keyboard = %d rows, want 1 row with 2 buttons", len(rows))
	}
}

func TestViewListPaginationAndTokens(t *testing.T) {
	t.Parallel()

	b := newTestBot()
	fr := &fakeReminders{}
	for i := 0; i < 10; i++ {
		fr.items = append(fr.items, reminder.Reminder{
			ID:    uuid.MustParse(fmt.Sprintf("%08d-0000-4000-8000-000000000000", i)),
			Title: fmt.Sprintf("item %d", i),
			At:    time.Now().Add(time.Hour),
		})
	}
	svc := &router.Services{Reminders: fr}
	req := msgReq(&fakeAdapter{}, svc, nil, nil)

	msg := b.viewList(req, 0)
	if !strings.Contains(msg.Text, "item 0") || !strings.Contains(msg.Text, "item 7") {
		t.Fatalf("page 0 should render items 0..7, got %q", msg.Text)
	}
	if strings.Contains(msg.Text, "item 8") {
		t.Fatalf("page 0 leaked item from page 1: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "Page 1/2") {
		t.Fatalf("page label missing, got %q", msg.Text)
	}

	// 4 rows of delete buttons (2 per row) + nav row + refresh/close row.
	rows := markupRows(t, msg.Opt)
	if len(rows) != 6 {
		t.Fatalf("keyboard rows = %d, want 6", len(rows))
	}

	data := findButtonData(t, rows, "remind:del:")
	tok := strings.TrimPrefix(data, "remind:del:")
	id, ok := b.tokens.GetString(tok)
	if !ok {
		t.Fatalf("token %q not resolvable", tok)
	}
	if want := fr.items[0].ID.String(); id != want {
		t.Fatalf("token resolves to %q, want %q", id, want)
	}

	// Second page renders the remainder and offers a Prev button.
	msg2 := b.viewList(req, 1)
	if !strings.Contains(msg2.Text, "item 8") || !strings.Contains(msg2.Text, "item 9") {
		t.Fatalf("page 1 should render items 8..9, got %q", msg2.Text)
	}
	if !strings.Contains(msg2.Text, "Page 2/2") {
		t.Fatalf("page 1 label missing, got %q", msg2.Text)
	}
	findButtonData(t, markupRows(t, msg2.Opt), "remind:list:0")
}

func TestCmdAddValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []string
		flags map[string]string
		want  string
	}{
		{"no when", []string{"pay rent"}, nil, "when should it fire"},
		{"two whens", []string{"pay rent"}, map[string]string{"at": "2026-08-24 09:30", "in": "45m"}, "set exactly one"},
		{"bad at", []string{"pay rent"}, map[string]string{"at": "not a time"}, "bad --at"},
		{"bad in", []string{"pay rent"}, map[string]string{"in": "-5m"}, "bad --in"},
		{"bad repeat", []string{"pay rent"}, map[string]string{"repeat": "whenever"}, "bad --repeat"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := newTestBot()
			fr := &fakeReminders{}
			ad := &fakeAdapter{}
			req := msgReq(ad, &router.Services{Reminders: fr}, tt.args, tt.flags)

			if err := b.cmdAdd(context.Background(), req); err != nil {
				t.Fatalf("cmdAdd() error = %v", err)
			}
			if len(fr.added) != 0 {
				t.Fatalf("reminder added despite invalid input")
			}
			last := ad.lastSent(t).text
			if !strings.HasPrefix(last, "⚠️ ") {
				t.Fatalf("reply = %q, want warning prefix", last)
			}
			if !strings.Contains(last, tt.want) {
				t.Fatalf("reply = %q, want substring %q", last, tt.want)
			}
		})
	}
}

func TestCmdAddUsageWhenNoArgs(t *testing.T) {
	t.Parallel()

	b := newTestBot()
	ad := &fakeAdapter{}
	req := msgReq(ad, &router.Services{Reminders: &fakeReminders{}}, nil, nil)

	if err := b.cmdAdd(context.Background(), req); err != nil {
		t.Fatalf("cmdAdd() error = %v", err)
	}
	last := ad.lastSent(t)
	if !strings.Contains(last.text, "remind add") || !strings.Contains(last.text, "--at") {
		t.Fatalf("usage card missing, got %q", last.text)
	}
}

func TestCmdAddCreatesReminder(t *testing.T) {
	t.Parallel()

	b := newTestBot()
	fr := &fakeReminders{nextID: uuid.MustParse("bbbbbbbb-0000-4000-8000-000000000001")}
	fs := &fakeStore{}
	ad := &fakeAdapter{}
	req := msgReq(ad, &router.Services{Reminders: fr, Store: fs},
		[]string{"pay rent", "transfer", "before noon"},
		map[string]string{"at": "2026-08-24 09:30"})

	if err := b.cmdAdd(context.Background(), req); err != nil {
		t.Fatalf("cmdAdd() error = %v", err)
	}
	if len(fr.added) != 1 {
		t.Fatalf("added = %d reminders, want 1", len(fr.added))
	}
	got := fr.added[0]
	if got.Title != "pay rent" {
		t.Errorf("Title = %q, want %q", got.Title, "pay rent")
	}
	if got.Message != "transfer before noon" {
		t.Errorf("Message = %q, want %q", got.Message, "transfer before noon")
	}
	if got.Target.ChatID != 100 {
		t.Errorf("Target.ChatID = %d, want 100", got.Target.ChatID)
	}
	if got.At.IsZero() {
		t.Errorf("At is zero, want parsed time")
	}

	if last := ad.lastSent(t); !strings.Contains(last.text, "Reminder added") {
		t.Fatalf("confirmation missing, got %q", last.text)
	}

	if len(fs.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(fs.entries))
	}
	e := fs.entries[0]
	if e.Action != "reminder.add" || !e.OK || e.Source != "bot" {
		t.Fatalf("audit entry = %+v, want ok reminder.add from bot", e)
	}
	if e.Target != "bbbbbbbb" {
		t.Errorf("audit Target = %q, want short id %q", e.Target, "bbbbbbbb")
	}
	if !strings.Contains(e.MetaJSON, "pay rent") {
		t.Errorf("audit MetaJSON = %q, want title inside", e.MetaJSON)
	}
}

func TestCmdAddServiceError(t *testing.T) {
	t.Parallel()

	b := newTestBot()
	fr := &fakeReminders{addErr: errors.New("store is full")}
	fs := &fakeStore{}
	ad := &fakeAdapter{}
	req := msgReq(ad, &router.Services{Reminders: fr, Store: fs},
		[]string{"pay rent"}, map[string]string{"in": "45m"})

	if err := b.cmdAdd(context.Background(), req); err != nil {
		t.Fatalf("cmdAdd() error = %v", err)
	}
	if last := ad.lastSent(t); !strings.Contains(last.text, "not added: store is full") {
		t.Fatalf("reply = %q, want add failure text", last.text)
	}
	if len(fs.entries) != 1 || fs.entries[0].OK {
		t.Fatalf("audit should record the failure, got %+v", fs.entries)
	}
}

func TestCmdDelLookup(t *testing.T) {
	t.Parallel()

	items := []reminder.Reminder{
		{ID: uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001"), Title: "alpha", At: time.Now().Add(time.Hour)},
		{ID: uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000002"), Title: "alpha twin", At: time.Now().Add(time.Hour)},
		{ID: uuid.MustParse("bbbbbbbb-0000-4000-8000-000000000001"), Title: "beta", At: time.Now().Add(time.Hour)},
	}

	tests := []struct {
		name string
		id   string
		want string
	}{
		{"ambiguous prefix", "aaaaaaaa", "matches several"},
		{"unknown id", "ffffffff", "no reminder matches"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := newTestBot()
			fr := &fakeReminders{items: append([]reminder.Reminder(nil), items...)}
			ad := &fakeAdapter{}
			req := msgReq(ad, &router.Services{Reminders: fr}, []string{tt.id}, nil)

			if err := b.cmdDel(context.Background(), req); err != nil {
				t.Fatalf("cmdDel() error = %v", err)
			}
			if last := ad.lastSent(t); !strings.Contains(last.text, tt.want) {
				t.Fatalf("reply = %q, want substring %q", last.text, tt.want)
			}
		})
	}
}

func TestDeleteFlowConfirmThenRemove(t *testing.T) {
	t.Parallel()

	b := newTestBot()
	fr := &fakeReminders{items: []reminder.Reminder{
		{ID: uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001"), Title: "alpha", At: time.Now().Add(time.Hour)},
		{ID: uuid.MustParse("bbbbbbbb-0000-4000-8000-000000000001"), Title: "beta", At: time.Now().Add(time.Hour)},
	}}
	fs := &fakeStore{}
	svc := &router.Services{Reminders: fr, Store: fs}
	ad := &fakeAdapter{}

	// Step 1: /remind del <prefix> renders a confirmation card.
	if err := b.cmdDel(context.Background(), msgReq(ad, svc, []string{"aaaaaaaa"}, nil)); err != nil {
		t.Fatalf("cmdDel() error = %v", err)
	}
	card := ad.lastSent(t)
	if !strings.Contains(card.text, "Delete reminder?") || !strings.Contains(card.text, "alpha") {
		t.Fatalf("confirmation card = %q", card.text)
	}
	data := findButtonData(t, markupRows(t, card.opt), "remind:rm:")
	tok := strings.TrimPrefix(data, "remind:rm:")

	// Step 2: pressing the confirm button removes the reminder and edits
	// the card in place.
	if err := b.cbDelete(context.Background(), cbReq(ad, svc, tok), tok); err != nil {
		t.Fatalf("cbDelete() error = %v", err)
	}
	if len(fr.removed) != 1 || fr.removed[0] != "aaaaaaaa-0000-4000-8000-000000000001" {
		t.Fatalf("removed = %v, want the full alpha id", fr.removed)
	}
	if ed := ad.lastEdit(t); !strings.Contains(ed.text, "Deleted") {
		t.Fatalf("edited card = %q, want deletion notice", ed.text)
	}
	if len(fs.entries) != 1 || fs.entries[0].Action != "reminder.del" || !fs.entries[0].OK {
		t.Fatalf("audit entries = %+v, want ok reminder.del", fs.entries)
	}
}

func TestCbDeleteExpiredToken(t *testing.T) {
	t.Parallel()

	b := newTestBot()
	fr := &fakeReminders{items: []reminder.Reminder{
		{ID: uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001"), Title: "alpha"},
	}}
	svc := &router.Services{Reminders: fr}
	ad := &fakeAdapter{}

	if err := b.cbDelete(context.Background(), cbReq(ad, svc, "bogus"), "bogus"); err != nil {
		t.Fatalf("cbDelete() error = %v", err)
	}
	if len(fr.removed) != 0 {
		t.Fatalf("nothing should be removed on a dead token, got %v", fr.removed)
	}
	if ed := ad.lastEdit(t); !strings.Contains(ed.text, "Expired") {
		t.Fatalf("edited card = %q, want expiry notice", ed.text)
	}
}

func TestCmdTest(t *testing.T) {
	t.Parallel()

	t.Run("telegram default", func(t *testing.T) {
		t.Parallel()
		b := newTestBot()
		fn := &fakeNotifier{enabled: true}
		ad := &fakeAdapter{}
		req := msgReq(ad, &router.Services{Notifier: fn}, nil, nil)

		if err := b.cmdTest(context.Background(), req); err != nil {
			t.Fatalf("cmdTest() error = %v", err)
		}
		if len(fn.sent) != 1 {
			t.Fatalf("notifications = %d, want 1", len(fn.sent))
		}
		n := fn.sent[0]
		if n.Channel != kit.ChannelTelegram {
			t.Errorf("Channel = %q, want telegram", n.Channel)
		}
		if n.Text != "🧪 test notification" {
			t.Errorf("Text = %q", n.Text)
		}
		if !strings.HasPrefix(n.DedupKey, "test:") {
			t.Errorf("DedupKey = %q, want test: prefix", n.DedupKey)
		}
		if last := ad.lastSent(t); !strings.Contains(last.text, "queued on telegram") {
			t.Fatalf("reply = %q", last.text)
		}
	})

	t.Run("email payload", func(t *testing.T) {
		t.Parallel()
		b := newTestBot()
		fn := &fakeNotifier{enabled: true}
		ad := &fakeAdapter{}
		req := msgReq(ad, &router.Services{Notifier: fn},
			[]string{"hello"}, map[string]string{"channel": "email", "to": "ops@example.com"})

		if err := b.cmdTest(context.Background(), req); err != nil {
			t.Fatalf("cmdTest() error = %v", err)
		}
		n := fn.sent[0]
		if n.Channel != kit.ChannelEmail || n.Email == nil {
			t.Fatalf("notification = %+v, want email payload", n)
		}
		if n.Email.To != "ops@example.com" || n.Email.Body != "hello" {
			t.Fatalf("Email = %+v", n.Email)
		}
	})

	t.Run("notifier error", func(t *testing.T) {
		t.Parallel()
		b := newTestBot()
		fn := &fakeNotifier{enabled: true, err: errors.New("queue full")}
		ad := &fakeAdapter{}
		req := msgReq(ad, &router.Services{Notifier: fn}, nil, nil)

		if err := b.cmdTest(context.Background(), req); err != nil {
			t.Fatalf("cmdTest() error = %v", err)
		}
		if last := ad.lastSent(t); !strings.Contains(last.text, "not queued: queue full") {
			t.Fatalf("reply = %q", last.text)
		}
	})
}

func TestCmdAudit(t *testing.T) {
	t.Parallel()

	t.Run("renders entries with status", func(t *testing.T) {
		t.Parallel()
		b := newTestBot()
		fs := &fakeStore{entries: []storage.AuditEntry{
			{At: time.Now().Add(-time.Hour), Source: "bot", Action: "reminder.add", Target: "aaaa", OK: true},
			{At: time.Now(), Source: "api", Action: "reminder.del", Target: "bbbb", OK: false, Error: "boom"},
		}}
		ad := &fakeAdapter{}
		req := msgReq(ad, &router.Services{Store: fs}, nil, nil)

		if err := b.cmdAudit(context.Background(), req); err != nil {
			t.Fatalf("cmdAudit() error = %v", err)
		}
		last := ad.lastSent(t)
		if !strings.Contains(last.text, "audit (last 2)") {
			t.Fatalf("title missing, got %q", last.text)
		}
		if !strings.Contains(last.text, "reminder.del") || !strings.Contains(last.text, "fail boom") {
			t.Fatalf("entries missing, got %q", last.text)
		}
	})

	t.Run("limit argument", func(t *testing.T) {
		t.Parallel()
		b := newTestBot()
		fs := &fakeStore{entries: []storage.AuditEntry{
			{At: time.Now().Add(-time.Hour), Source: "bot", Action: "reminder.add", OK: true},
			{At: time.Now(), Source: "bot", Action: "reminder.del", OK: true},
		}}
		ad := &fakeAdapter{}
		req := msgReq(ad, &router.Services{Store: fs}, []string{"1"}, nil)

		if err := b.cmdAudit(context.Background(), req); err != nil {
			t.Fatalf("cmdAudit() error = %v", err)
		}
		last := ad.lastSent(t)
		if !strings.Contains(last.text, "audit (last 1)") || !strings.Contains(last.text, "reminder.del") {
			t.Fatalf("limited audit = %q", last.text)
		}
		if strings.Contains(last.text, "reminder.add") {
			t.Fatalf("older entry leaked past the limit: %q", last.text)
		}
	})

	t.Run("empty trail", func(t *testing.T) {
		t.Parallel()
		b := newTestBot()
		ad := &fakeAdapter{}
		req := msgReq(ad, &router.Services{Store: &fakeStore{}}, nil, nil)

		if err := b.cmdAudit(context.Background(), req); err != nil {
			t.Fatalf("cmdAudit() error = %v", err)
		}
		if last := ad.lastSent(t); !strings.Contains(last.text, "audit trail is empty") {
			t.Fatalf("reply = %q", last.text)
		}
	})

	t.Run("storage disabled", func(t *testing.T) {
		t.Parallel()
		b := newTestBot()
		ad := &fakeAdapter{}
		req := msgReq(ad, &router.Services{}, nil, nil)

		if err := b.cmdAudit(context.Background(), req); err != nil {
			t.Fatalf("cmdAudit() error = %v", err)
		}
		if last := ad.lastSent(t); !strings.Contains(last.text, "storage is disabled") {
			t.Fatalf("reply = %q", last.text)
		}
	})
}

func TestUpcomingFires(t *testing.T) {
	t.Parallel()

	idA := uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001")
	idB := uuid.MustParse("bbbbbbbb-0000-4000-8000-000000000001")
	items := []reminder.Reminder{
		{ID: idA, Title: "alpha"},
		{ID: idB, Title: "beta", Repeat: "@daily"},
	}
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	ss := router.Snapshot{
		Once: []scheduler.OnceInfo{
			{Name: "reminder:" + idA.String(), At: base.Add(2 * time.Hour)},
			{Name: "reminder:cccccccc-0000-4000-8000-000000000001", At: base},
		},
		Schedules: []scheduler.ScheduleInfo{
			{Name: "reminder:" + idB.String(), Next: base.Add(time.Hour)},
			{Name: "storage.compact", Next: base},
		},
	}

	got := upcomingFires(ss, items, 5)
	if len(got) != 2 {
		t.Fatalf("upcomingFires() = %d entries, want 2", len(got))
	}
	if got[0].title != "beta" || !got[0].repeating || !got[0].at.Equal(base.Add(time.Hour)) {
		t.Fatalf("first fire = %+v, want beta at +1h", got[0])
	}
	if got[1].title != "alpha" || got[1].repeating {
		t.Fatalf("second fire = %+v, want alpha one-shot", got[1])
	}

	if limited := upcomingFires(ss, items, 1); len(limited) != 1 || limited[0].title != "beta" {
		t.Fatalf("limited fires = %+v, want just beta", limited)
	}
}

func TestCmdStatus(t *testing.T) {
	t.Parallel()

	idA := uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001")
	b := newTestBot()
	fr := &fakeReminders{items: []reminder.Reminder{
		{ID: idA, Title: "alpha", At: time.Now().Add(time.Hour)},
	}}
	fsched := &fakeScheduler{enabled: true, snap: router.Snapshot{
		Timezone: "UTC",
		Workers:  2,
		QueueCap: 64,
		Once: []scheduler.OnceInfo{
			{Name: "reminder:" + idA.String(), At: time.Now().Add(time.Hour)},
		},
	}}
	fn := &fakeNotifier{enabled: true}
	ad := &fakeAdapter{}
	req := msgReq(ad, &router.Services{Reminders: fr, Scheduler: fsched, Notifier: fn}, nil, nil)

	if err := b.cmdStatus(context.Background(), req); err != nil {
		t.Fatalf("cmdStatus() error = %v", err)
	}
	last := ad.lastSent(t)
	for _, want := range []string{"remind status", "1/100", "enabled, tz UTC, workers 2", "next fires", "alpha", "disabled"} {
		if !strings.Contains(last.text, want) {
			t.Errorf("status text missing %q:\n%s", want, last.text)
		}
	}
}

func TestCmdHealth(t *testing.T) {
	t.Parallel()

	b := newTestBot()
	fr := &fakeReminders{items: []reminder.Reminder{
		{ID: uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000001"), Title: "alpha", Repeat: "@daily"},
	}}
	fsched := &fakeScheduler{enabled: true, snap: router.Snapshot{Timezone: "UTC", Workers: 2, QueueCap: 64}}
	fn := &fakeNotifier{enabled: true}
	ad := &fakeAdapter{}
	req := msgReq(ad, &router.Services{Reminders: fr, Scheduler: fsched, Notifier: fn}, nil, nil)

	if err := b.cmdHealth(context.Background(), req); err != nil {
		t.Fatalf("cmdHealth() error = %v", err)
	}
	last := ad.lastSent(t)
	if last.opt == nil || last.opt.ParseMode != "" {
		t.Fatalf("health must send plain text, got opt %+v", last.opt)
	}
	for _, want := range []string{"health", "💾 mem", "⏰ reminders", "repeating: 1", "⏱ scheduler", "📣 notifier", "🧵 supervisor", "app: n/a"} {
		if !strings.Contains(last.text, want) {
			t.Errorf("health text missing %q:\n%s", want, last.text)
		}
	}
}
