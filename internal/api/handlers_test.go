package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeReminders backs the Reminders port with a real store so id prefix
// resolution behaves like the live service.
type fakeReminders struct {
	store   *reminder.Store
	failAdd error
}

func newFakeReminders(limit int) *fakeReminders {
	return &fakeReminders{store: reminder.NewStore(limit)}
}

func (f *fakeReminders) Add(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error) {
	if f.failAdd != nil {
		return reminder.Reminder{}, f.failAdd
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return reminder.Reminder{}, errors.New("title required")
	}
	if r.Channel == "" {
		r.Channel = "telegram"
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	if err := f.store.Append(r); err != nil {
		return reminder.Reminder{}, err
	}
	return r, nil
}

func (f *fakeReminders) Remove(ctx context.Context, id string) (reminder.Reminder, error) {
	r, err := f.store.ByPrefix(id)
	if err != nil {
		return reminder.Reminder{}, err
	}
	f.store.Remove(r.ID)
	return r, nil
}

func (f *fakeReminders) Get(id string) (reminder.Reminder, error) {
	return f.store.ByPrefix(id)
}

func (f *fakeReminders) Snapshot() reminder.Snapshot {
	return reminder.Snapshot{Count: f.store.Len(), Limit: f.store.Limit(), Items: f.store.List()}
}

type fakeSchedStatus struct{ snap scheduler.Snapshot }

func (f *fakeSchedStatus) Snapshot() scheduler.Snapshot { return f.snap }

type fakeNotifierStatus struct {
	enabled  bool
	ql, qcap int
}

func (f *fakeNotifierStatus) Enabled() bool          { return f.enabled }
func (f *fakeNotifierStatus) QueueDepth() (int, int) { return f.ql, f.qcap }

func newTestEngine(deps Deps, token string) *gin.Engine {
	return newEngine(Config{Enabled: true, Token: token}, deps, logx.Nop())
}

func doJSON(t *testing.T, e *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealthzSkipsAuth(t *testing.T) {
	t.Parallel()
	e := newTestEngine(Deps{Reminders: newFakeReminders(0)}, "secret")

	w := doJSON(t, e, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "ok" {
		t.Fatalf("body = %q, want %q", got, "ok")
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	e := newTestEngine(Deps{Reminders: newFakeReminders(0)}, "secret")

	tests := []struct {
		name string
		path string
		auth string
		want int
	}{
		{"no token", "/api/v1/reminders", "", http.StatusUnauthorized},
		{"wrong bearer", "/api/v1/reminders", "Bearer nope", http.StatusUnauthorized},
		{"good bearer", "/api/v1/reminders", "Bearer secret", http.StatusOK},
		{"good query token", "/api/v1/reminders?token=secret", "", http.StatusOK},
		{"wrong query token", "/api/v1/reminders?token=nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			e.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestCreateListDeleteRoundTrip(t *testing.T) {
	t.Parallel()
	e := newTestEngine(Deps{Reminders: newFakeReminders(0)}, "")

	w := doJSON(t, e, http.MethodPost, "/api/v1/reminders", "", map[string]any{
		"title":   "pay rent",
		"message": "wire it before noon",
		"at":      "2026-09-01T09:00:00Z",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		ID      string `json:"id"`
		ShortID string `json:"short_id"`
		Title   string `json:"title"`
		At      string `json:"at"`
		Channel string `json:"channel"`
	}
	decodeBody(t, w, &created)
	if created.Title != "pay rent" || created.At != "2026-09-01T09:00:00Z" {
		t.Fatalf("created = %+v", created)
	}
	if created.Channel != "telegram" {
		t.Fatalf("Channel = %q, want %q", created.Channel, "telegram")
	}
	if len(created.ShortID) != 8 || !strings.HasPrefix(created.ID, created.ShortID) {
		t.Fatalf("ShortID %q does not prefix ID %q", created.ShortID, created.ID)
	}

	w = doJSON(t, e, http.MethodGet, "/api/v1/reminders", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET list = %d", w.Code)
	}
	var list struct {
		Count int `json:"count"`
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	decodeBody(t, w, &list)
	if list.Count != 1 || len(list.Items) != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("list = %+v, want the created reminder", list)
	}

	w = doJSON(t, e, http.MethodDelete, "/api/v1/reminders/"+created.ShortID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE = %d, body %s", w.Code, w.Body.String())
	}
	var deleted struct {
		Deleted struct {
			ID string `json:"id"`
		} `json:"deleted"`
	}
	decodeBody(t, w, &deleted)
	if deleted.Deleted.ID != created.ID {
		t.Fatalf("deleted id = %q, want %q", deleted.Deleted.ID, created.ID)
	}

	w = doJSON(t, e, http.MethodGet, "/api/v1/reminders", "", nil)
	decodeBody(t, w, &list)
	if list.Count != 0 {
		t.Fatalf("Count after delete = %d, want 0", list.Count)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	e := newTestEngine(Deps{Reminders: newFakeReminders(0)}, "")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"at": "2026-09-01T09:00:00Z"}},
		{"no time at all", map[string]any{"title": "t"}},
		{"both at and in", map[string]any{"title": "t", "at": "2026-09-01T09:00:00Z", "in": "5m"}},
		{"bad at format", map[string]any{"title": "t", "at": "2026-09-01 09:00"}},
		{"bad in", map[string]any{"title": "t", "in": "soon"}},
		{"negative in", map[string]any{"title": "t", "in": "-5m"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := doJSON(t, e, http.MethodPost, "/api/v1/reminders", "", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("POST %v = %d, want %d (body %s)", tt.body, w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestCreateWithRelativeTime(t *testing.T) {
	t.Parallel()
	e := newTestEngine(Deps{Reminders: newFakeReminders(0)}, "")

	before := time.Now()
	w := doJSON(t, e, http.MethodPost, "/api/v1/reminders", "", map[string]any{
		"title": "stretch",
		"in":    "45m",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		At string `json:"at"`
	}
	decodeBody(t, w, &created)
	at, err := time.Parse(time.RFC3339, created.At)
	if err != nil {
		t.Fatalf("parse at %q: %v", created.At, err)
	}
	lo := before.Add(44 * time.Minute)
	hi := time.Now().Add(46 * time.Minute)
	if at.Before(lo) || at.After(hi) {
		t.Fatalf("at = %v, want within [%v, %v]", at, lo, hi)
	}
}

func TestCreateRepeating(t *testing.T) {
	t.Parallel()
	e := newTestEngine(Deps{Reminders: newFakeReminders(0)}, "")

	w := doJSON(t, e, http.MethodPost, "/api/v1/reminders", "", map[string]any{
		"title":  "standup",
		"repeat": "@daily",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		At     string `json:"at"`
		Repeat string `json:"repeat"`
	}
	decodeBody(t, w, &created)
	if created.Repeat != "@daily" {
		t.Fatalf("Repeat = %q, want %q", created.Repeat, "@daily")
	}
	if created.At != "" {
		t.Fatalf("At = %q, want empty for a repeating reminder", created.At)
	}
}

func TestLookupErrors(t *testing.T) {
	t.Parallel()
	fr := newFakeReminders(0)
	for _, id := range []string{
		"11111111-2222-4333-8444-555555555555",
		"11119999-2222-4333-8444-555555555555",
	} {
		if err := fr.store.Append(reminder.Reminder{ID: uuid.MustParse(id), Title: "x"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	e := newTestEngine(Deps{Reminders: fr}, "")

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"get unknown", http.MethodGet, "/api/v1/reminders/deadbeef", http.StatusNotFound},
		{"get ambiguous prefix", http.MethodGet, "/api/v1/reminders/1111", http.StatusConflict},
		{"get unique prefix", http.MethodGet, "/api/v1/reminders/11119", http.StatusOK},
		{"delete unknown", http.MethodDelete, "/api/v1/reminders/deadbeef", http.StatusNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := doJSON(t, e, tt.method, tt.path, "", nil)
			if w.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestStoreFullMapsToConflict(t *testing.T) {
	t.Parallel()
	e := newTestEngine(Deps{Reminders: newFakeReminders(1)}, "")

	w := doJSON(t, e, http.MethodPost, "/api/v1/reminders", "", map[string]any{"title": "a", "in": "5m"})
	if w.Code != http.StatusCreated {
		t.Fatalf("first POST = %d", w.Code)
	}
	w = doJSON(t, e, http.MethodPost, "/api/v1/reminders", "", map[string]any{"title": "b", "in": "5m"})
	if w.Code != http.StatusConflict {
		t.Fatalf("second POST = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	deps := Deps{
		Reminders: newFakeReminders(0),
		Scheduler: &fakeSchedStatus{snap: scheduler.Snapshot{Enabled: true, Timezone: "UTC", Workers: 2, QueueCap: 64}},
		Notifier:  &fakeNotifierStatus{enabled: true, qcap: 512},
	}
	e := newTestEngine(deps, "")

	w := doJSON(t, e, http.MethodGet, "/api/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/status = %d", w.Code)
	}
	var got struct {
		Reminders struct {
			Limit int `json:"limit"`
		} `json:"reminders"`
		Scheduler struct {
			Enabled  bool   `json:"enabled"`
			Timezone string `json:"timezone"`
		} `json:"scheduler"`
		Notifier struct {
			Enabled  bool `json:"enabled"`
			QueueCap int  `json:"queue_cap"`
		} `json:"notifier"`
	}
	decodeBody(t, w, &got)
	if !got.Scheduler.Enabled || got.Scheduler.Timezone != "UTC" {
		t.Fatalf("scheduler status = %+v", got.Scheduler)
	}
	if !got.Notifier.Enabled || got.Notifier.QueueCap != 512 {
		t.Fatalf("notifier status = %+v", got.Notifier)
	}
}

func TestAuditDisabled(t *testing.T) {
	t.Parallel()
	e := newTestEngine(Deps{Reminders: newFakeReminders(0)}, "")

	w := doJSON(t, e, http.MethodGet, "/api/v1/audit", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /api/v1/audit = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestAuditTrail(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "remindbot.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	e := newTestEngine(Deps{Reminders: newFakeReminders(0), Store: st}, "")

	w := doJSON(t, e, http.MethodPost, "/api/v1/reminders", "", map[string]any{"title": "a", "in": "5m"})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST = %d", w.Code)
	}
	var created struct {
		ShortID string `json:"short_id"`
	}
	decodeBody(t, w, &created)
	if w = doJSON(t, e, http.MethodDelete, "/api/v1/reminders/"+created.ShortID, "", nil); w.Code != http.StatusOK {
		t.Fatalf("DELETE = %d", w.Code)
	}

	w = doJSON(t, e, http.MethodGet, "/api/v1/audit", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/audit = %d", w.Code)
	}
	var audit struct {
		Items []storage.AuditEntry `json:"items"`
	}
	decodeBody(t, w, &audit)
	if len(audit.Items) != 2 {
		t.Fatalf("audit items = %d, want 2", len(audit.Items))
	}
	if audit.Items[0].Action != "reminder.add" || audit.Items[1].Action != "reminder.del" {
		t.Fatalf("audit actions = %q, %q", audit.Items[0].Action, audit.Items[1].Action)
	}
	for _, it := range audit.Items {
		if it.Source != "api" || !it.OK {
			t.Fatalf("audit entry = %+v, want ok api entry", it)
		}
	}
}
