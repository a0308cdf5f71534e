package tgui

import (
	"strings"
	"testing"
	"time"
)

func TestPaginateSlice(t *testing.T) {
	t.Parallel()
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	sub, page, _, from, to, hasPrev, hasNext := PaginateSlice(items, 1, 10)
	if len(sub) != 10 || sub[0] != 10 || from != 10 || to != 20 {
		t.Fatalf("page 1 = %v [%d:%d]", sub, from, to)
	}
	if page != 1 || !hasPrev || !hasNext {
		t.Fatalf("page 1 flags = page %d prev %v next %v", page, hasPrev, hasNext)
	}

	sub, _, _, _, _, _, hasNext = PaginateSlice(items, 2, 10)
	if len(sub) != 5 || hasNext {
		t.Fatalf("last page = %d items, next %v", len(sub), hasNext)
	}

	sub, _, _, from, to, hasPrev, hasNext = PaginateSlice(items, 99, 10)
	if len(sub) != 0 || from != 25 || to != 25 || !hasPrev || hasNext {
		t.Fatalf("past-the-end page = %v [%d:%d] prev %v next %v", sub, from, to, hasPrev, hasNext)
	}
}

func TestPageLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		page, size, total int
		want              string
	}{
		{0, 10, 25, "Page 1/3 • 1–10 of 25"},
		{2, 10, 25, "Page 3/3 • 21–25 of 25"},
		{9, 10, 25, "Page 3/3 • 21–25 of 25"},
		{0, 10, 0, "Page 1/1"},
	}
	for _, tt := range tests {
		if got := PageLabel(tt.page, tt.size, tt.total); got != tt.want {
			t.Fatalf("PageLabel(%d, %d, %d) = %q, want %q", tt.page, tt.size, tt.total, got, tt.want)
		}
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"héllo", 2, "hé…"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.s, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestCallbackData(t *testing.T) {
	t.Parallel()
	if got := Data("remind", "del", "tok"); got != "remind:del:tok" {
		t.Fatalf("Data = %q", got)
	}
	if got := Data("remind", "page", ""); got != "remind:page" {
		t.Fatalf("Data without payload = %q", got)
	}

	type payload struct {
		ID   string `json:"id"`
		Page int    `json:"page"`
	}
	packed, err := PackJSON(payload{ID: "abc", Page: 2})
	if err != nil {
		t.Fatalf("PackJSON: %v", err)
	}
	var got payload
	if err := UnpackJSON(packed, &got); err != nil {
		t.Fatalf("UnpackJSON: %v", err)
	}
	if got.ID != "abc" || got.Page != 2 {
		t.Fatalf("roundtrip = %+v", got)
	}
}

func TestTokenStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewTokenStore()

	tok := s.PutString("11111111-2222-4333-8444-555555555555")
	if tok == "" || strings.Contains(tok, ":") {
		t.Fatalf("token = %q, want non-empty without ':'", tok)
	}
	got, ok := s.GetString(tok)
	if !ok || got != "11111111-2222-4333-8444-555555555555" {
		t.Fatalf("GetString = %q, %v", got, ok)
	}

	// A token must keep the full callback_data within Telegram's limit even
	// for large stored payloads.
	big := s.PutString(strings.Repeat("x", 500))
	if data := Data("remind", "del", big); len(data) > MaxCallbackDataLen {
		t.Fatalf("callback_data %q exceeds %d bytes", data, MaxCallbackDataLen)
	}

	if _, ok := s.GetString("~missing"); ok {
		t.Fatal("GetString(missing) = ok, want miss")
	}
}

func TestTokenStoreExpiry(t *testing.T) {
	t.Parallel()
	s := NewTokenStore().WithTTL(time.Millisecond)

	tok := s.PutString("v")
	time.Sleep(20 * time.Millisecond)
	if _, ok := s.GetString(tok); ok {
		t.Fatal("GetString after TTL = ok, want expired")
	}
}

func TestBuilderHTML(t *testing.T) {
	t.Parallel()
	m := New().
		Title("⏰", "Reminders").
		KV("count", "2").
		Line("a & b").
		Build()

	want := "⏰ <b>Reminders</b>\n• <b>count</b>: 2\na &amp; b"
	if m.Text != want {
		t.Fatalf("Text = %q, want %q", m.Text, want)
	}
	if m.Opt == nil || m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Fatalf("Opt = %+v", m.Opt)
	}
}

func TestBuilderPreMultiSplits(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("line of output\n", 80)
	m := New().PreMulti(long, 400).Build()

	if len(m.More) == 0 {
		t.Fatalf("More = 0 chunks, want follow-up messages for %d bytes", len(long))
	}
	for _, part := range append([]string{m.Text}, m.More...) {
		if !strings.HasPrefix(part, "<pre><code>") || !strings.HasSuffix(part, "</code></pre>") {
			t.Fatalf("chunk not wrapped: %q", part)
		}
	}
}
