package router

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "   \t ", nil},
		{"plain", "/remind add hello", []string{"/remind", "add", "hello"}},
		{"double quotes", `/remind add "pay rent" tomorrow`, []string{"/remind", "add", "pay rent", "tomorrow"}},
		{"single quotes", "/remind add 'pay rent'", []string{"/remind", "add", "pay rent"}},
		{"escaped quote", `/remind add pay\"rent`, []string{"/remind", "add", `pay"rent`}},
		{"quoted flag value", `/remind add x --at="2026-08-24 09:30"`, []string{"/remind", "add", "x", "--at=2026-08-24 09:30"}},
		{"collapsed whitespace", "  /a   b\t c \n", []string{"/a", "b", "c"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tokenizeCommandLine(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("tokenizeCommandLine(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        []string
		wantPos   []string
		wantFlags map[string]string
		wantBools map[string]bool
	}{
		{
			name:      "long with equals",
			in:        []string{"pay rent", "--at=2026-08-24 09:30"},
			wantPos:   []string{"pay rent"},
			wantFlags: map[string]string{"at": "2026-08-24 09:30"},
			wantBools: map[string]bool{},
		},
		{
			name:      "long with value token",
			in:        []string{"--in", "45m", "groceries"},
			wantPos:   []string{"groceries"},
			wantFlags: map[string]string{"in": "45m"},
			wantBools: map[string]bool{},
		},
		{
			name:      "long bool at end",
			in:        []string{"--force"},
			wantPos:   nil,
			wantFlags: map[string]string{},
			wantBools: map[string]bool{"force": true},
		},
		{
			name:      "long bool followed by another flag",
			in:        []string{"--force", "--at=x"},
			wantPos:   nil,
			wantFlags: map[string]string{"at": "x"},
			wantBools: map[string]bool{"force": true},
		},
		{
			name:      "short with equals",
			in:        []string{"-c=email"},
			wantPos:   nil,
			wantFlags: map[string]string{"c": "email"},
			wantBools: map[string]bool{},
		},
		{
			name:      "short with value token",
			in:        []string{"-p", "2"},
			wantPos:   nil,
			wantFlags: map[string]string{"p": "2"},
			wantBools: map[string]bool{},
		},
		{
			name:      "grouped short bools",
			in:        []string{"-af"},
			wantPos:   nil,
			wantFlags: map[string]string{},
			wantBools: map[string]bool{"a": true, "f": true},
		},
		{
			name:      "bare dash stays positional",
			in:        []string{"-"},
			wantPos:   []string{"-"},
			wantFlags: map[string]string{},
			wantBools: map[string]bool{},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pos, flags, bools := parseFlags(tt.in)
			if !reflect.DeepEqual(pos, tt.wantPos) {
				t.Fatalf("pos = %#v, want %#v", pos, tt.wantPos)
			}
			if !reflect.DeepEqual(flags, tt.wantFlags) {
				t.Fatalf("flags = %#v, want %#v", flags, tt.wantFlags)
			}
			if !reflect.DeepEqual(bools, tt.wantBools) {
				t.Fatalf("bools = %#v, want %#v", bools, tt.wantBools)
			}
		})
	}
}

func TestSplitRoute(t *testing.T) {
	t.Parallel()

	if got := splitRoute(""); got != nil {
		t.Fatalf("splitRoute(\"\") = %#v, want nil", got)
	}
	if got := splitRoute("  remind   add "); !reflect.DeepEqual(got, []string{"remind", "add"}) {
		t.Fatalf("splitRoute = %#v, want [remind add]", got)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"remind", "remind"},
		{"Remind-Add", "remind_add"},
		{"remind add", "remind_add"},
		{"remind/list", "remind_list"},
		{"a__b", "a_b"},
		{"2fa", "cmd_2fa"},
		{"___", ""},
		{"é!", ""},
		{strings.Repeat("a", 40), strings.Repeat("a", 32)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeTelegramCommand(tt.in); got != tt.want {
				t.Fatalf("sanitizeTelegramCommand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTelegramCommandNameFromRoute(t *testing.T) {
	t.Parallel()

	if got, ok := telegramCommandNameFromRoute([]string{"remind", "add"}); !ok || got != "remind_add" {
		t.Fatalf("got %q/%v, want remind_add/true", got, ok)
	}
	if got, ok := telegramCommandNameFromRoute([]string{"status"}); !ok || got != "status" {
		t.Fatalf("got %q/%v, want status/true", got, ok)
	}
	if _, ok := telegramCommandNameFromRoute(nil); ok {
		t.Fatalf("empty route should not produce a command name")
	}
	if _, ok := telegramCommandNameFromRoute([]string{"!!!"}); ok {
		t.Fatalf("unsanitizable route should not produce a command name")
	}
}

func TestNewReqID(t *testing.T) {
	t.Parallel()

	a := newReqID()
	b := newReqID()
	if a == "" || b == "" {
		t.Fatalf("newReqID returned empty id")
	}
	if a == b {
		t.Fatalf("newReqID returned duplicate id %q", a)
	}
	for _, r := range a {
		if !strings.ContainsRune("abcdefghijklmnopqrstuvwxyz0123456789-", r) {
			t.Fatalf("newReqID produced unexpected rune %q in %q", r, a)
		}
	}
}
