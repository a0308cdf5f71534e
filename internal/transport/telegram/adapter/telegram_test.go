package adapter

import (
	"strings"
	"testing"
)

func TestSplitTelegramTextShortPassthrough(t *testing.T) {
	t.Parallel()

	got := splitTelegramText("hello", 100, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("short text should stay a single chunk, got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	got := splitTelegramText("aaaa\nbbbb\ncccc", 10, "")
	want := []string{"aaaa\nbbbb", "cccc"}
	if len(got) != len(want) {
		t.Fatalf("chunks = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTelegramTextHardCutWithoutNewlines(t *testing.T) {
	t.Parallel()

	got := splitTelegramText("abcdefghij", 4, "")
	want := []string{"abcd", "efgh", "ij"}
	if len(got) != len(want) {
		t.Fatalf("chunks = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTelegramTextAvoidsCuttingInsideHTMLTag(t *testing.T) {
	t.Parallel()

	// The window ends between '<' and '>'; the cut must back up so the tag
	// lands intact in the next chunk.
	got := splitTelegramText("aaaaaaaa<b>x</b>", 10, "HTML")
	if len(got) != 2 {
		t.Fatalf("chunks = %q, want 2 chunks", got)
	}
	if got[0] != "aaaaaaaa" {
		t.Fatalf("chunk[0] = %q, want %q", got[0], "aaaaaaaa")
	}
	if got[1] != "<b>x</b>" {
		t.Fatalf("chunk[1] = %q, want %q", got[1], "<b>x</b>")
	}
}

func TestSplitTelegramTextSkipsBlankRunBetweenChunks(t *testing.T) {
	t.Parallel()

	got := splitTelegramText("aaaa\n\n\nbbbb", 5, "")
	want := []string{"aaaa", "bbbb"}
	if len(got) != len(want) {
		t.Fatalf("chunks = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTelegramTextCountsRunes(t *testing.T) {
	t.Parallel()

	// 12 two-byte runes; a byte-based limit of 8 would split mid-rune.
	s := strings.Repeat("é", 12)
	got := splitTelegramText(s, 8, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if got[0] != strings.Repeat("é", 8) || got[1] != strings.Repeat("é", 4) {
		t.Fatalf("rune split wrong: %q", got)
	}
	for _, c := range got {
		if !strings.HasPrefix(c, "é") {
			t.Fatalf("chunk starts with broken rune: %q", c)
		}
	}
}
