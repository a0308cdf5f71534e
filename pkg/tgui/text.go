package tgui

// TruncRunes caps s at n runes, marking the cut with a single "…". The
// budget counts runes, not bytes, so multi-byte text never splits
// mid-character.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
