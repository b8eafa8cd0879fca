package tgui

import "unicode/utf8"

// MaxMessageRunes is Telegram's text message limit after entity parsing.
const MaxMessageRunes = 4096

// TruncRunes returns s cut to at most n runes, the last being "…" when cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n-1 {
			return s[:i] + "…"
		}
		count++
	}
	return s
}

// Message renders a notification: bold title, blank line, body. The body is
// shortened so the visible text stays within MaxMessageRunes.
func Message(title, body string) H {
	room := MaxMessageRunes - utf8.RuneCountInString(title) - 2
	if body == "" || room <= 0 {
		return B(TruncRunes(title, MaxMessageRunes))
	}
	return JoinH("\n\n", B(title), Esc(TruncRunes(body, room)))
}
