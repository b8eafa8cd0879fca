package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"grüße", 3, "gr…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	got := Message("Wake up!", "Standup <daily> starts at 09:00 & ends at 09:15.")
	want := "<b>Wake up!</b>\n\nStandup &lt;daily&gt; starts at 09:00 &amp; ends at 09:15."
	if got.String() != want {
		t.Fatalf("Message = %q", got)
	}
	if got := Message("Title", ""); got != "<b>Title</b>" {
		t.Fatalf("title only = %q", got)
	}

	long := Message("T", strings.Repeat("a", 5000))
	visible := strings.TrimPrefix(long.String(), "<b>T</b>\n\n")
	if n := utf8.RuneCountInString(visible) + 3; n != MaxMessageRunes {
		t.Fatalf("visible runes = %d", n)
	}
	if !strings.HasSuffix(visible, "…") {
		t.Fatal("long body not marked as cut")
	}
}
