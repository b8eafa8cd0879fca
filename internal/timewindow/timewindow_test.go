package timewindow

import (
	"math/rand"
	"testing"
	"time"
)

var day = time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func w(sh, sm, eh, em int) Window { return Window{Start: at(sh, sm), End: at(eh, em)} }

func equalSlots(a, b []Window) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}

func TestFreeSlots(t *testing.T) {
	t.Parallel()
	window := w(9, 0, 17, 0)
	tests := []struct {
		name string
		win  Window
		busy []Window
		want []Window
	}{
		{name: "no busy", win: window, want: []Window{window}},
		{name: "empty window", win: w(9, 0, 9, 0), busy: nil, want: nil},
		{name: "overlap merge", win: window, busy: []Window{w(9, 0, 10, 0), w(9, 30, 11, 0)}, want: []Window{w(11, 0, 17, 0)}},
		{name: "unsorted and touching", win: window, busy: []Window{w(13, 0, 14, 0), w(12, 0, 13, 0)}, want: []Window{w(9, 0, 12, 0), w(14, 0, 17, 0)}},
		{name: "covers window", win: window, busy: []Window{w(8, 0, 18, 0)}, want: nil},
		{name: "partially outside", win: window, busy: []Window{w(7, 0, 10, 0), w(16, 0, 20, 0)}, want: []Window{w(10, 0, 16, 0)}},
		{name: "fully outside", win: window, busy: []Window{w(6, 0, 7, 0), w(18, 0, 19, 0)}, want: []Window{window}},
		{name: "contained", win: window, busy: []Window{w(11, 0, 12, 0), w(11, 15, 11, 45)}, want: []Window{w(9, 0, 11, 0), w(12, 0, 17, 0)}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := FreeSlots(tt.win, tt.busy)
			if !equalSlots(got, tt.want) {
				t.Fatalf("FreeSlots = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFreeSlotsDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	busy := []Window{w(13, 0, 14, 0), w(10, 0, 11, 0)}
	_ = FreeSlots(w(9, 0, 17, 0), busy)
	if !busy[0].Start.Equal(at(13, 0)) {
		t.Fatal("input slice reordered")
	}
}

// Free slots plus the clipped busy set must tile the window exactly.
func TestFreeSlotsComplementProperty(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	window := w(8, 0, 18, 0)
	for i := 0; i < 500; i++ {
		n := rng.Intn(8)
		busy := make([]Window, 0, n)
		for j := 0; j < n; j++ {
			start := at(6, 0).Add(time.Duration(rng.Intn(14*60)) * time.Minute)
			busy = append(busy, Window{Start: start, End: start.Add(time.Duration(rng.Intn(180)) * time.Minute)})
		}
		slots := FreeSlots(window, busy)

		var clipped []Window
		for _, b := range busy {
			if c, ok := b.Clip(window); ok {
				clipped = append(clipped, c)
			}
		}
		all := Merge(append(append([]Window(nil), slots...), clipped...))
		if len(all) != 1 || !all[0].Start.Equal(window.Start) || !all[0].End.Equal(window.End) {
			t.Fatalf("iteration %d: union %v does not reconstruct %v (busy %v)", i, all, window, busy)
		}
		for k := 1; k < len(slots); k++ {
			if slots[k].Start.Before(slots[k-1].End) {
				t.Fatalf("iteration %d: overlapping slots %v", i, slots)
			}
		}
		for _, s := range slots {
			for _, b := range clipped {
				if s.Start.Before(b.End) && b.Start.Before(s.End) {
					t.Fatalf("iteration %d: slot %v intersects busy %v", i, s, b)
				}
			}
		}
	}
}

func TestLongestSlot(t *testing.T) {
	t.Parallel()
	if _, ok := LongestSlot(nil); ok {
		t.Fatal("expected ok=false for empty input")
	}
	one := w(9, 0, 10, 0)
	if got, ok := LongestSlot([]Window{one}); !ok || got != one {
		t.Fatalf("single slot = %v, %v", got, ok)
	}
	got, _ := LongestSlot([]Window{w(15, 0, 16, 0), w(9, 0, 9, 30), w(11, 0, 12, 0)})
	if !got.Start.Equal(at(11, 0)) {
		t.Fatalf("tie should prefer earliest start, got %v", got)
	}
	got, _ = LongestSlot([]Window{w(9, 0, 9, 30), w(13, 0, 15, 0)})
	if !got.Start.Equal(at(13, 0)) {
		t.Fatalf("longest = %v", got)
	}
}

func TestDurationMinutesAcrossDST(t *testing.T) {
	t.Parallel()
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2024-03-31: clocks jump from 02:00 to 03:00.
	spring := Window{
		Start: time.Date(2024, 3, 31, 1, 0, 0, 0, berlin),
		End:   time.Date(2024, 3, 31, 4, 0, 0, 0, berlin),
	}
	if got := DurationMinutes(spring); got != 180 {
		t.Fatalf("spring forward minutes = %v, want 180", got)
	}
	// 2024-10-27: clocks fall back from 03:00 to 02:00.
	autumn := Window{
		Start: time.Date(2024, 10, 27, 1, 0, 0, 0, berlin),
		End:   time.Date(2024, 10, 27, 4, 0, 0, 0, berlin),
	}
	if got := DurationMinutes(autumn); got != 180 {
		t.Fatalf("fall back minutes = %v, want 180", got)
	}
	if got := DurationMinutes(w(11, 0, 12, 0)); got != 60 {
		t.Fatalf("plain minutes = %v, want 60", got)
	}
}

func TestNewRejectsInverted(t *testing.T) {
	t.Parallel()
	if _, err := New(at(10, 0), at(9, 0)); err == nil {
		t.Fatal("expected error for inverted window")
	}
	if _, err := New(at(9, 0), at(9, 0)); err != nil {
		t.Fatalf("zero-length window should be valid: %v", err)
	}
}

func TestDay(t *testing.T) {
	t.Parallel()
	got := Day(at(8, 0), time.UTC, 11, 0, 14, 0)
	if !got.Start.Equal(at(11, 0)) || !got.End.Equal(at(14, 0)) {
		t.Fatalf("Day = %v", got)
	}
}
