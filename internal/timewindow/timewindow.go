// Package timewindow computes free slots inside a bounded interval.
//
// All functions are pure; inputs are never mutated.
package timewindow

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInverted = errors.New("window end before start")

// Window is a half-open span [Start, End). Busy calendar spans use the same type.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New returns a validated window.
func New(start, end time.Time) (Window, error) {
	if end.Before(start) {
		return Window{}, fmt.Errorf("%w: %s > %s", ErrInverted, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Window{Start: start, End: end}, nil
}

// Empty reports whether the window spans no time.
func (w Window) Empty() bool { return !w.End.After(w.Start) }

// Duration is the elapsed time between Start and End (zero for empty windows).
func (w Window) Duration() time.Duration {
	if w.Empty() {
		return 0
	}
	return w.End.Round(0).Sub(w.Start.Round(0))
}

// Clip returns the part of w inside bounds. ok is false when nothing is left.
func (w Window) Clip(bounds Window) (Window, bool) {
	start, end := w.Start, w.End
	if start.Before(bounds.Start) {
		start = bounds.Start
	}
	if end.After(bounds.End) {
		end = bounds.End
	}
	out := Window{Start: start, End: end}
	if out.Empty() {
		return Window{}, false
	}
	return out, true
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339)
}

// Merge sorts spans by start and folds overlapping or touching ones together.
// Empty spans are dropped.
func Merge(spans []Window) []Window {
	sorted := make([]Window, 0, len(spans))
	for _, s := range spans {
		if !s.Empty() {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := make([]Window, 0, len(sorted))
	for _, s := range sorted {
		if n := len(out); n > 0 && !s.Start.After(out[n-1].End) {
			if s.End.After(out[n-1].End) {
				out[n-1].End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// FreeSlots returns the complement of busy inside window, in ascending order.
// Busy spans may overlap, touch, be unsorted or stick out of window.
func FreeSlots(window Window, busy []Window) []Window {
	if window.Empty() {
		return nil
	}
	clipped := make([]Window, 0, len(busy))
	for _, b := range busy {
		if c, ok := b.Clip(window); ok {
			clipped = append(clipped, c)
		}
	}

	var out []Window
	cursor := window.Start
	for _, b := range Merge(clipped) {
		if b.Start.After(cursor) {
			out = append(out, Window{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if window.End.After(cursor) {
		out = append(out, Window{Start: cursor, End: window.End})
	}
	return out
}

// LongestSlot picks the slot with the largest duration; ties go to the earliest start.
// ok is false for an empty input.
func LongestSlot(slots []Window) (Window, bool) {
	if len(slots) == 0 {
		return Window{}, false
	}
	best := slots[0]
	for _, s := range slots[1:] {
		d, bd := s.Duration(), best.Duration()
		if d > bd || (d == bd && s.Start.Before(best.Start)) {
			best = s
		}
	}
	return best, true
}

// DurationMinutes is the slot length in minutes as read off the wall clock of
// the end's location: 01:00 to 04:00 is 180 minutes on a DST switch day too.
func DurationMinutes(w Window) float64 {
	loc := w.End.Location()
	return wallClock(w.End, loc).Sub(wallClock(w.Start, loc)).Minutes()
}

func wallClock(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// Day returns the [hh:mm, hh:mm) window of the calendar day containing ref, in loc.
func Day(ref time.Time, loc *time.Location, startH, startM, endH, endM int) Window {
	if loc == nil {
		loc = time.Local
	}
	d := ref.In(loc)
	y, mo, dd := d.Date()
	return Window{
		Start: time.Date(y, mo, dd, startH, startM, 0, 0, loc),
		End:   time.Date(y, mo, dd, endH, endM, 0, 0, loc),
	}
}
