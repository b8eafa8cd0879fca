package recommend

import (
	"math/rand"
	"sync"
	"time"

	"gunter/internal/collab"
	"gunter/internal/timewindow"
)

// Picker is the random source behind uniform candidate selection.
// *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
}

// NewPicker returns a seeded Picker that is safe for concurrent use.
func NewPicker(seed int64) Picker {
	return &lockedPicker{r: rand.New(rand.NewSource(seed))}
}

type lockedPicker struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (p *lockedPicker) Intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r.Intn(n)
}

// Pick returns a uniformly chosen element of items.
func Pick[T any](items []T, p Picker) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	if p == nil || len(items) == 1 {
		return items[0], true
	}
	return items[p.Intn(len(items))], true
}

// PickSlot returns the longest free slot inside window if it lasts at least
// requiredMinutes.
func PickSlot(window timewindow.Window, busy []timewindow.Window, requiredMinutes int) (timewindow.Window, Reason) {
	slot, ok := timewindow.LongestSlot(timewindow.FreeSlots(window, busy))
	if !ok {
		return timewindow.Window{}, ReasonNoSlot
	}
	if timewindow.DurationMinutes(slot) < float64(requiredMinutes) {
		return slot, ReasonSlotTooShort
	}
	return slot, ReasonNone
}

// SlotWindow is today's search window for a slot preference.
func SlotWindow(now time.Time, loc *time.Location, p collab.SlotPreferences) timewindow.Window {
	return timewindow.Day(now, loc, p.Start.Hour, p.Start.Minute, p.End.Hour, p.End.Minute)
}

// LunchBreak recommends a restaurant visit in slot. A nil restaurant yields NoAction.
func LunchBreak(slot timewindow.Window, restaurant *collab.POIResult, p collab.SlotPreferences, loc *time.Location) Decision {
	if restaurant == nil {
		return None(LunchBreakID, ReasonNoCandidate)
	}
	at := slot.Start.Add(-time.Duration(p.MinutesBeforeStart) * time.Minute)
	body := "You have some time to spare during your lunch break at " + Clock(slot.Start, loc) + ", why not try a restaurant?"
	d := schedule(LunchBreakID, at, "Recommended restaurant for your lunch break", body)
	d.Metadata["restaurant"] = restaurant.POI.Name
	d.Metadata["slot_start"] = slot.Start.Format(time.RFC3339)
	return d
}

// SportsCategory picks indoor sports when it rains and outdoor areas otherwise.
func SportsCategory(today collab.DayForecast) string {
	if today.HasPrecipitation {
		return collab.CategorySportsCenter
	}
	return collab.CategoryParkRecreation
}

// PersonalTrainer recommends a sports place in slot. A nil place yields NoAction.
func PersonalTrainer(slot timewindow.Window, place *collab.POIResult, raining bool, p collab.SlotPreferences, loc *time.Location) Decision {
	if place == nil {
		return None(PersonalTrainerID, ReasonNoCandidate)
	}
	rain := "does not rain"
	if raining {
		rain = "rains"
	}
	at := slot.Start.Add(-time.Duration(p.MinutesBeforeStart) * time.Minute)
	body := "You have got a little time at " + Clock(slot.Start, loc) + ". Since it " + rain +
		" today, why not do some sports at " + place.POI.Name + "?"
	d := schedule(PersonalTrainerID, at, "Recommended sports activity", body)
	d.Metadata["place"] = place.POI.Name
	d.Metadata["slot_start"] = slot.Start.Format(time.RFC3339)
	return d
}
