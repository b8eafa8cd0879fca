package recommend

import (
	"testing"
	"time"

	"gunter/internal/collab"
	"gunter/internal/timewindow"
)

var base = time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)

func hm(h, m int) time.Time { return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

type fixedPicker int

func (p fixedPicker) Intn(n int) int { return int(p) % n }

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestFirstEvent(t *testing.T) {
	t.Parallel()
	ev := func(name string, start, end time.Time) collab.Event {
		return collab.Event{Summary: name, Start: start, End: end}
	}
	tomorrow := func(h int) time.Time { return hm(24+h, 0) }

	tests := []struct {
		name   string
		now    time.Time
		events []collab.Event
		want   string
		ok     bool
	}{
		{name: "none", now: hm(6, 0), ok: false},
		{name: "today upcoming", now: hm(6, 0), events: []collab.Event{ev("standup", hm(9, 0), hm(9, 15)), ev("lunch", hm(12, 0), hm(13, 0))}, want: "standup", ok: true},
		{name: "unsorted input", now: hm(6, 0), events: []collab.Event{ev("lunch", hm(12, 0), hm(13, 0)), ev("standup", hm(9, 0), hm(9, 15))}, want: "standup", ok: true},
		{name: "skip started", now: hm(10, 0), events: []collab.Event{ev("standup", hm(9, 0), hm(9, 15)), ev("lunch", hm(12, 0), hm(13, 0))}, want: "lunch", ok: true},
		{name: "today over falls back to tomorrow", now: hm(20, 0), events: []collab.Event{ev("standup", hm(9, 0), hm(9, 15)), ev("review", tomorrow(10), tomorrow(11)), ev("retro", tomorrow(8), tomorrow(9))}, want: "retro", ok: true},
		{name: "overnight event is skipped", now: hm(6, 0), events: []collab.Event{ev("night shift", hm(22, 0), tomorrow(6)), ev("review", tomorrow(10), tomorrow(11))}, want: "review", ok: true},
		{name: "day after tomorrow ignored", now: hm(20, 0), events: []collab.Event{ev("later", hm(49, 0), hm(50, 0))}, ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstEvent(tt.events, tt.now, time.UTC)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.Summary != tt.want {
				t.Fatalf("event = %q, want %q", got.Summary, tt.want)
			}
		})
	}
}

func TestMorningRoutine(t *testing.T) {
	t.Parallel()
	event := collab.Event{Summary: "Standup", Location: "Office", Start: hm(9, 0), End: hm(9, 15)}

	d := MorningRoutine(MorningFacts{
		Event:              event,
		Connection:         &collab.Connection{Departure: hm(8, 20), Arrival: hm(8, 55)},
		PreparationMinutes: 45,
		Location:           time.UTC,
	})
	if !d.Scheduled() || !d.TriggerTime.Equal(hm(7, 35)) {
		t.Fatalf("trigger = %v, want 07:35", d.TriggerTime)
	}
	if d.Title != "Wake up!" || d.Body != "Standup starts at 09:00. You have to leave at 08:20." {
		t.Fatalf("unexpected message %q / %q", d.Title, d.Body)
	}

	event.Location = ""
	d = MorningRoutine(MorningFacts{Event: event, PreparationMinutes: 45, Location: time.UTC})
	if !d.TriggerTime.Equal(hm(8, 15)) {
		t.Fatalf("fallback trigger = %v, want 08:15", d.TriggerTime)
	}
	if d.Body != "Standup starts at 09:00." {
		t.Fatalf("fallback body = %q", d.Body)
	}
}

func TestPickSlot(t *testing.T) {
	t.Parallel()
	window := timewindow.Window{Start: hm(11, 0), End: hm(14, 0)}

	slot, reason := PickSlot(window, []timewindow.Window{{Start: hm(12, 0), End: hm(14, 0)}}, 60)
	if reason != ReasonNone || !slot.Start.Equal(hm(11, 0)) {
		t.Fatalf("slot = %v reason = %q", slot, reason)
	}
	if _, reason := PickSlot(window, []timewindow.Window{{Start: hm(11, 30), End: hm(14, 0)}}, 60); reason != ReasonSlotTooShort {
		t.Fatalf("reason = %q, want too short", reason)
	}
	if _, reason := PickSlot(window, []timewindow.Window{{Start: hm(10, 0), End: hm(15, 0)}}, 60); reason != ReasonNoSlot {
		t.Fatalf("reason = %q, want no slot", reason)
	}
}

func TestLunchBreak(t *testing.T) {
	t.Parallel()
	loc := berlin(t)
	prefs := collab.SlotPreferences{RequiredMinutes: 60, MinutesBeforeStart: 30}
	slot := timewindow.Window{Start: hm(11, 0), End: hm(12, 0)}
	restaurant := &collab.POIResult{POI: collab.POI{Name: "Trattoria"}}

	d := LunchBreak(slot, restaurant, prefs, loc)
	if !d.Scheduled() || !d.TriggerTime.Equal(hm(10, 30)) {
		t.Fatalf("trigger = %v, want 10:30Z", d.TriggerTime)
	}
	want := "You have some time to spare during your lunch break at 12:00, why not try a restaurant?"
	if d.Body != want {
		t.Fatalf("body = %q", d.Body)
	}
	n := d.Notification()
	if n.Icon != "/favicon.jpg" || n.Badge != "/badge.png" || n.Data["usecase"] != "lunch-break" {
		t.Fatalf("notification = %+v", n)
	}

	if d := LunchBreak(slot, nil, prefs, loc); d.Scheduled() || d.Reason != ReasonNoCandidate {
		t.Fatalf("nil restaurant should be NoAction, got %+v", d)
	}
}

func TestLunchBreakShortSlotIsNoAction(t *testing.T) {
	t.Parallel()
	window := timewindow.Window{Start: hm(11, 0), End: hm(14, 0)}
	busy := []timewindow.Window{{Start: hm(11, 30), End: hm(14, 0)}}
	if _, reason := PickSlot(window, busy, 60); reason == ReasonNone {
		t.Fatal("30 minute slot must not satisfy 60 required minutes")
	}
}

func TestPersonalTrainer(t *testing.T) {
	t.Parallel()
	prefs := collab.SlotPreferences{MinutesBeforeStart: 15}
	slot := timewindow.Window{Start: hm(17, 0), End: hm(19, 0)}
	place := &collab.POIResult{POI: collab.POI{Name: "City Gym"}}

	d := PersonalTrainer(slot, place, true, prefs, time.UTC)
	if !d.TriggerTime.Equal(hm(16, 45)) {
		t.Fatalf("trigger = %v", d.TriggerTime)
	}
	want := "You have got a little time at 17:00. Since it rains today, why not do some sports at City Gym?"
	if d.Body != want {
		t.Fatalf("body = %q", d.Body)
	}
	if d := PersonalTrainer(slot, place, false, prefs, time.UTC); d.Body[len(d.Body)-len("City Gym?"):] != "City Gym?" {
		t.Fatalf("body = %q", d.Body)
	}

	if got := SportsCategory(collab.DayForecast{HasPrecipitation: true}); got != collab.CategorySportsCenter {
		t.Fatalf("rain category = %s", got)
	}
	if got := SportsCategory(collab.DayForecast{}); got != collab.CategoryParkRecreation {
		t.Fatalf("dry category = %s", got)
	}
}

func TestDue(t *testing.T) {
	t.Parallel()
	d := schedule(LunchBreakID, hm(10, 30), "t", "b")
	if got := d.Due(hm(10, 0)); !got.Scheduled() {
		t.Fatal("future trigger should stay scheduled")
	}
	got := d.Due(hm(10, 30))
	if got.Scheduled() || got.Reason != ReasonPastDue {
		t.Fatalf("trigger equal to now should be past due, got %+v", got)
	}
}

func TestPick(t *testing.T) {
	t.Parallel()
	items := []string{"a", "b", "c"}
	if got, _ := Pick(items, fixedPicker(2)); got != "c" {
		t.Fatalf("Pick = %s", got)
	}
	if _, ok := Pick([]string(nil), fixedPicker(0)); ok {
		t.Fatal("empty input should not pick")
	}
	seen := map[string]bool{}
	p := NewPicker(7)
	for i := 0; i < 200; i++ {
		v, _ := Pick(items, p)
		seen[v] = true
	}
	if len(seen) != 3 {
		t.Fatalf("seeded picker should reach every candidate, saw %v", seen)
	}
}

func TestUpcomingWeekend(t *testing.T) {
	t.Parallel()
	// 2020-01-15 is a Wednesday.
	w := UpcomingWeekend(hm(9, 0), time.UTC)
	if w.Saturday.Weekday() != time.Saturday || w.Saturday.Day() != 18 || w.Sunday.Day() != 19 {
		t.Fatalf("weekend = %v / %v", w.Saturday, w.Sunday)
	}
	sat := time.Date(2020, 1, 18, 15, 0, 0, 0, time.UTC)
	if w := UpcomingWeekend(sat, time.UTC); w.Saturday.Day() != 18 {
		t.Fatalf("saturday should map to itself, got %v", w.Saturday)
	}
	sun := time.Date(2020, 1, 19, 15, 0, 0, 0, time.UTC)
	if w := UpcomingWeekend(sun, time.UTC); w.Saturday.Day() != 25 {
		t.Fatalf("sunday should map to next weekend, got %v", w.Saturday)
	}
}

func TestDayFree(t *testing.T) {
	t.Parallel()
	sat := time.Date(2020, 1, 18, 0, 0, 0, 0, time.UTC)
	events := []collab.Event{{Start: sat.Add(10 * time.Hour), End: sat.Add(11 * time.Hour)}}
	if DayFree(events, sat) {
		t.Fatal("saturday has an event")
	}
	if !DayFree(events, sat.AddDate(0, 0, 1)) {
		t.Fatal("sunday should be free")
	}
}

func TestChooseDestination(t *testing.T) {
	t.Parallel()
	home := collab.Location{Latitude: 48.7836, Longitude: 9.1814} // Stuttgart Hbf
	stations := []collab.Station{
		{ID: "main", Name: "Stuttgart Hbf", Location: home},
		{ID: "esslingen", Name: "Esslingen", Location: collab.Location{Latitude: 48.7394, Longitude: 9.3045}},
		{ID: "munich", Name: "München Hbf", Location: collab.Location{Latitude: 48.1402, Longitude: 11.5584}},
		{ID: "ulm", Name: "Ulm Hbf", Location: collab.Location{Latitude: 48.3994, Longitude: 9.9826}},
	}
	prefs := collab.TravelPreferences{MinDistanceKm: 50, MaxDistanceKm: 150, MainStationID: "main"}

	got := Destinations(stations, home, prefs)
	if len(got) != 1 || got[0].ID != "ulm" {
		t.Fatalf("destinations = %+v", got)
	}
	if s, ok := ChooseDestination(stations, "munich", home, prefs, fixedPicker(0)); !ok || s.ID != "munich" {
		t.Fatalf("explicit destination = %+v, %v", s, ok)
	}
	if _, ok := ChooseDestination(stations, "nowhere", home, prefs, fixedPicker(0)); ok {
		t.Fatal("unknown id should not resolve")
	}
	if d := DistanceKm(home, stations[2].Location); d < 180 || d > 200 {
		t.Fatalf("Stuttgart-Munich distance = %.1f km", d)
	}
}
