package recommend

import (
	"sort"
	"time"

	"gunter/internal/collab"
)

// FirstEvent selects the event the morning routine prepares for.
//
// From events starting in [today 00:00, day after tomorrow 00:00) it prefers the
// earliest one that has not started yet and ends by the end of today. Failing
// that it takes the earliest event starting tomorrow.
func FirstEvent(events []collab.Event, now time.Time, loc *time.Location) (collab.Event, bool) {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	y, m, d := n.Date()
	todayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	todayEnd := todayStart.AddDate(0, 0, 1)
	tomorrowEnd := todayStart.AddDate(0, 0, 2)

	sorted := append([]collab.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for _, e := range sorted {
		if e.Start.Before(todayStart) || !e.Start.Before(todayEnd) {
			continue
		}
		if !e.Start.Before(now) && !e.End.After(todayEnd) {
			return e, true
		}
	}
	for _, e := range sorted {
		if !e.Start.Before(todayEnd) && e.Start.Before(tomorrowEnd) {
			return e, true
		}
	}
	return collab.Event{}, false
}

type MorningFacts struct {
	Event              collab.Event
	Connection         *collab.Connection
	PreparationMinutes int
	Location           *time.Location
}

// MorningRoutine computes the wake-up notification. Without a usable connection
// it falls back to the event start.
func MorningRoutine(f MorningFacts) Decision {
	prep := time.Duration(f.PreparationMinutes) * time.Minute
	leave := f.Event.Start
	hasConnection := f.Connection != nil && !f.Connection.Departure.IsZero()
	if hasConnection {
		leave = f.Connection.Departure
	}

	body := f.Event.Summary + " starts at " + Clock(f.Event.Start, f.Location) + "."
	if hasConnection {
		body += " You have to leave at " + Clock(leave, f.Location) + "."
	}

	d := schedule(MorningRoutineID, leave.Add(-prep), "Wake up!", body)
	d.Metadata["event"] = f.Event.Summary
	d.Metadata["event_start"] = f.Event.Start.Format(time.RFC3339)
	if hasConnection {
		d.Metadata["departure"] = leave.Format(time.RFC3339)
	}
	return d
}
