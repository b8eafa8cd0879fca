package recommend

import (
	"math"
	"time"

	"gunter/internal/collab"
)

// Weekend is the upcoming Saturday and Sunday (midnight, local time).
type Weekend struct {
	Saturday     time.Time `json:"saturday"`
	Sunday       time.Time `json:"sunday"`
	SaturdayFree bool      `json:"saturday_free"`
	SundayFree   bool      `json:"sunday_free"`
}

// UpcomingWeekend returns the weekend containing now when it is Saturday,
// otherwise the next one.
func UpcomingWeekend(now time.Time, loc *time.Location) Weekend {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	y, m, d := n.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	ahead := (int(time.Saturday) - int(today.Weekday()) + 7) % 7
	sat := today.AddDate(0, 0, ahead)
	return Weekend{Saturday: sat, Sunday: sat.AddDate(0, 0, 1)}
}

// DayFree reports whether no event overlaps the calendar day starting at day.
func DayFree(events []collab.Event, day time.Time) bool {
	end := day.AddDate(0, 0, 1)
	for _, e := range events {
		if e.Start.Before(end) && e.End.After(day) {
			return false
		}
		if e.End.IsZero() && !e.Start.Before(day) && e.Start.Before(end) {
			return false
		}
	}
	return true
}

// At returns day at the given clock time in day's location.
func At(day time.Time, c collab.ClockTime) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between a and b.
func DistanceKm(a, b collab.Location) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(b.Latitude - a.Latitude)
	dLon := rad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Latitude))*math.Cos(rad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Destinations filters stations to the [min, max] km ring around home.
// A max of 0 means unbounded.
func Destinations(stations []collab.Station, home collab.Location, p collab.TravelPreferences) []collab.Station {
	out := make([]collab.Station, 0, len(stations))
	for _, s := range stations {
		if s.ID == p.MainStationID {
			continue
		}
		d := DistanceKm(home, s.Location)
		if d < p.MinDistanceKm {
			continue
		}
		if p.MaxDistanceKm > 0 && d > p.MaxDistanceKm {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ChooseDestination returns the explicitly requested station when id is set,
// otherwise a uniform pick among the eligible ring.
func ChooseDestination(stations []collab.Station, id string, home collab.Location, p collab.TravelPreferences, pk Picker) (collab.Station, bool) {
	if id != "" {
		for _, s := range stations {
			if s.ID == id {
				return s, true
			}
		}
		return collab.Station{}, false
	}
	return Pick(Destinations(stations, home, p), pk)
}
