package collab

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (c ClockTime) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// SlotPreferences configure a daily free-slot search (lunch break, personal trainer).
type SlotPreferences struct {
	Start              ClockTime `json:"start"`
	End                ClockTime `json:"end"`
	RequiredMinutes    int       `json:"required_minutes"`
	MaxDistanceKm      float64   `json:"max_distance_km"`
	MinutesBeforeStart int       `json:"minutes_before_start"`
}

type TravelPreferences struct {
	MinDistanceKm float64   `json:"min_distance_km"`
	MaxDistanceKm float64   `json:"max_distance_km"`
	MainStationID string    `json:"main_station_id"`
	Departure     ClockTime `json:"departure"`
	Return        ClockTime `json:"return"`
}

// Preferences is an immutable snapshot read fresh for every evaluation.
type Preferences struct {
	Location           *time.Location    `json:"-"`
	CalendarURL        string            `json:"calendar_url"`
	Home               Location          `json:"home"`
	PreparationMinutes int               `json:"preparation_minutes"`
	LunchBreak         SlotPreferences   `json:"lunch_break"`
	PersonalTrainer    SlotPreferences   `json:"personal_trainer"`
	Travel             TravelPreferences `json:"travel"`
}

// TZ returns the preference timezone, falling back to time.Local.
func (p Preferences) TZ() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}
