// Package prefs turns the preferences section of the live config into the
// snapshot the use cases evaluate against.
package prefs

import (
	"context"
	"strings"
	"time"

	"gunter/internal/collab"
	"gunter/internal/config"
)

const DefaultTimezone = "Europe/Berlin"

// Defaults applied to unset fields.
var (
	DefaultLunchBreak = config.SlotConfig{
		Start: "11:00", End: "14:00", RequiredMinutes: 60, MaxDistanceKm: 1, MinutesBeforeStart: 30,
	}
	DefaultPersonalTrainer = config.SlotConfig{
		Start: "17:00", End: "21:00", RequiredMinutes: 60, MaxDistanceKm: 5, MinutesBeforeStart: 30,
	}
	DefaultTravel = config.TravelConfig{
		MinDistanceKm: 50, MaxDistanceKm: 200, Departure: "08:00", Return: "18:00",
	}
	DefaultPreparationMinutes = 45
)

// ConfigSource is satisfied by *config.Manager.
type ConfigSource interface {
	Get() *config.Config
}

// Source reads preferences from the committed config on every call.
type Source struct {
	cfg ConfigSource
}

func New(cfg ConfigSource) *Source { return &Source{cfg: cfg} }

var _ collab.PreferenceSource = (*Source)(nil)

// Checked returns a complete snapshot or a *collab.ConfigurationError naming
// the first required field that is missing or malformed.
func (s *Source) Checked(ctx context.Context) (collab.Preferences, error) {
	if err := ctx.Err(); err != nil {
		return collab.Preferences{}, err
	}
	var pc config.PreferencesConfig
	if c := s.cfg.Get(); c != nil {
		pc = c.Preferences
	}
	return FromConfig(pc)
}

// CalendarURL resolves only the feed URL. The calendar client calls it per fetch.
func (s *Source) CalendarURL(ctx context.Context) (string, error) {
	p, err := s.Checked(ctx)
	if err != nil {
		return "", err
	}
	return p.CalendarURL, nil
}

// FromConfig validates pc and fills defaults.
func FromConfig(pc config.PreferencesConfig) (collab.Preferences, error) {
	tz := strings.TrimSpace(pc.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return collab.Preferences{}, &collab.ConfigurationError{Field: "preferences.timezone", Reason: err.Error()}
	}
	if strings.TrimSpace(pc.CalendarURL) == "" {
		return collab.Preferences{}, &collab.ConfigurationError{Field: "preferences.calendar_url"}
	}
	if pc.Home == nil {
		return collab.Preferences{}, &collab.ConfigurationError{Field: "preferences.home"}
	}

	out := collab.Preferences{
		Location:           loc,
		CalendarURL:        strings.TrimSpace(pc.CalendarURL),
		Home:               collab.Location{Latitude: pc.Home.Latitude, Longitude: pc.Home.Longitude},
		PreparationMinutes: pc.PreparationMinutes,
	}
	if out.PreparationMinutes <= 0 {
		out.PreparationMinutes = DefaultPreparationMinutes
	}
	if out.LunchBreak, err = slot("preferences.lunch_break", pc.LunchBreak, DefaultLunchBreak); err != nil {
		return collab.Preferences{}, err
	}
	if out.PersonalTrainer, err = slot("preferences.personal_trainer", pc.PersonalTrainer, DefaultPersonalTrainer); err != nil {
		return collab.Preferences{}, err
	}
	if out.Travel, err = travel(pc.Travel); err != nil {
		return collab.Preferences{}, err
	}
	return out, nil
}

func slot(path string, c, def config.SlotConfig) (collab.SlotPreferences, error) {
	start, err := clock(path+".start", c.Start, def.Start)
	if err != nil {
		return collab.SlotPreferences{}, err
	}
	end, err := clock(path+".end", c.End, def.End)
	if err != nil {
		return collab.SlotPreferences{}, err
	}
	if end.Hour*60+end.Minute <= start.Hour*60+start.Minute {
		return collab.SlotPreferences{}, &collab.ConfigurationError{Field: path, Reason: "end must be after start"}
	}
	return collab.SlotPreferences{
		Start:              start,
		End:                end,
		RequiredMinutes:    orInt(c.RequiredMinutes, def.RequiredMinutes),
		MaxDistanceKm:      orFloat(c.MaxDistanceKm, def.MaxDistanceKm),
		MinutesBeforeStart: orInt(c.MinutesBeforeStart, def.MinutesBeforeStart),
	}, nil
}

func travel(c config.TravelConfig) (collab.TravelPreferences, error) {
	dep, err := clock("preferences.travel.departure", c.Departure, DefaultTravel.Departure)
	if err != nil {
		return collab.TravelPreferences{}, err
	}
	ret, err := clock("preferences.travel.return", c.Return, DefaultTravel.Return)
	if err != nil {
		return collab.TravelPreferences{}, err
	}
	return collab.TravelPreferences{
		MinDistanceKm: orFloat(c.MinDistanceKm, DefaultTravel.MinDistanceKm),
		MaxDistanceKm: orFloat(c.MaxDistanceKm, DefaultTravel.MaxDistanceKm),
		MainStationID: strings.TrimSpace(c.MainStationID),
		Departure:     dep,
		Return:        ret,
	}, nil
}

func clock(path, raw, def string) (collab.ClockTime, error) {
	if strings.TrimSpace(raw) == "" {
		raw = def
	}
	h, m, err := config.ParseClockField(path, raw, 0, 0)
	if err != nil {
		return collab.ClockTime{}, &collab.ConfigurationError{Field: path, Reason: err.Error()}
	}
	return collab.ClockTime{Hour: h, Minute: m}, nil
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
