package prefs

import (
	"context"
	"errors"
	"testing"

	"gunter/internal/collab"
	"gunter/internal/config"
)

type staticConfig struct{ cfg *config.Config }

func (s staticConfig) Get() *config.Config { return s.cfg }

func validPrefs() config.PreferencesConfig {
	return config.PreferencesConfig{
		CalendarURL: "https://example.invalid/cal.ics",
		Home:        &config.LocationConfig{Latitude: 48.78, Longitude: 9.18},
	}
}

func TestCheckedAppliesDefaults(t *testing.T) {
	t.Parallel()
	src := New(staticConfig{&config.Config{Preferences: validPrefs()}})
	p, err := src.Checked(context.Background())
	if err != nil {
		t.Fatalf("Checked: %v", err)
	}
	if p.TZ().String() != DefaultTimezone || p.PreparationMinutes != 45 {
		t.Fatalf("tz = %v, prep = %d", p.TZ(), p.PreparationMinutes)
	}
	lb := p.LunchBreak
	if lb.Start.String() != "11:00" || lb.End.String() != "14:00" || lb.RequiredMinutes != 60 || lb.MinutesBeforeStart != 30 || lb.MaxDistanceKm != 1 {
		t.Fatalf("lunch = %+v", lb)
	}
	if p.Travel.Departure.String() != "08:00" || p.Travel.MinDistanceKm != 50 {
		t.Fatalf("travel = %+v", p.Travel)
	}
	url, err := src.CalendarURL(context.Background())
	if err != nil || url != "https://example.invalid/cal.ics" {
		t.Fatalf("CalendarURL = %q, %v", url, err)
	}
}

func TestCheckedOverrides(t *testing.T) {
	t.Parallel()
	pc := validPrefs()
	pc.PreparationMinutes = 20
	pc.PersonalTrainer = config.SlotConfig{Start: "18:30", End: "20:00", RequiredMinutes: 45}
	p, err := FromConfig(pc)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	pt := p.PersonalTrainer
	if p.PreparationMinutes != 20 || pt.Start.String() != "18:30" || pt.RequiredMinutes != 45 || pt.MinutesBeforeStart != DefaultPersonalTrainer.MinutesBeforeStart {
		t.Fatalf("prefs = %+v", p)
	}
}

func TestCheckedConfigurationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.PreferencesConfig)
		field  string
	}{
		{"no calendar", func(p *config.PreferencesConfig) { p.CalendarURL = " " }, "preferences.calendar_url"},
		{"no home", func(p *config.PreferencesConfig) { p.Home = nil }, "preferences.home"},
		{"bad tz", func(p *config.PreferencesConfig) { p.Timezone = "Nowhere/Land" }, "preferences.timezone"},
		{"inverted slot", func(p *config.PreferencesConfig) {
			p.LunchBreak = config.SlotConfig{Start: "14:00", End: "11:00"}
		}, "preferences.lunch_break"},
		{"bad clock", func(p *config.PreferencesConfig) { p.Travel.Return = "6pm" }, "preferences.travel.return"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := validPrefs()
			tt.mutate(&pc)
			_, err := FromConfig(pc)
			var ce *collab.ConfigurationError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Fatalf("err = %v, want ConfigurationError on %s", err, tt.field)
			}
		})
	}

	src := New(staticConfig{nil})
	if _, err := src.Checked(context.Background()); !collab.IsConfiguration(err) {
		t.Fatalf("nil config err = %v", err)
	}
}
