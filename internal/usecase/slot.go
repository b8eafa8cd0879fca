package usecase

import (
	"context"
	"time"

	"gunter/internal/collab"
	"gunter/internal/recommend"
	"gunter/internal/task/scheduler"
	"gunter/internal/timewindow"
	logx "gunter/pkg/logx"
)

// SlotDetails is the query payload of the lunch break and personal trainer.
type SlotDetails struct {
	Window     timewindow.Window   `json:"window"`
	Slot       *timewindow.Window  `json:"slot,omitempty"`
	Weather    *collab.DayForecast `json:"weather,omitempty"`
	Place      *collab.POIResult   `json:"place,omitempty"`
	Connection *collab.Connection  `json:"connection,omitempty"`
}

// freeSlot finds today's longest free slot inside the preference window.
func (c *core) freeSlot(ctx context.Context, now time.Time, p collab.Preferences, sp collab.SlotPreferences, out *SlotDetails) (recommend.Reason, error) {
	window := recommend.SlotWindow(now, p.TZ(), sp)
	out.Window = window
	busy, err := fetch(ctx, c, "calendar", func(ctx context.Context) ([]timewindow.Window, error) {
		return c.deps.Calendar.BusyBetween(ctx, window.Start, window.End)
	})
	if err != nil {
		return recommend.ReasonNone, err
	}
	slot, reason := recommend.PickSlot(window, busy, sp.RequiredMinutes)
	if reason != recommend.ReasonNoSlot {
		out.Slot = &slot
	}
	return reason, nil
}

// randomPOI picks uniformly among the places of category within radiusKm of home.
func (c *core) randomPOI(ctx context.Context, home collab.Location, category string, radiusKm float64) (*collab.POIResult, error) {
	pois, err := fetch(ctx, c, "places", func(ctx context.Context) ([]collab.POIResult, error) {
		return c.deps.Places.POIsAround(ctx, collab.POIQuery{
			Location: home,
			Category: category,
			RadiusKm: radiusKm,
			Limit:    100,
		})
	})
	if err != nil {
		return nil, err
	}
	pick, ok := recommend.Pick(pois, c.deps.Picker)
	if !ok {
		return nil, nil
	}
	return &pick, nil
}

// routeTo looks up a connection from home for display. It never fails the query.
func (c *core) routeTo(ctx context.Context, home collab.Location, place *collab.POIResult, departure time.Time) *collab.Connection {
	if place == nil || c.deps.Transit == nil {
		return nil
	}
	dest := place.POI.Location
	conn, err := fetch(ctx, c, "transit", func(ctx context.Context) (*collab.Connection, error) {
		return c.deps.Transit.Connection(ctx, collab.ConnectionQuery{Origin: &home, Destination: &dest, Departure: departure})
	})
	if err != nil {
		c.log.Debug("no connection to place", logx.String("place", place.POI.Name), logx.Err(err))
		return nil
	}
	return conn
}

// LunchBreak suggests a nearby restaurant shortly before the longest free slot
// of the lunch window.
type LunchBreak struct {
	*core
}

func NewLunchBreak(d Deps) *LunchBreak {
	return &LunchBreak{core: newCore(recommend.LunchBreakID, d)}
}

// Trigger is weekdays at midnight.
func (l *LunchBreak) Trigger() scheduler.CronSpec {
	return scheduler.CronSpec{Weekdays: weekdays, Timezone: defaultTimezone}
}

func (l *LunchBreak) Run(ctx context.Context) {
	l.run(ctx, func(ctx context.Context, now time.Time) (recommend.Decision, error) {
		d, _, err := l.evaluate(ctx, now, false)
		return d, err
	})
}

func (l *LunchBreak) Query(ctx context.Context) View {
	now := l.deps.Now()
	d, details, err := l.evaluate(ctx, now, true)
	return l.view(now, d, details, err)
}

func (l *LunchBreak) evaluate(ctx context.Context, now time.Time, display bool) (recommend.Decision, *SlotDetails, error) {
	out := &SlotDetails{}
	p, err := l.prefs(ctx)
	if err != nil {
		return recommend.Decision{}, out, err
	}
	sp := p.LunchBreak
	reason, err := l.freeSlot(ctx, now, p, sp, out)
	if err != nil {
		return recommend.Decision{}, out, err
	}
	if reason != recommend.ReasonNone {
		return recommend.None(l.id, reason), out, nil
	}

	place, err := l.randomPOI(ctx, p.Home, collab.CategoryRestaurant, sp.MaxDistanceKm)
	if err != nil {
		return recommend.Decision{}, out, err
	}
	out.Place = place
	if display {
		out.Connection = l.routeTo(ctx, p.Home, place, out.Slot.Start)
	}
	return recommend.LunchBreak(*out.Slot, place, sp, p.TZ()), out, nil
}

// PersonalTrainer suggests a sports place for the longest free slot of the
// evening window: a sports centre when it rains, a park otherwise.
type PersonalTrainer struct {
	*core
}

func NewPersonalTrainer(d Deps) *PersonalTrainer {
	return &PersonalTrainer{core: newCore(recommend.PersonalTrainerID, d)}
}

// Trigger is every day at midnight.
func (t *PersonalTrainer) Trigger() scheduler.CronSpec {
	return scheduler.CronSpec{Timezone: defaultTimezone}
}

func (t *PersonalTrainer) Run(ctx context.Context) {
	t.run(ctx, func(ctx context.Context, now time.Time) (recommend.Decision, error) {
		d, _, err := t.evaluate(ctx, now, false)
		return d, err
	})
}

func (t *PersonalTrainer) Query(ctx context.Context) View {
	now := t.deps.Now()
	d, details, err := t.evaluate(ctx, now, true)
	return t.view(now, d, details, err)
}

func (t *PersonalTrainer) evaluate(ctx context.Context, now time.Time, display bool) (recommend.Decision, *SlotDetails, error) {
	out := &SlotDetails{}
	p, err := t.prefs(ctx)
	if err != nil {
		return recommend.Decision{}, out, err
	}
	sp := p.PersonalTrainer
	reason, err := t.freeSlot(ctx, now, p, sp, out)
	if err != nil {
		return recommend.Decision{}, out, err
	}
	if reason != recommend.ReasonNone {
		return recommend.None(t.id, reason), out, nil
	}

	days, err := fetch(ctx, t.core, "weather", func(ctx context.Context) ([]collab.DayForecast, error) {
		return t.deps.Weather.Forecast(ctx, collab.ForecastQuery{Location: p.Home, Days: 1})
	})
	if err == nil && len(days) == 0 {
		err = collab.Fetch("weather", errEmptyForecast)
	}
	if err != nil {
		return recommend.Decision{}, out, err
	}
	today := days[0]
	out.Weather = &today

	place, err := t.randomPOI(ctx, p.Home, recommend.SportsCategory(today), sp.MaxDistanceKm)
	if err != nil {
		return recommend.Decision{}, out, err
	}
	out.Place = place
	if display {
		out.Connection = t.routeTo(ctx, p.Home, place, out.Slot.Start)
	}
	return recommend.PersonalTrainer(*out.Slot, place, today.HasPrecipitation, sp, p.TZ()), out, nil
}
