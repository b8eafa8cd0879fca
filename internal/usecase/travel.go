package usecase

import (
	"context"
	"errors"
	"time"

	"gunter/internal/collab"
	"gunter/internal/recommend"
	logx "gunter/pkg/logx"
)

var errEmptyForecast = errors.New("empty forecast")

// TravelPlanning proposes a weekend trip. It is on-demand only: no trigger and
// no notification.
type TravelPlanning struct {
	*core
}

func NewTravelPlanning(d Deps) *TravelPlanning {
	return &TravelPlanning{core: newCore(recommend.TravelPlanningID, d)}
}

// TravelPlan is the trip proposal for the upcoming weekend.
type TravelPlan struct {
	recommend.Weekend
	Destination     *collab.Station     `json:"destination,omitempty"`
	Outbound        *collab.Connection  `json:"connection_to_destination,omitempty"`
	Return          *collab.Connection  `json:"connection_from_destination,omitempty"`
	SaturdayWeather *collab.DayForecast `json:"saturday_weather,omitempty"`
	SundayWeather   *collab.DayForecast `json:"sunday_weather,omitempty"`
}

// Query plans a trip to a randomly chosen destination.
func (t *TravelPlanning) Query(ctx context.Context) View {
	return t.Plan(ctx, "")
}

// Plan plans a trip to destinationID, or to a random station within the
// preferred distance ring when destinationID is empty.
func (t *TravelPlanning) Plan(ctx context.Context, destinationID string) View {
	now := t.deps.Now()
	v := View{UseCase: t.id, At: now}
	plan, err := t.plan(ctx, now, destinationID)
	v.Details = plan
	switch {
	case err != nil:
		v.Failed = true
		v.Message = failureMessage(err)
		t.log.Debug("plan failed", logx.Err(err))
	case plan.Destination == nil:
		v.Message = "Could not find a destination for the weekend."
	case plan.Outbound == nil || plan.Return == nil:
		v.Message = "Could not find a connection to " + plan.Destination.Name + "."
	default:
		v.Message = "How about a trip to " + plan.Destination.Name + " this weekend?"
	}
	return v
}

func (t *TravelPlanning) plan(ctx context.Context, now time.Time, destinationID string) (*TravelPlan, error) {
	p, err := t.prefs(ctx)
	if err != nil {
		return nil, err
	}
	loc := p.TZ()
	out := &TravelPlan{Weekend: recommend.UpcomingWeekend(now, loc)}

	events, err := fetch(ctx, t.core, "calendar", func(ctx context.Context) ([]collab.Event, error) {
		return t.deps.Calendar.EventsStartingBetween(ctx, out.Saturday.AddDate(0, 0, -1), out.Sunday.AddDate(0, 0, 1))
	})
	if err != nil {
		return out, err
	}
	out.SaturdayFree = recommend.DayFree(events, out.Saturday)
	out.SundayFree = recommend.DayFree(events, out.Sunday)

	stations, err := fetch(ctx, t.core, "stations", t.deps.Stations.Stations)
	if err != nil {
		return out, err
	}
	dest, ok := recommend.ChooseDestination(stations, destinationID, p.Home, p.Travel, t.deps.Picker)
	if !ok {
		return out, nil
	}
	out.Destination = &dest

	there := collab.ConnectionQuery{DestinationID: dest.ID, Departure: recommend.At(out.Saturday, p.Travel.Departure)}
	back := collab.ConnectionQuery{OriginID: dest.ID, Departure: recommend.At(out.Sunday, p.Travel.Return)}
	if p.Travel.MainStationID != "" {
		there.OriginID = p.Travel.MainStationID
		back.DestinationID = p.Travel.MainStationID
	} else {
		home := p.Home
		there.Origin = &home
		back.Destination = &home
	}
	if out.Outbound, err = t.connection(ctx, there); err != nil {
		return out, err
	}
	if out.Return, err = t.connection(ctx, back); err != nil {
		return out, err
	}

	// Forecast index 0 is today.
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	satIdx := daysBetween(today, out.Saturday)
	sunIdx := daysBetween(today, out.Sunday)
	days, err := fetch(ctx, t.core, "weather", func(ctx context.Context) ([]collab.DayForecast, error) {
		return t.deps.Weather.Forecast(ctx, collab.ForecastQuery{Location: dest.Location, Days: sunIdx + 1})
	})
	if err != nil {
		t.log.Debug("destination forecast unavailable", logx.String("destination", dest.Name), logx.Err(err))
		return out, nil
	}
	if satIdx < len(days) {
		out.SaturdayWeather = &days[satIdx]
	}
	if sunIdx < len(days) {
		out.SundayWeather = &days[sunIdx]
	}
	return out, nil
}

// ConnectionToMainStation finds the connection from home to the configured main
// station arriving by arrival, for the start of a confirmed trip.
func (t *TravelPlanning) ConnectionToMainStation(ctx context.Context, arrival time.Time) (*collab.Connection, error) {
	p, err := t.prefs(ctx)
	if err != nil {
		return nil, err
	}
	if p.Travel.MainStationID == "" {
		return nil, &collab.ConfigurationError{Field: "travel.main_station_id", Reason: "required for trip confirmation"}
	}
	home := p.Home
	return t.connection(ctx, collab.ConnectionQuery{Origin: &home, DestinationID: p.Travel.MainStationID, Arrival: arrival})
}

func (t *TravelPlanning) connection(ctx context.Context, q collab.ConnectionQuery) (*collab.Connection, error) {
	return fetch(ctx, t.core, "transit", func(ctx context.Context) (*collab.Connection, error) {
		return t.deps.Transit.Connection(ctx, q)
	})
}

// daysBetween counts calendar days, so a DST switch in between does not skew it.
func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
