package usecase

import (
	"context"
	"time"

	"gunter/internal/collab"
	"gunter/internal/recommend"
	"gunter/internal/task/scheduler"
	logx "gunter/pkg/logx"
)

// MorningRoutine wakes the user in time for the first event of the day,
// allowing for the journey there and their preparation time.
type MorningRoutine struct {
	*core
}

func NewMorningRoutine(d Deps) *MorningRoutine {
	return &MorningRoutine{core: newCore(recommend.MorningRoutineID, d)}
}

// Trigger is weekdays at midnight.
func (m *MorningRoutine) Trigger() scheduler.CronSpec {
	return scheduler.CronSpec{Weekdays: weekdays, Timezone: defaultTimezone}
}

// MorningDetails is the query payload.
type MorningDetails struct {
	Event      *collab.Event       `json:"event,omitempty"`
	Connection *collab.Connection  `json:"connection,omitempty"`
	WakeUp     time.Time           `json:"wake_up,omitempty"`
	Weather    *collab.DayForecast `json:"weather,omitempty"`
}

func (m *MorningRoutine) Run(ctx context.Context) {
	m.run(ctx, func(ctx context.Context, now time.Time) (recommend.Decision, error) {
		d, _, err := m.evaluate(ctx, now, false)
		return d, err
	})
}

func (m *MorningRoutine) Query(ctx context.Context) View {
	now := m.deps.Now()
	d, details, err := m.evaluate(ctx, now, true)
	return m.view(now, d, details, err)
}

func (m *MorningRoutine) evaluate(ctx context.Context, now time.Time, display bool) (recommend.Decision, *MorningDetails, error) {
	out := &MorningDetails{}
	p, err := m.prefs(ctx)
	if err != nil {
		return recommend.Decision{}, out, err
	}
	loc := p.TZ()
	y, mo, day := now.In(loc).Date()
	from := time.Date(y, mo, day, 0, 0, 0, 0, loc)

	if display && m.deps.Weather != nil {
		days, err := fetch(ctx, m.core, "weather", func(ctx context.Context) ([]collab.DayForecast, error) {
			return m.deps.Weather.Forecast(ctx, collab.ForecastQuery{Location: p.Home, Days: 1})
		})
		if err != nil {
			m.log.Debug("home forecast unavailable", logx.Err(err))
		} else if len(days) > 0 {
			out.Weather = &days[0]
		}
	}

	events, err := fetch(ctx, m.core, "calendar", func(ctx context.Context) ([]collab.Event, error) {
		return m.deps.Calendar.EventsStartingBetween(ctx, from, from.AddDate(0, 0, 2))
	})
	if err != nil {
		return recommend.Decision{}, out, err
	}
	ev, ok := recommend.FirstEvent(events, now, loc)
	if !ok {
		return recommend.None(m.id, recommend.ReasonNoEvent), out, nil
	}
	out.Event = &ev

	// A failed route lookup falls back to the event start.
	var conn *collab.Connection
	if ev.Location != "" && m.deps.Transit != nil {
		home := p.Home
		conn, err = fetch(ctx, m.core, "transit", func(ctx context.Context) (*collab.Connection, error) {
			return m.deps.Transit.Connection(ctx, collab.ConnectionQuery{
				Origin:             &home,
				DestinationAddress: ev.Location,
				Arrival:            ev.Start,
			})
		})
		if err != nil {
			m.log.Warn("no connection to first event, using its start", logx.String("event", ev.Summary), logx.Err(err))
			conn = nil
		}
	}
	out.Connection = conn

	d := recommend.MorningRoutine(recommend.MorningFacts{
		Event:              ev,
		Connection:         conn,
		PreparationMinutes: p.PreparationMinutes,
		Location:           loc,
	})
	out.WakeUp = d.TriggerTime
	return d, out, nil
}
