// Package collab defines the external collaborators the assistant consumes
// (calendar, weather, transit, places, preferences, notifications) together
// with the value types they exchange.
//
// Implementations live in sub-packages; orchestrators only see these interfaces.
package collab

import (
	"context"
	"time"

	"gunter/internal/timewindow"
)

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l Location) IsZero() bool { return l.Latitude == 0 && l.Longitude == 0 }

// Event is one calendar entry.
type Event struct {
	UID      string    `json:"uid,omitempty"`
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// DayForecast is one day of a forecast; index 0 of a forecast is today.
type DayForecast struct {
	Date             time.Time `json:"date"`
	HasPrecipitation bool      `json:"has_precipitation"`
	ShortPhrase      string    `json:"short_phrase"`
	LongPhrase       string    `json:"long_phrase"`
}

type ForecastQuery struct {
	Location
	Days int `json:"days"`
}

// ConnectionQuery describes a transit lookup. Exactly one of the origin fields and
// one of the destination fields is expected; Arrival takes precedence over Departure.
type ConnectionQuery struct {
	Origin             *Location `json:"origin,omitempty"`
	OriginAddress      string    `json:"origin_address,omitempty"`
	OriginID           string    `json:"origin_id,omitempty"`
	Destination        *Location `json:"destination,omitempty"`
	DestinationAddress string    `json:"destination_address,omitempty"`
	DestinationID      string    `json:"destination_id,omitempty"`
	Arrival            time.Time `json:"arrival,omitempty"`
	Departure          time.Time `json:"departure,omitempty"`
}

type Leg struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Line      string    `json:"line,omitempty"`
	Departure time.Time `json:"departure,omitempty"`
	Arrival   time.Time `json:"arrival,omitempty"`
}

type Connection struct {
	Departure time.Time `json:"departure"`
	Arrival   time.Time `json:"arrival"`
	Price     float64   `json:"price,omitempty"`
	Legs      []Leg     `json:"legs"`
}

// POI categories used by the use cases.
const (
	CategoryRestaurant     = "RESTAURANT"
	CategorySportsCenter   = "SPORTS_CENTER"
	CategoryParkRecreation = "PARK_RECREATION_AREA"
)

type POIQuery struct {
	Location
	Category string  `json:"category"`
	RadiusKm float64 `json:"radius_km"`
	Limit    int     `json:"limit"`
}

type POI struct {
	Name     string   `json:"name"`
	Address  string   `json:"address,omitempty"`
	Location Location `json:"location"`
}

type POIResult struct {
	POI      POI     `json:"poi"`
	Distance float64 `json:"distance"`
}

// Station is a travel destination candidate.
type Station struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
}

// Notification mirrors a web push payload: title plus body, icon, badge and data.
type Notification struct {
	ID    string            `json:"id,omitempty"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Badge string            `json:"badge,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Calendar reads the user's events.
type Calendar interface {
	// EventsStartingBetween returns events with start in [start, end), ordered by start.
	EventsStartingBetween(ctx context.Context, start, end time.Time) ([]Event, error)
	// BusyBetween returns raw busy spans overlapping [start, end); free slots are
	// derived with the timewindow package.
	BusyBetween(ctx context.Context, start, end time.Time) ([]timewindow.Window, error)
}

type Weather interface {
	Forecast(ctx context.Context, q ForecastQuery) ([]DayForecast, error)
}

// Transit returns (nil, nil) when no route exists.
type Transit interface {
	Connection(ctx context.Context, q ConnectionQuery) (*Connection, error)
}

type Places interface {
	POIsAround(ctx context.Context, q POIQuery) ([]POIResult, error)
}

type Stations interface {
	Stations(ctx context.Context) ([]Station, error)
}

// PreferenceSource yields a fresh, validated snapshot on every call.
type PreferenceSource interface {
	Checked(ctx context.Context) (Preferences, error)
}

// Dispatcher delivers a notification asynchronously. The returned channel yields
// exactly one value (nil on success) and is then closed.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) <-chan error
}
