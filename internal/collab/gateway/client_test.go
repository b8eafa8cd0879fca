package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gunter/internal/collab"
	logx "gunter/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/api", APIKey: "k"}, srv.Client(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestForecastQuery(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/weather/forecast" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "48.78" || q.Get("lon") != "9.18" || q.Get("days") != "3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode([]collab.DayForecast{{HasPrecipitation: true, ShortPhrase: "Rain"}})
	})
	got, err := c.Forecast(context.Background(), collab.ForecastQuery{
		Location: collab.Location{Latitude: 48.78, Longitude: 9.18},
		Days:     3,
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(got) != 1 || !got[0].HasPrecipitation || got[0].ShortPhrase != "Rain" {
		t.Fatalf("forecast = %+v", got)
	}
}

func TestConnectionNoRoute(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, ""},
		{"no content", http.StatusNoContent, ""},
		{"null", http.StatusOK, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			conn, err := c.Connection(context.Background(), collab.ConnectionQuery{OriginAddress: "a", DestinationAddress: "b"})
			if err != nil || conn != nil {
				t.Fatalf("Connection = %+v, %v; want nil, nil", conn, err)
			}
		})
	}
}

func TestConnectionDecodes(t *testing.T) {
	t.Parallel()
	dep := time.Date(2024, 1, 9, 8, 20, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var q collab.ConnectionQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil || q.DestinationAddress != "Office" {
			t.Errorf("body = %+v, %v", q, err)
		}
		_ = json.NewEncoder(w).Encode(collab.Connection{Departure: dep, Arrival: dep.Add(30 * time.Minute), Legs: []collab.Leg{{From: "Home", To: "Office"}}})
	})
	conn, err := c.Connection(context.Background(), collab.ConnectionQuery{DestinationAddress: "Office"})
	if err != nil || conn == nil || !conn.Departure.Equal(dep) || len(conn.Legs) != 1 {
		t.Fatalf("Connection = %+v, %v", conn, err)
	}
}

func TestErrorsBecomeFetchErrors(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/stations" {
			_, _ = w.Write([]byte("{not json"))
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.POIsAround(context.Background(), collab.POIQuery{Category: collab.CategoryRestaurant})
	var fe *collab.FetchError
	var se *StatusError
	if !errors.As(err, &fe) || fe.Source != "places" || !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Fatalf("POIsAround err = %v", err)
	}

	_, err = c.Stations(context.Background())
	if !errors.As(err, &fe) || fe.Source != "stations" {
		t.Fatalf("Stations err = %v", err)
	}

	unset, _ := New(Config{}, nil, logx.Nop())
	if _, err := unset.Stations(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("unconfigured err = %v", err)
	}
}

func TestDeadlineIsTimeoutFetchError(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Forecast(ctx, collab.ForecastQuery{})
	var fe *collab.FetchError
	if !errors.As(err, &fe) || !fe.Timeout() {
		t.Fatalf("err = %v, want timeout FetchError", err)
	}
}
