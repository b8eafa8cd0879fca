// Package gateway talks to the provider gateway that fronts weather, transit,
// places and station data. Provider-specific formats stay behind the gateway;
// this client only speaks its JSON API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gunter/internal/collab"
	logx "gunter/pkg/logx"

	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL string
	APIKey  string
	// RatePerSec throttles outgoing calls. 0 disables throttling.
	RatePerSec float64
	Burst      int
}

// Client implements the weather, transit, places and station collaborators.
type Client struct {
	base    *url.URL
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

var (
	_ collab.Weather  = (*Client)(nil)
	_ collab.Transit  = (*Client)(nil)
	_ collab.Places   = (*Client)(nil)
	_ collab.Stations = (*Client)(nil)
)

// ErrNotConfigured is returned by every call when no gateway URL is set.
var ErrNotConfigured = errors.New("gateway: base url not configured")

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway: status %d", e.Code)
	}
	return fmt.Sprintf("gateway: status %d: %s", e.Code, e.Body)
}

func New(cfg Config, hc *http.Client, log logx.Logger) (*Client, error) {
	c := &Client{
		apiKey: cfg.APIKey,
		http:   hc,
		log:    log.With(logx.String("comp", "gateway")),
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if raw := strings.TrimSpace(cfg.BaseURL); raw != "" {
		u, err := url.Parse(strings.TrimRight(raw, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("gateway: base url: %w", err)
		}
		c.base = u
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RatePerSec))
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return c, nil
}

func (c *Client) Forecast(ctx context.Context, q collab.ForecastQuery) ([]collab.DayForecast, error) {
	days := q.Days
	if days <= 0 {
		days = 1
	}
	v := coords(q.Location)
	v.Set("days", strconv.Itoa(days))

	var out []collab.DayForecast
	if err := c.do(ctx, "weather", http.MethodGet, "v1/weather/forecast", v, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Connection returns (nil, nil) when the gateway reports no route (404 or an
// empty body).
func (c *Client) Connection(ctx context.Context, q collab.ConnectionQuery) (*collab.Connection, error) {
	var out *collab.Connection
	err := c.do(ctx, "transit", http.MethodPost, "v1/transit/connection", nil, q, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) POIsAround(ctx context.Context, q collab.POIQuery) ([]collab.POIResult, error) {
	v := coords(q.Location)
	v.Set("category", q.Category)
	if q.RadiusKm > 0 {
		v.Set("radius_km", strconv.FormatFloat(q.RadiusKm, 'f', -1, 64))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var out []collab.POIResult
	if err := c.do(ctx, "places", http.MethodGet, "v1/places/around", v, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stations(ctx context.Context) ([]collab.Station, error) {
	var out []collab.Station
	if err := c.do(ctx, "stations", http.MethodGet, "v1/stations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func coords(l collab.Location) url.Values {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(l.Latitude, 'f', -1, 64))
	v.Set("lon", strconv.FormatFloat(l.Longitude, 'f', -1, 64))
	return v
}

// do performs one call. Every failure comes back as a *collab.FetchError
// tagged with source.
func (c *Client) do(ctx context.Context, source, method, path string, query url.Values, body, out any) error {
	if c.base == nil {
		return collab.Fetch(source, ErrNotConfigured)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return collab.Fetch(source, err)
		}
	}

	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return collab.Fetch(source, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return collab.Fetch(source, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return collab.Fetch(source, err)
	}
	defer resp.Body.Close()
	c.log.Trace("gateway call",
		logx.String("source", source),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return collab.Fetch(source, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))})
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return collab.Fetch(source, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return collab.Fetch(source, fmt.Errorf("decode: %w", err))
	}
	return nil
}
