// Package calendar reads the user's iCalendar feed over HTTP.
//
// The feed URL is resolved on every call so preference changes apply to the
// next run. Recurring events (RRULE, EXDATE, RECURRENCE-ID overrides) are
// expanded with rrule-go.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"gunter/internal/collab"
	"gunter/internal/timewindow"
	logx "gunter/pkg/logx"

	"github.com/teambition/rrule-go"
)

// URLSource resolves the feed URL. It should return a *collab.ConfigurationError
// when no URL is configured.
type URLSource func(ctx context.Context) (string, error)

type Config struct {
	// CacheTTL reuses a fetched feed for this long. 0 fetches every call.
	CacheTTL time.Duration
	// Location interprets floating times (no TZID, no Z suffix).
	Location *time.Location
	// MaxBytes caps the response body (default 8 MiB).
	MaxBytes int64
}

type Client struct {
	cfg  Config
	url  URLSource
	http *http.Client
	log  logx.Logger
	now  func() time.Time

	mu     sync.Mutex
	cached feed
}

type feed struct {
	url    string
	at     time.Time
	events []vevent
}

func New(cfg Config, url URLSource, hc *http.Client, log logx.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 8 << 20
	}
	return &Client{
		cfg:  cfg,
		url:  url,
		http: hc,
		log:  log.With(logx.String("comp", "calendar")),
		now:  time.Now,
	}
}

var _ collab.Calendar = (*Client)(nil)

// EventsStartingBetween returns events with start in [start, end), ordered by start.
func (c *Client) EventsStartingBetween(ctx context.Context, start, end time.Time) ([]collab.Event, error) {
	raw, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	all := expand(raw, start, end, c.log)
	out := all[:0]
	for _, e := range all {
		if !e.Start.Before(start) && e.Start.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

// BusyBetween returns the spans of opaque timed events overlapping [start, end).
// All-day and transparent entries do not block time.
func (c *Client) BusyBetween(ctx context.Context, start, end time.Time) ([]timewindow.Window, error) {
	raw, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	opaque := make([]vevent, 0, len(raw))
	for _, v := range raw {
		if !v.Transparent && !v.AllDay {
			opaque = append(opaque, v)
		}
	}
	var out []timewindow.Window
	for _, e := range expand(opaque, start, end, c.log) {
		if e.End.After(start) && e.Start.Before(end) {
			out = append(out, timewindow.Window{Start: e.Start, End: e.End})
		}
	}
	return out, nil
}

func (c *Client) load(ctx context.Context) ([]vevent, error) {
	url, err := c.url(ctx)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, &collab.ConfigurationError{Field: "calendar_url"}
	}

	c.mu.Lock()
	if c.cfg.CacheTTL > 0 && c.cached.url == url && c.now().Sub(c.cached.at) < c.cfg.CacheTTL {
		events := c.cached.events
		c.mu.Unlock()
		return events, nil
	}
	c.mu.Unlock()

	events, err := c.fetch(ctx, url)
	if err != nil {
		return nil, collab.Fetch("calendar", err)
	}
	c.log.Debug("calendar fetched", logx.Int("vevents", len(events)))

	if c.cfg.CacheTTL > 0 {
		c.mu.Lock()
		c.cached = feed{url: url, at: c.now(), events: events}
		c.mu.Unlock()
	}
	return events, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]vevent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("calendar: unexpected status %s", resp.Status)
	}
	return parseICS(io.LimitReader(resp.Body, c.cfg.MaxBytes), c.cfg.Location)
}

// expand materialises occurrences that may overlap [from, to).
func expand(raw []vevent, from, to time.Time, log logx.Logger) []collab.Event {
	overridden := map[string]map[int64]bool{}
	for _, v := range raw {
		if v.RecurrenceID.IsZero() {
			continue
		}
		if overridden[v.UID] == nil {
			overridden[v.UID] = map[int64]bool{}
		}
		overridden[v.UID][v.RecurrenceID.Unix()] = true
	}

	var out []collab.Event
	emit := func(v vevent, start time.Time) {
		out = append(out, collab.Event{
			UID:      v.UID,
			Summary:  v.Summary,
			Location: v.Location,
			Start:    start,
			End:      start.Add(v.duration()),
		})
	}

	for _, v := range raw {
		if v.Cancelled {
			continue
		}
		if v.RRule == "" || !v.RecurrenceID.IsZero() {
			emit(v, v.Start)
			continue
		}
		rr, err := rrule.StrToRRule(v.RRule)
		if err != nil {
			log.Warn("calendar rrule ignored", logx.String("uid", v.UID), logx.Err(err))
			emit(v, v.Start)
			continue
		}
		rr.DTStart(v.Start)
		excluded := make(map[int64]bool, len(v.ExDates))
		for _, x := range v.ExDates {
			excluded[x.Unix()] = true
		}
		for _, occ := range rr.Between(from.Add(-v.duration()), to, true) {
			if excluded[occ.Unix()] || overridden[v.UID][occ.Unix()] {
				continue
			}
			emit(v, occ)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
