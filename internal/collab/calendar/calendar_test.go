package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gunter/internal/collab"
	logx "gunter/pkg/logx"
)

const feedICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"SUMMARY:Stand\r\n" +
	"  up\r\n" +
	"LOCATION:Office\\, Room 2\r\n" +
	"DTSTART:20240108T090000Z\r\n" +
	"DURATION:PT15M\r\n" +
	"RRULE:FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR\r\n" +
	"EXDATE:20240110T090000Z\r\n" +
	"BEGIN:VALARM\r\n" +
	"TRIGGER:-PT5M\r\n" +
	"DTSTART:19700101T000000Z\r\n" +
	"END:VALARM\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"RECURRENCE-ID:20240111T090000Z\r\n" +
	"SUMMARY:Stand up (moved)\r\n" +
	"DTSTART:20240111T093000Z\r\n" +
	"DTEND:20240111T094500Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:review\r\n" +
	"SUMMARY:Review\r\n" +
	"DTSTART;TZID=Europe/Berlin:20240109T140000\r\n" +
	"DTEND;TZID=Europe/Berlin:20240109T150000\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:cancelled\r\n" +
	"SUMMARY:Gone\r\n" +
	"STATUS:CANCELLED\r\n" +
	"DTSTART:20240109T100000Z\r\n" +
	"DTEND:20240109T110000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:focus\r\n" +
	"SUMMARY:Focus\r\n" +
	"TRANSP:TRANSPARENT\r\n" +
	"DTSTART:20240109T120000Z\r\n" +
	"DTEND:20240109T130000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:birthday\r\n" +
	"SUMMARY:Birthday\r\n" +
	"DTSTART;VALUE=DATE:20240109\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func serve(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path == "/missing.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fixedURL(u string) URLSource {
	return func(context.Context) (string, error) { return u, nil }
}

func TestEventsStartingBetweenExpandsRecurrence(t *testing.T) {
	t.Parallel()
	srv := serve(t, feedICS, nil)
	c := New(Config{Location: time.UTC}, fixedURL(srv.URL+"/cal.ics"), srv.Client(), logx.Nop())

	from := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	events, err := c.EventsStartingBetween(context.Background(), from, from.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("EventsStartingBetween: %v", err)
	}

	var got []string
	for _, e := range events {
		got = append(got, e.Start.UTC().Format("02T15:04")+" "+e.Summary)
	}
	want := []string{
		"08T09:00 Stand up",
		"09T00:00 Birthday",
		"09T09:00 Stand up",
		"09T12:00 Focus",
		"09T13:00 Review",
		"11T09:30 Stand up (moved)",
		"12T09:00 Stand up",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("events:\n got %v\nwant %v", got, want)
	}
	if events[0].Location != "Office, Room 2" || events[0].End.Sub(events[0].Start) != 15*time.Minute {
		t.Fatalf("first event = %+v", events[0])
	}
}

func TestBusyBetweenSkipsTransparentAndAllDay(t *testing.T) {
	t.Parallel()
	srv := serve(t, feedICS, nil)
	c := New(Config{Location: time.UTC}, fixedURL(srv.URL+"/cal.ics"), srv.Client(), logx.Nop())

	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	busy, err := c.BusyBetween(context.Background(), day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("BusyBetween: %v", err)
	}
	if len(busy) != 2 {
		t.Fatalf("busy = %v", busy)
	}
	if !busy[0].Start.Equal(time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("busy[0] = %v", busy[0])
	}
	if !busy[1].Start.Equal(time.Date(2024, 1, 9, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("busy[1] = %v (Berlin 14:00 is 13:00Z)", busy[1])
	}
}

func TestErrorsAreClassified(t *testing.T) {
	t.Parallel()
	srv := serve(t, feedICS, nil)

	c := New(Config{}, fixedURL(""), srv.Client(), logx.Nop())
	_, err := c.EventsStartingBetween(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if !collab.IsConfiguration(err) {
		t.Fatalf("missing url err = %v", err)
	}

	c = New(Config{}, fixedURL(srv.URL+"/missing.ics"), srv.Client(), logx.Nop())
	_, err = c.BusyBetween(context.Background(), time.Now(), time.Now().Add(time.Hour))
	var fe *collab.FetchError
	if !errors.As(err, &fe) || fe.Source != "calendar" {
		t.Fatalf("404 err = %v", err)
	}
}

func TestCacheTTL(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := serve(t, feedICS, &hits)
	c := New(Config{CacheTTL: time.Minute}, fixedURL(srv.URL+"/cal.ics"), srv.Client(), logx.Nop())
	now := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.EventsStartingBetween(context.Background(), now, now.Add(time.Hour)); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
	now = now.Add(2 * time.Minute)
	_, _ = c.EventsStartingBetween(context.Background(), now, now.Add(time.Hour))
	if hits.Load() != 2 {
		t.Fatalf("hits after expiry = %d, want 2", hits.Load())
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Duration
		bad  bool
	}{
		{"PT15M", 15 * time.Minute, false},
		{"P1D", 24 * time.Hour, false},
		{"P1W", 7 * 24 * time.Hour, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"-PT5M", -5 * time.Minute, false},
		{"P", 0, true},
		{"1H", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if tt.bad {
			if err == nil {
				t.Fatalf("parseDuration(%q) should fail", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("parseDuration(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
