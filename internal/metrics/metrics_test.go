package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"gunter/internal/eventbus"
	"gunter/internal/notifier"
	"gunter/internal/task/engine"
	"gunter/internal/task/scheduler"
	"gunter/internal/usecase"
	logx "gunter/pkg/logx"
)

func TestObserve(t *testing.T) {
	t.Parallel()
	m := New(logx.Nop(), nil)

	m.Observe(eventbus.Event{Type: eventbus.TaskFinished, Data: engine.TaskEvent{Name: "lunch-break", Duration: time.Second}})
	m.Observe(eventbus.Event{Type: eventbus.TaskFailed, Data: engine.TaskEvent{Name: "lunch-break"}})
	m.Observe(eventbus.Event{Type: eventbus.JobFired, Data: scheduler.JobEvent{Kind: "once"}})
	m.Observe(eventbus.Event{Type: eventbus.JobFired, Data: scheduler.JobEvent{Kind: "once"}})
	m.Observe(eventbus.Event{Type: eventbus.NotificationFailed, Data: notifier.Event{UseCase: "morning-routine", Channel: "telegram"}})
	m.Observe(eventbus.Event{Type: eventbus.UseCaseDecided, Data: usecase.Outcome{UseCase: "lunch-break", Outcome: "no_slot"}})
	m.Observe(eventbus.Event{Type: "other", Data: 42})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"finished", testutil.ToFloat64(m.tasks.WithLabelValues(eventbus.TaskFinished)), 1},
		{"failed", testutil.ToFloat64(m.tasks.WithLabelValues(eventbus.TaskFailed)), 1},
		{"fired", testutil.ToFloat64(m.jobs.WithLabelValues(eventbus.JobFired, "once")), 2},
		{"delivery", testutil.ToFloat64(m.deliveries.WithLabelValues("morning-routine", "telegram", "failed")), 1},
		{"outcome", testutil.ToFloat64(m.outcomes.WithLabelValues("lunch-break", "no_slot")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.Observe(eventbus.Event{Type: eventbus.JobFired, Data: scheduler.JobEvent{}})
	if m.Registry() != nil {
		t.Fatal("nil metrics returned a registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRunConsumesBusAndServes(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	m := New(logx.Nop(), func() uint64 { return eventbus.Lost(bus) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, bus) }()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.outcomes.WithLabelValues("personal-trainer", "scheduled")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bus event not observed")
		}
		bus.Publish(eventbus.Event{Type: eventbus.UseCaseDecided, Data: usecase.Outcome{UseCase: "personal-trainer", Outcome: "scheduled"}})
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Run = %v", err)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"gunter_usecase_runs_total", "gunter_eventbus_lost_events_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("exposition lacks %s", want)
		}
	}
}
