// Package metrics turns bus events into Prometheus series.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gunter/internal/eventbus"
	"gunter/internal/notifier"
	"gunter/internal/task/engine"
	"gunter/internal/task/scheduler"
	"gunter/internal/usecase"
	logx "gunter/pkg/logx"
)

const namespace = "gunter"

type Metrics struct {
	reg *prometheus.Registry
	log logx.Logger

	tasks        *prometheus.CounterVec
	taskDuration prometheus.Histogram
	queueDelay   prometheus.Histogram
	jobs         *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	sendDuration prometheus.Histogram
	outcomes     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry. lost reports events the
// bus dropped for slow subscribers; it may be nil.
func New(log logx.Logger, lost func() uint64) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: log.With(logx.String("comp", "metrics")),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tasks_total",
			Help:      "Task lifecycle events by type.",
		}, []string{"event"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "task_duration_seconds",
			Help:      "Run time of finished and failed tasks.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		queueDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "queue_delay_seconds",
			Help:      "Time tasks waited for a worker.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Job registry events by type and job kind.",
		}, []string{"event", "kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "deliveries_total",
			Help:      "Final notification delivery outcomes.",
		}, []string{"usecase", "channel", "outcome"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "delivery_duration_seconds",
			Help:      "Time from first send attempt to final outcome, retries included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usecase",
			Name:      "runs_total",
			Help:      "Use case run outcomes (scheduled, failed or a no-action reason).",
		}, []string{"usecase", "outcome"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasks, m.taskDuration, m.queueDelay, m.jobs, m.deliveries, m.sendDuration, m.outcomes,
	)
	if lost != nil {
		m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "lost_events_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}, func() float64 { return float64(lost()) }))
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Run consumes bus events until ctx is done. It fits supervisor.GoRestart.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	if m == nil || bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}

// Observe records one event. Unknown payloads are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	if m == nil {
		return
	}
	switch d := e.Data.(type) {
	case engine.TaskEvent:
		m.tasks.WithLabelValues(e.Type).Inc()
		if e.Type == eventbus.TaskFinished || e.Type == eventbus.TaskFailed {
			m.taskDuration.Observe(d.Duration.Seconds())
		}
		if e.Type == eventbus.TaskStarted {
			m.queueDelay.Observe(d.QueueDelay.Seconds())
		}
	case scheduler.JobEvent:
		m.jobs.WithLabelValues(e.Type, d.Kind).Inc()
	case notifier.Event:
		outcome := "sent"
		if e.Type == eventbus.NotificationFailed {
			outcome = "failed"
		}
		m.deliveries.WithLabelValues(d.UseCase, d.Channel, outcome).Inc()
		m.sendDuration.Observe(d.Took.Seconds())
	case usecase.Outcome:
		m.outcomes.WithLabelValues(d.UseCase, d.Outcome).Inc()
	default:
		m.log.Trace("unobserved event", logx.String("type", e.Type))
	}
}
