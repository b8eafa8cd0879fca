// Package usecase composes collaborators, the recommendation evaluators and the
// job scheduler into the assistant's proactive scenarios.
//
// Each notifying use case is driven by a daily trigger that calls Run. Run
// fetches a fresh preference snapshot and facts, asks the evaluator for a
// Decision and, when one is due, registers a one-shot job that dispatches the
// notification. Query repeats the same evaluation for display without side
// effects.
package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gunter/internal/collab"
	"gunter/internal/eventbus"
	"gunter/internal/recommend"
	"gunter/internal/task/scheduler"
	logx "gunter/pkg/logx"
)

const DefaultCallTimeout = 20 * time.Second

// Scheduler is the slice of scheduler.Service the orchestrators need.
type Scheduler interface {
	ScheduleOnce(name string, at time.Time, fn scheduler.JobFunc) (scheduler.Job, error)
	Cancel(job scheduler.Job) bool
}

// Deps are shared by every use case. Collaborators a use case does not consume
// may be nil.
type Deps struct {
	Prefs     collab.PreferenceSource
	Calendar  collab.Calendar
	Weather   collab.Weather
	Transit   collab.Transit
	Places    collab.Places
	Stations  collab.Stations
	Notifier  collab.Dispatcher
	Scheduler Scheduler
	Picker    recommend.Picker

	Log logx.Logger
	Bus eventbus.Bus

	// CallTimeout bounds each collaborator call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
	Now         func() time.Time
}

// Notifying is a use case driven by a recurring trigger.
type Notifying interface {
	Name() string
	Trigger() scheduler.CronSpec
	Run(ctx context.Context)
	Query(ctx context.Context) View
}

// View is the display payload of an on-demand query.
type View struct {
	UseCase string    `json:"usecase"`
	At      time.Time `json:"at"`
	// Failed is set when a collaborator or the preferences could not be read;
	// Message then says what could not be found.
	Failed   bool                `json:"failed,omitempty"`
	Message  string              `json:"message"`
	Decision *recommend.Decision `json:"decision,omitempty"`
	Details  any                 `json:"details,omitempty"`
}

// Outcome is published on the bus after every run.
type Outcome struct {
	UseCase     string    `json:"usecase"`
	Outcome     string    `json:"outcome"`
	TriggerTime time.Time `json:"trigger_time,omitempty"`
}

const (
	OutcomeScheduled = "scheduled"
	OutcomeFailed    = "failed"
)

type core struct {
	id   string
	deps Deps
	log  logx.Logger

	mu      sync.Mutex
	pending scheduler.Job
}

func newCore(id string, d Deps) *core {
	if d.CallTimeout <= 0 {
		d.CallTimeout = DefaultCallTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &core{
		id:   id,
		deps: d,
		log:  d.Log.With(logx.String("comp", "usecase"), logx.String("usecase", id)),
	}
}

func (c *core) Name() string { return c.id }

// PendingNotification returns the one-shot job scheduled by the last run, if it
// has not fired or been superseded yet.
func (c *core) PendingNotification() (scheduler.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, !c.pending.IsZero()
}

// fetch runs one collaborator call under the per-call timeout. The call runs in
// its own goroutine so a collaborator that ignores ctx cannot stall the run.
func fetch[T any](ctx context.Context, c *core, source string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, c.deps.CallTimeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- result{zero, fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(cctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.v, collab.Fetch(source, r.err)
		}
		return r.v, nil
	case <-cctx.Done():
		var zero T
		return zero, collab.Fetch(source, cctx.Err())
	}
}

func (c *core) prefs(ctx context.Context) (collab.Preferences, error) {
	if c.deps.Prefs == nil {
		return collab.Preferences{}, &collab.ConfigurationError{Field: "preferences", Reason: "no preference source"}
	}
	return fetch(ctx, c, "preferences", c.deps.Prefs.Checked)
}

type evaluation func(ctx context.Context, now time.Time) (recommend.Decision, error)

// run is the body of every Run: errors and panics are logged once and never
// reach the scheduler.
func (c *core) run(ctx context.Context, eval evaluation) {
	now := c.deps.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("run panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			c.publish(Outcome{UseCase: c.id, Outcome: OutcomeFailed})
		}
	}()

	c.log.Debug("run", logx.Time("now", now))
	d, err := eval(ctx, now)
	if err != nil {
		c.log.Error("run failed", logx.Err(err), logx.Bool("configuration", collab.IsConfiguration(err)))
		c.publish(Outcome{UseCase: c.id, Outcome: OutcomeFailed})
		return
	}

	d = d.Due(now)
	if !d.Scheduled() {
		c.log.Debug("no action", logx.String("reason", string(d.Reason)))
		c.publish(Outcome{UseCase: c.id, Outcome: string(d.Reason), TriggerTime: d.TriggerTime})
		return
	}

	job, err := c.schedule(d)
	if err != nil {
		c.log.Error("schedule notification failed", logx.Err(err))
		c.publish(Outcome{UseCase: c.id, Outcome: OutcomeFailed})
		return
	}
	c.log.Info("notification scheduled",
		logx.String("job_id", job.ID),
		logx.Time("at", d.TriggerTime),
		logx.String("body", d.Body),
	)
	c.publish(Outcome{UseCase: c.id, Outcome: OutcomeScheduled, TriggerTime: d.TriggerTime})
}

// schedule replaces any still-pending notification of this use case with d.
func (c *core) schedule(d recommend.Decision) (scheduler.Job, error) {
	if c.deps.Scheduler == nil {
		return scheduler.Job{}, fmt.Errorf("usecase %s: no scheduler", c.id)
	}
	n := d.Notification()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending.IsZero() {
		if c.deps.Scheduler.Cancel(c.pending) {
			c.log.Info("superseded pending notification",
				logx.String("job_id", c.pending.ID),
				logx.Time("at", c.pending.TriggerTime),
			)
		}
		c.pending = scheduler.Job{}
	}

	// Written under c.mu before the callback can observe it.
	var id string
	job, err := c.deps.Scheduler.ScheduleOnce(c.id+".notify", d.TriggerTime, func(ctx context.Context) error {
		c.mu.Lock()
		self := id
		if c.pending.ID == self {
			c.pending = scheduler.Job{}
		}
		c.mu.Unlock()
		c.notify(ctx, self, n)
		return nil
	})
	if err != nil {
		return scheduler.Job{}, err
	}
	id = job.ID
	c.pending = job
	return job, nil
}

// notify dispatches n and waits for the delivery result. Failures are logged
// only; the job itself always succeeds.
func (c *core) notify(ctx context.Context, jobID string, n collab.Notification) {
	log := c.log.With(logx.String("job_id", jobID))
	if c.deps.Notifier == nil {
		log.Warn("no notifier configured, notification dropped", logx.String("title", n.Title))
		return
	}
	select {
	case err := <-c.deps.Notifier.Dispatch(ctx, n):
		if err != nil {
			log.Warn("notification failed", logx.String("title", n.Title), logx.Err(err))
			return
		}
		log.Info("notification fired", logx.String("title", n.Title), logx.String("body", n.Body))
	case <-ctx.Done():
		log.Warn("notification result abandoned", logx.Err(ctx.Err()))
	}
}

func (c *core) publish(o Outcome) {
	if c.deps.Bus == nil {
		return
	}
	c.deps.Bus.Publish(eventbus.Event{Type: eventbus.UseCaseDecided, Data: o})
}

// view builds the query payload shared by the notifying use cases.
func (c *core) view(now time.Time, d recommend.Decision, details any, err error) View {
	v := View{UseCase: c.id, At: now, Details: details}
	if err != nil {
		v.Failed = true
		v.Message = failureMessage(err)
		c.log.Debug("query failed", logx.Err(err))
		return v
	}
	d = d.Due(now)
	v.Decision = &d
	if d.Scheduled() {
		v.Message = d.Body
	} else {
		v.Message = reasonMessage(c.id, d.Reason)
	}
	return v
}

// weekdays is Monday to Friday.
var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

const defaultTimezone = "Europe/Berlin"
