package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"gunter/internal/eventbus"
	"gunter/internal/task/engine"
	logx "gunter/pkg/logx"
)

// ScheduleRecurring registers fn to run at every instant matching spec.
// The job stays registered until cancelled, whatever its runs return.
func (s *Service) ScheduleRecurring(name string, spec CronSpec, fn JobFunc) (Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Job{}, errors.New("scheduler: name required")
	}
	if fn == nil {
		return Job{}, errors.New("scheduler: job func required")
	}
	if err := spec.Validate(); err != nil {
		return Job{}, err
	}
	sched, err := s.parser.Parse(spec.Expression())
	if err != nil {
		return Job{}, fmt.Errorf("scheduler: parse %q: %w", spec.Expression(), err)
	}
	spec.Weekdays = append([]time.Weekday(nil), spec.Weekdays...)
	e := &entry{
		job:   Job{ID: uuid.NewString(), Name: name, Kind: KindRecurring, Spec: &spec},
		fn:    fn,
		sched: sched,
		state: &engine.RunState{},
	}

	s.mu.Lock()
	s.jobs[e.job.ID] = e
	if s.running() {
		s.armLocked(e)
	}
	next := sched.Next(time.Now().In(s.location()))
	preview := s.previewNextRunsLocked(sched, 3)
	s.mu.Unlock()

	s.publish(eventbus.JobScheduled, e, next)
	s.log.Info("recurring job registered",
		logx.String("name", name),
		logx.String("id", e.job.ID),
		logx.String("spec", spec.Expression()),
		logx.Time("first_run", next),
	)
	if preview != "" {
		s.log.Debug("recurring job preview", logx.String("name", name), logx.String("next", preview))
	}
	return e.job, nil
}

// ScheduleOnce registers fn to run once at at. A trigger already in the past
// fires immediately. The job leaves the registry as it fires.
func (s *Service) ScheduleOnce(name string, at time.Time, fn JobFunc) (Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Job{}, errors.New("scheduler: name required")
	}
	if fn == nil {
		return Job{}, errors.New("scheduler: job func required")
	}
	if at.IsZero() {
		return Job{}, ErrNoTrigger
	}
	e := &entry{
		job: Job{ID: uuid.NewString(), Name: name, Kind: KindOnce, TriggerTime: at},
		fn:  fn,
	}

	s.mu.Lock()
	s.jobs[e.job.ID] = e
	if s.running() {
		s.armLocked(e)
	}
	s.mu.Unlock()

	s.publish(eventbus.JobScheduled, e, at)
	s.log.Debug("one-shot job scheduled", logx.String("name", name), logx.String("id", e.job.ID), logx.Time("at", at))
	return e.job, nil
}

// Cancel removes a pending job. It reports false for a job that already
// fired, was already cancelled, or was never registered.
func (s *Service) Cancel(job Job) bool {
	if job.IsZero() {
		return false
	}
	s.mu.Lock()
	e, ok := s.jobs[job.ID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.jobs, job.ID)
	e.removed.Store(true)
	if e.entryID != 0 && s.c != nil {
		s.c.Remove(e.entryID)
	}
	e.disarm()
	s.mu.Unlock()

	s.publish(eventbus.JobCancelled, e, time.Now())
	s.log.Debug("job cancelled", logx.String("name", e.job.Name), logx.String("id", e.job.ID))
	return true
}

// Trigger fires a pending job now. A one-shot job is consumed; a recurring
// job keeps its schedule.
func (s *Service) Trigger(id string) error {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownJob
	}
	if e.job.Kind == KindOnce {
		delete(s.jobs, id)
		e.removed.Store(true)
		e.disarm()
	}
	s.mu.Unlock()

	s.fire(e)
	return nil
}

// Pending lists registered jobs ordered by their next fire time.
func (s *Service) Pending() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().In(s.location())
	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		info := JobInfo{ID: e.job.ID, Name: e.job.Name, Kind: e.job.Kind.String()}
		switch e.job.Kind {
		case KindOnce:
			info.Next = e.job.TriggerTime
		case KindRecurring:
			info.Spec = e.job.Spec.Expression()
			if s.c != nil && e.entryID != 0 {
				ce := s.c.Entry(e.entryID)
				info.Next, info.Prev = ce.Next, ce.Prev
			}
			if info.Next.IsZero() {
				info.Next = e.sched.Next(now)
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// armLocked hooks e into the running cron instance or a timer. Call with s.mu held.
func (s *Service) armLocked(e *entry) {
	switch e.job.Kind {
	case KindRecurring:
		e.entryID = s.c.Schedule(e.sched, cron.FuncJob(func() {
			if e.removed.Load() {
				return
			}
			s.fire(e)
		}))
	case KindOnce:
		e.gen++
		gen, id := e.gen, e.job.ID
		delay := max(time.Until(e.job.TriggerTime), 0)
		e.timer = time.AfterFunc(delay, func() { s.fireOnce(id, gen) })
	}
}

// disarm detaches e from cron and its timer. Bumping gen voids a timer
// callback that already fired and is waiting on s.mu.
func (e *entry) disarm() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.entryID = 0
}

// fireOnce consumes a one-shot job unless it was cancelled or re-armed since
// the timer was set.
func (s *Service) fireOnce(id string, gen uint64) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, id)
	e.removed.Store(true)
	e.timer = nil
	s.mu.Unlock()

	s.fire(e)
}

// fire hands the job's callback to the engine. It never takes s.mu.
func (s *Service) fire(e *entry) {
	s.publish(eventbus.JobFired, e, time.Now())
	var opt engine.TaskOptions
	if e.job.Kind == KindRecurring {
		opt.Overlap = engine.OverlapSkipIfRunning
	}
	task := engine.Task{
		Name:    e.job.Name,
		Timeout: time.Duration(s.jobTimeout.Load()),
		Run:     e.fn,
		Opt:     opt,
		State:   e.state,
	}
	if s.engine == nil {
		go s.runDirect(task)
		return
	}
	err := s.engine.Enqueue(task)
	if errors.Is(err, engine.ErrDisabled) {
		go s.runDirect(task)
		return
	}
	s.reportEnqueueError(e.job.Name, err)
}

// runDirect runs a task without the engine, keeping its timeout and panic guard.
func (s *Service) runDirect(t engine.Task) {
	ctx := context.Background()
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", logx.String("job", t.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	if err := t.Run(ctx); err != nil {
		s.log.Warn("job failed", logx.String("job", t.Name), logx.Err(err))
	}
}

// previewNextRunsLocked lists the next n fire times for debug logs.
func (s *Service) previewNextRunsLocked(sched cron.Schedule, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	t := time.Now().In(s.location())
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}
