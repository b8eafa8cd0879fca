package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"gunter/internal/eventbus"
	"gunter/internal/task/engine"
	logx "gunter/pkg/logx"
)

// New builds a scheduler that hands fired jobs to eng. A nil eng runs
// callbacks on their own goroutine.
func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	s := &Service{
		cfg:         cfg,
		log:         log.With(logx.String("comp", "scheduler")),
		bus:         bus,
		engine:      eng,
		parser:      newParser(),
		jobs:        map[string]*entry{},
		lastEnqWarn: map[string]time.Time{},
	}
	s.jobTimeout.Store(int64(cfg.JobTimeout))
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	s.jobTimeout.Store(int64(cfg.JobTimeout))
	if s.c != nil && oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
	}
}

// Start begins firing registered jobs. Jobs added before Start are armed now.
func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop halts triggering. Registered jobs are kept and re-armed by the next Start.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, e := range s.jobs {
		e.disarm()
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
		s.log.Info("scheduler stopped")
	}
}

func (s *Service) running() bool { return s.c != nil }

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, e := range s.jobs {
		s.armLocked(e)
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	for _, e := range s.jobs {
		e.disarm()
	}
	s.startLocked()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}

func (s *Service) location() *time.Location {
	if s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

func (s *Service) publish(typ string, e *entry, at time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: JobEvent{ID: e.job.ID, Name: e.job.Name, Kind: e.job.Kind.String(), At: at}})
}
