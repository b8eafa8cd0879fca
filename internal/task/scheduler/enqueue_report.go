package scheduler

import (
	"errors"
	"time"

	"gunter/internal/task/engine"
	logx "gunter/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// reportEnqueueError logs a failed hand-off to the engine, at most once per
// job name per throttle window.
func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("job trigger skipped; previous run in flight", logx.String("job", name))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("job failed to enqueue", logx.String("job", name), logx.Any("err", err))
}
