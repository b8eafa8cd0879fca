package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"gunter/internal/eventbus"
	logx "gunter/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()
	if maxDelay > 0 && queueDelay > maxDelay {
		if qt.state != nil {
			qt.state.release()
		}
		s.onDropped(start, qt.task, "stale_queue_delay", queueDelay)
		return
	}

	log := s.log.With(logx.String("task", qt.task.Name), logx.String("id", qt.task.ID))
	s.publish(eventbus.TaskStarted, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay})

	err := s.runOnce(ctx, qt, log)
	if qt.state != nil {
		qt.state.release()
	}
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: time.Since(start)}
	if err != nil {
		item.Error = err.Error()
		log.Warn("task.failed", logx.Any("err", err), logx.Duration("dur", item.Duration))
		s.publish(eventbus.TaskFailed, item)
	} else {
		log.Debug("task.completed", logx.Duration("queue_delay", queueDelay), logx.Duration("dur", item.Duration))
		s.publish(eventbus.TaskFinished, item)
	}
	s.record(item)
}

// runOnce runs the task under its timeout. A panic becomes the run's error.
func (s *Service) runOnce(ctx context.Context, qt queuedTask, log logx.Logger) (err error) {
	runCtx := ctx
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("task.panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return qt.task.Run(runCtx)
}
