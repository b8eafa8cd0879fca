// Package eventbus is an in-process fanout of lifecycle signals (task runs,
// job firings, notification deliveries) consumed by metrics and ops views.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the runtime.
const (
	TaskStarted  = "task.started"
	TaskFinished = "task.finished"
	TaskFailed   = "task.failed"
	TaskDropped  = "task.dropped"
	TaskSkipped  = "task.skipped"

	JobScheduled = "job.scheduled"
	JobCancelled = "job.cancelled"
	JobFired     = "job.fired"

	NotificationSent   = "notification.sent"
	NotificationFailed = "notification.failed"

	UseCaseDecided = "usecase.decided"
)

// Event is a small, JSON-friendly signal. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
	lost atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Holding the read lock across sends keeps unsubscribe from closing a
	// channel mid-send; sends are non-blocking so this never stalls writers long.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.lost.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Lost reports events dropped on full subscriber buffers, if b is the
// in-memory bus.
func Lost(b Bus) uint64 {
	if m, ok := b.(*memBus); ok {
		return m.lost.Load()
	}
	return 0
}
