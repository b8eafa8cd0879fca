package engine

import (
	"context"
	"sync"
	"time"
)

// Config controls the worker pool that executes fired jobs and use-case runs.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// DefaultTimeout applies when Task.Timeout is 0.
	DefaultTimeout time.Duration

	// MaxQueueDelay drops tasks queued longer than this. 0 disables.
	MaxQueueDelay time.Duration

	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	return c
}

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	OverlapSkipIfRunning
)

// TaskOptions tune a single task. A failed run is final: the next trigger
// is the retry.
type TaskOptions struct {
	Overlap OverlapPolicy
}

// RunState gates OverlapSkipIfRunning: a task counts as running from enqueue
// until its run finishes.
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

type HistoryItem struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// TaskEvent is the bus payload for task lifecycle events.
type TaskEvent = HistoryItem

type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions
	State   *RunState
}

type Snapshot struct {
	Enabled        bool          `json:"enabled"`
	Workers        int           `json:"workers"`
	QueueLen       int           `json:"queue_len"`
	QueueCap       int           `json:"queue_cap"`
	InFlight       int           `json:"in_flight"`
	Dropped        uint64        `json:"dropped"`
	DefaultTimeout time.Duration `json:"default_timeout"`
	History        []HistoryItem `json:"history"`
}
