package notifier

import (
	"context"
	"time"

	"gunter/internal/collab"
)

// Config controls the async delivery pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	SendTimeout     time.Duration
	HistorySize     int
}

// Sender delivers one notification on one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, n collab.Notification) error
}

// Event is the eventbus payload for delivery outcomes.
type Event struct {
	ID       string        `json:"id"`
	UseCase  string        `json:"usecase,omitempty"`
	Channel  string        `json:"channel"`
	Attempts int           `json:"attempts"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}
