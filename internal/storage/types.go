// Package storage persists the notification delivery log and the notifier's
// dedup state so repeated runs across a restart do not notify twice.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config selects a driver. An empty Driver or "none" disables storage.
//
//   - "file": JSON Lines delivery log plus a dedup snapshot and journal
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// Delivery is one notification dispatch outcome.
type Delivery struct {
	At       time.Time `json:"at"`
	ID       string    `json:"id"`
	UseCase  string    `json:"usecase,omitempty"`
	Channel  string    `json:"channel"`
	Title    string    `json:"title"`
	OK       bool      `json:"ok"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}

type Store interface {
	AppendDelivery(ctx context.Context, d Delivery) error
	// RecentDeliveries returns up to limit entries, newest first.
	RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}
