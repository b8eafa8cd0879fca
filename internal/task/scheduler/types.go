package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"gunter/internal/eventbus"
	"gunter/internal/task/engine"
	logx "gunter/pkg/logx"
)

type Config struct {
	Enabled bool
	// Timezone is the IANA zone for specs that do not name one.
	Timezone string
	// JobTimeout bounds a single callback run. 0 uses the engine default.
	JobTimeout time.Duration
}

var (
	ErrUnknownJob = errors.New("scheduler: unknown job")
	ErrNoTrigger  = errors.New("scheduler: trigger time required")
)

// JobFunc is the callback a job runs when it fires.
type JobFunc func(ctx context.Context) error

type Kind int

const (
	KindOnce Kind = iota
	KindRecurring
)

func (k Kind) String() string {
	if k == KindRecurring {
		return "recurring"
	}
	return "once"
}

// CronSpec fires at Hour:Minute on the listed weekdays (every day when empty)
// in Timezone.
type CronSpec struct {
	Minute   int
	Hour     int
	Weekdays []time.Weekday
	Timezone string
}

// Weekdays is Monday through Friday.
var Weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func (c CronSpec) Validate() error {
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("cron spec: minute %d out of range", c.Minute)
	}
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("cron spec: hour %d out of range", c.Hour)
	}
	for _, d := range c.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("cron spec: weekday %d out of range", d)
		}
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("cron spec: %w", err)
		}
	}
	return nil
}

// Expression renders s as a five-field cron line, prefixed with
// CRON_TZ when a timezone is set.
func (c CronSpec) Expression() string {
	dow := "*"
	if len(c.Weekdays) > 0 {
		days := append([]time.Weekday(nil), c.Weekdays...)
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		parts := make([]string, 0, len(days))
		for i, d := range days {
			if i > 0 && d == days[i-1] {
				continue
			}
			parts = append(parts, strconv.Itoa(int(d)))
		}
		dow = strings.Join(parts, ",")
	}
	expr := fmt.Sprintf("%d %d * * %s", c.Minute, c.Hour, dow)
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		expr = "CRON_TZ=" + tz + " " + expr
	}
	return expr
}

// Next returns the first fire time strictly after t.
func (c CronSpec) Next(t time.Time) (time.Time, error) {
	sched, err := newParser().Parse(c.Expression())
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}

func (c CronSpec) String() string { return c.Expression() }

// Job is the opaque handle returned to callers.
type Job struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	TriggerTime time.Time `json:"trigger_time,omitempty"`
	Spec        *CronSpec `json:"spec,omitempty"`
}

func (j Job) IsZero() bool { return j.ID == "" }

// JobInfo is a read-only view of a pending job.
type JobInfo struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Kind string    `json:"kind"`
	Spec string    `json:"spec,omitempty"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// JobEvent is the bus payload for job lifecycle events.
type JobEvent struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
}

type Snapshot struct {
	Enabled  bool            `json:"enabled"`
	Running  bool            `json:"running"`
	Timezone string          `json:"timezone"`
	Jobs     []JobInfo       `json:"jobs"`
	Engine   engine.Snapshot `json:"engine"`
}

type entry struct {
	job   Job
	fn    JobFunc
	sched cron.Schedule
	state *engine.RunState

	entryID cron.EntryID
	timer   *time.Timer
	gen     uint64
	removed atomic.Bool
}

type Service struct {
	mu sync.Mutex

	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	jobs   map[string]*entry

	// jobTimeout is read from cron callbacks, which must not take mu.
	jobTimeout atomic.Int64

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

func newParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}
