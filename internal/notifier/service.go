package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"gunter/internal/collab"
	"gunter/internal/eventbus"
	rtsup "gunter/internal/runtime/supervisor"
	"gunter/internal/storage"
	logx "gunter/pkg/logx"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoSender  = errors.New("notifier has no sender")
)

type job struct {
	n   collab.Notification
	key string
	res chan error
}

func (j job) finish(err error) {
	j.res <- err
	close(j.res)
}

// Service is the queue + workers + rate limit + retry + dedup pipeline.
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus
	store  storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan job
	sup       *rtsup.Supervisor
	stopDone  chan struct{}

	dmu   sync.Mutex
	dedup map[string]time.Time

	persistCh chan dedupWrite

	hmu     sync.Mutex
	history []storage.Delivery
}

type dedupWrite struct {
	key   string
	until time.Time
}

var _ collab.Dispatcher = (*Service)(nil)

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
		store:  store,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps pipeline settings. Pool shape (workers, queue size) takes effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// SetSender replaces the delivery channel (for example after a token change).
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	cfg.RetryMax = max(cfg.RetryMax, 0)
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	cfg.DedupWindow = max(cfg.DedupWindow, 0)
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent. A disabled notifier does not start.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup, q, pch, st, workers := s.sup, s.queue, s.persistCh, s.store, s.cfg.Workers
	s.mu.Unlock()

	exit := func(c context.Context, what string) error {
		if s.stopping() {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return fmt.Errorf("notifier %s exited unexpectedly", what)
	}
	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			persistLoop(c, pch, st)
			return exit(c, "persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return exit(c, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.String("channel", s.senderName()))
}

func (s *Service) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopDone != nil
}

func (s *Service) senderName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender == nil {
		return ""
	}
	return s.sender.Name()
}

// Stop closes intake and drains queued notifications until ctx ends. Anything
// still queued after that resolves with ErrStopped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, pch, sup := s.queue, s.persistCh, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		_ = sup.Wait(context.Background())
		for j := range q {
			j.finish(ErrStopped)
		}
		s.mu.Lock()
		s.queue, s.persistCh, s.sup, s.stopDone = nil, nil, nil, nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Dispatch queues n for delivery. The returned channel yields exactly one
// value (nil on success or when n is a suppressed duplicate) and is closed.
func (s *Service) Dispatch(ctx context.Context, n collab.Notification) <-chan error {
	res := make(chan error, 1)
	j := job{n: n, res: res}
	if j.n.ID == "" {
		j.n.ID = uuid.NewString()
	}
	if err := ctx.Err(); err != nil {
		j.finish(err)
		return res
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		j.finish(ErrDisabled)
		return res
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		j.finish(ErrStopped)
		return res
	}
	q, cfg, st, pch := s.queue, s.cfg, s.store, s.persistCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	j.key = dedupKey(j.n)
	if cfg.DedupWindow > 0 && !s.dedupAllow(ctx, j.key, cfg, st, pch) {
		s.log.Debug("notification suppressed (duplicate)", logx.String("title", j.n.Title), logx.String("key", j.key))
		j.finish(nil)
		return res
	}

	select {
	case q <- j:
	default:
		s.log.Warn("notification dropped", logx.String("title", j.n.Title), logx.Err(ErrQueueFull))
		s.publish(eventbus.NotificationFailed, j.n, 0, 0, ErrQueueFull)
		j.finish(ErrQueueFull)
	}
	return res
}

// History returns recent delivery outcomes, oldest first.
func (s *Service) History() []storage.Delivery {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]storage.Delivery(nil), s.history...)
}

// QueueLen reports pending notifications.
func (s *Service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, sender, store := s.cfg, s.limiter, s.sender, s.store
	s.mu.Unlock()

	start := time.Now()
	attempts, err := sendWithRetry(ctx, cfg, lim, sender, j.n, s.log)
	took := time.Since(start)

	channel := ""
	if sender != nil {
		channel = sender.Name()
	}
	d := storage.Delivery{
		At:       start,
		ID:       j.n.ID,
		UseCase:  j.n.Data["usecase"],
		Channel:  channel,
		Title:    j.n.Title,
		OK:       err == nil,
		Attempts: attempts,
		TookMS:   took.Milliseconds(),
	}
	if err != nil {
		d.Error = err.Error()
		s.log.Warn("notification failed", logx.String("id", d.ID), logx.String("usecase", d.UseCase), logx.Int("attempts", attempts), logx.Err(err))
		s.publish(eventbus.NotificationFailed, j.n, attempts, took, err)
	} else {
		s.log.Info("notification sent", logx.String("id", d.ID), logx.String("usecase", d.UseCase), logx.String("channel", channel))
		s.publish(eventbus.NotificationSent, j.n, attempts, took, nil)
	}
	s.record(d, cfg.HistorySize)
	if store != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		if serr := store.AppendDelivery(sctx, d); serr != nil {
			s.log.Debug("delivery log append failed", logx.Err(serr))
		}
		cancel()
	}
	j.finish(err)
}

func sendWithRetry(ctx context.Context, cfg Config, lim *rate.Limiter, sender Sender, n collab.Notification, log logx.Logger) (int, error) {
	if sender == nil {
		return 0, ErrNoSender
	}
	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return attempt - 1, err
			}
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sender.Send(cctx, n)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		log.Debug("notification send failed", logx.Int("attempt", attempt), logx.Int("max", attempts), logx.Err(err))
		if attempt == attempts {
			return attempt, lastErr
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return attempt, lastErr
		}
	}
	return attempts, lastErr
}

func (s *Service) record(d storage.Delivery, limit int) {
	s.hmu.Lock()
	s.history = append(s.history, d)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, n collab.Notification, attempts int, took time.Duration, err error) {
	if s.bus == nil {
		return
	}
	ev := Event{ID: n.ID, UseCase: n.Data["usecase"], Channel: s.senderName(), Attempts: attempts, Took: took}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func persistLoop(ctx context.Context, ch <-chan dedupWrite, st storage.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			_ = st.PutDedup(cctx, w.key, w.until)
			cancel()
		}
	}
}

// dedupKey hashes the visible content; the id is excluded so identical
// notifications from repeated runs collapse.
func dedupKey(n collab.Notification) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(n.Data["usecase"]))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(n.Title))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(n.Body))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(ctx context.Context, key string, cfg Config, st storage.Store, pch chan dedupWrite) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	if cfg.PersistDedup && st != nil {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		until, ok, err := st.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(cfg.DedupWindow)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, t := range s.dedup {
		if !now.Before(t) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > cfg.DedupMaxEntries {
		var oldest string
		var oldestT time.Time
		for k, t := range s.dedup {
			if oldest == "" || t.Before(oldestT) {
				oldest, oldestT = k, t
			}
		}
		delete(s.dedup, oldest)
	}
	s.dmu.Unlock()

	if pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

// retryDelay is base * 2^(attempt-1), capped, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}
