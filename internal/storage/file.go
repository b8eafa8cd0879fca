package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "gunter/pkg/logx"
)

// fileStore keeps everything next to cfg.Path:
//
//	<prefix>.deliveries.jsonl  append-only delivery log
//	<prefix>.dedup.json        dedup snapshot
//	<prefix>.dedup.jsonl       dedup journal, folded into the snapshot every compactEvery writes
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	deliveries   *os.File
	snapshotPath string
	journal      *os.File
	dedup        map[string]int64 // unix milli
	writes       int
	compactEvery int
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage: path is required for the file driver")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(path, filepath.Ext(path))

	df, err := os.OpenFile(prefix+".deliveries.jsonl", os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	dedup := map[string]int64{}
	snap := prefix + ".dedup.json"
	if err := readSnapshot(snap, dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup snapshot unreadable", logx.Err(err))
	}
	if err := replayJournal(prefix+".dedup.jsonl", dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup journal unreadable", logx.Err(err))
	}
	dropExpired(dedup, time.Now())

	jf, err := os.OpenFile(prefix+".dedup.jsonl", os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = df.Close()
		return nil, err
	}
	log.Info("file store opened", logx.String("prefix", prefix), logx.Int("dedup_keys", len(dedup)))
	return &fileStore{
		log:          log,
		deliveries:   df,
		snapshotPath: snap,
		journal:      jf,
		dedup:        dedup,
		compactEvery: 1000,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.deliveries != nil {
		errs = append(errs, s.deliveries.Close())
		s.deliveries = nil
	}
	if s.journal != nil {
		errs = append(errs, s.compactLocked(), s.journal.Close())
		s.journal = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendDelivery(_ context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.deliveries).Encode(d)
}

// RecentDeliveries scans the whole log; it is meant for operator views, not hot paths.
func (s *fileStore) RecentDeliveries(_ context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries == nil {
		return nil, ErrClosed
	}
	if _, err := s.deliveries.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	ring := make([]Delivery, 0, limit)
	sc := bufio.NewScanner(s.deliveries)
	for sc.Scan() {
		var d Delivery
		if json.Unmarshal(sc.Bytes(), &d) != nil {
			continue
		}
		if len(ring) == limit {
			copy(ring, ring[1:])
			ring = ring[:limit-1]
		}
		ring = append(ring, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out := make([]Delivery, len(ring))
	for i, d := range ring {
		out[len(ring)-1-i] = d
	}
	return out, nil
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	s.dedup[key] = ms
	if err := json.NewEncoder(s.journal).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// compactLocked writes the live map as the snapshot and empties the journal.
func (s *fileStore) compactLocked() error {
	dropExpired(s.dedup, time.Now())
	tmp := s.snapshotPath + ".tmp"
	b, err := json.Marshal(s.dedup)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func readSnapshot(path string, out map[string]int64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, &out)
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r dedupRecord
		if json.Unmarshal(sc.Bytes(), &r) != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func dropExpired(m map[string]int64, now time.Time) {
	cut := now.UnixMilli()
	for k, v := range m {
		if v < cut {
			delete(m, k)
		}
	}
}
