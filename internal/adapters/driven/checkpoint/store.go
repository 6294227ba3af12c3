package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
	"github.com/custodia-labs/deltasync/internal/metrics"
)

// Ensure Store implements the interface.
var _ driven.CheckpointStore = (*Store)(nil)

const (
	// DefaultPrefix starts every checkpoint file name.
	DefaultPrefix = "retry_"

	// Extension ends every checkpoint file name.
	Extension = ".ckpt"

	timestampLayout = "20060102_150405"
)

// Config locates the checkpoint files.
type Config struct {
	Dir    string
	Prefix string
}

// Store implements driven.CheckpointStore in a single directory.
type Store struct {
	dir     string
	prefix  string
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	// now is swapped in tests.
	now func() time.Time

	mu sync.Mutex
}

// entry is a checkpoint file found on disk.
type entry struct {
	path    string
	batchID string
	created time.Time
	parsed  bool
	modTime time.Time
}

// New creates the checkpoint directory if needed.
func New(cfg Config, log logrus.FieldLogger, m *metrics.Metrics) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("checkpoint directory is required: %w", domain.ErrInvalidInput)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &Store{
		dir:     cfg.Dir,
		prefix:  prefix,
		log:     log.WithField("component", "checkpoint"),
		metrics: m,
		now:     time.Now,
	}, nil
}

// Dir returns the checkpoint directory.
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns the name of the checkpoint for a batch created at t.
func (s *Store) FileName(batchID string, t time.Time) string {
	return s.prefix + batchID + "_" + t.UTC().Format(timestampLayout) + Extension
}

// Save writes the batch, replacing earlier checkpoints of the same batch id.
func (s *Store) Save(ctx context.Context, batch domain.Batch) (domain.CheckpointInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.CheckpointInfo{}, err
	}
	if batch.ID == "" || strings.ContainsAny(batch.ID, `/\`) {
		return domain.CheckpointInfo{}, fmt.Errorf("batch id %q: %w", batch.ID, domain.ErrInvalidInput)
	}

	created := s.now().UTC()
	data, err := Encode(batch, created)
	if err != nil {
		return domain.CheckpointInfo{}, fmt.Errorf("encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.clearLocked(batch.ID)
	if err != nil {
		return domain.CheckpointInfo{}, err
	}

	path := filepath.Join(s.dir, s.FileName(batch.ID, created))
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return domain.CheckpointInfo{}, fmt.Errorf("write checkpoint: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"path":     path,
		"replaced": removed,
	}).Info("Checkpoint saved")
	s.refreshGauge()

	return domain.CheckpointInfo{BatchID: batch.ID, CreatedAt: created, Path: path}, nil
}

// Load reads and verifies a checkpoint.
func (s *Store) Load(ctx context.Context, info domain.CheckpointInfo) (*domain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(info.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checkpoint %s: %w", info.Path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	batch, _, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", filepath.Base(info.Path), err)
	}
	return batch, nil
}

// Clear deletes every checkpoint of the batch id.
func (s *Store) Clear(ctx context.Context, batchID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.clearLocked(batchID)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.log.WithFields(logrus.Fields{"batch_id": batchID, "removed": n}).Info("Checkpoints cleared")
	}
	s.refreshGauge()
	return n, nil
}

func (s *Store) clearLocked(batchID string) (int, error) {
	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.parsed || e.batchID != batchID {
			continue
		}
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove checkpoint: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Latest returns the most recently created checkpoint, or nil when none exist.
func (s *Store) Latest(ctx context.Context) (*domain.CheckpointInfo, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return &infos[0], nil
}

// List returns every checkpoint with a parsable name, most recent first.
func (s *Store) List(ctx context.Context) ([]domain.CheckpointInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	entries, err := s.scan()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var infos []domain.CheckpointInfo
	for _, e := range entries {
		if !e.parsed {
			continue
		}
		infos = append(infos, domain.CheckpointInfo{BatchID: e.batchID, CreatedAt: e.created, Path: e.path})
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].Path > infos[j].Path
	})
	return infos, nil
}

// Sweep deletes checkpoints older than maxAge. Age comes from the
// timestamp in the name, or the file modification time when the name
// cannot be parsed.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if maxAge <= 0 {
		return 0, fmt.Errorf("max age must be positive: %w", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		created := e.created
		if !e.parsed {
			created = e.modTime
		}
		if !created.Before(cutoff) {
			continue
		}
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.WithError(err).WithField("path", e.path).Warn("Failed to remove expired checkpoint")
			continue
		}
		s.log.WithFields(logrus.Fields{
			"path": e.path,
			"age":  s.now().Sub(created).Round(time.Second).String(),
		}).Info("Expired checkpoint removed")
		removed++
	}
	s.metrics.Swept(removed)
	s.refreshGauge()
	return removed, nil
}

// scan lists files carrying the prefix and extension.
func (s *Store) scan() ([]entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}

	var entries []entry
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, Extension) {
			continue
		}
		e := entry{path: filepath.Join(s.dir, name)}
		e.batchID, e.created, e.parsed = s.parseName(name)
		if info, err := d.Info(); err == nil {
			e.modTime = info.ModTime()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// parseName splits "<prefix><batch id>_<YYYYMMDD>_<HHMMSS>.ckpt".
func (s *Store) parseName(name string) (string, time.Time, bool) {
	stem := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), Extension)
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return "", time.Time{}, false
	}
	ts := strings.Join(parts[len(parts)-2:], "_")
	created, err := time.ParseInLocation(timestampLayout, ts, time.UTC)
	if err != nil {
		return "", time.Time{}, false
	}
	batchID := strings.Join(parts[:len(parts)-2], "_")
	if batchID == "" {
		return "", time.Time{}, false
	}
	return batchID, created, true
}

func (s *Store) refreshGauge() {
	if s.metrics == nil {
		return
	}
	entries, err := s.scan()
	if err != nil {
		return
	}
	s.metrics.LiveCheckpoints(len(entries))
}
