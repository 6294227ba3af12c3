package partition

import (
	"bytes"
	"context"
	"encoding/json"
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

const (
	// DefaultExtension is appended to document ids to form file names.
	DefaultExtension = ".pdf"

	markerSuffix = ".marker"
)

// Ensure Store implements the interface.
var _ driven.PartitionStore = (*Store)(nil)

// Config locates the two areas.
type Config struct {
	BaseDir   string
	DeltaDir  string
	Extension string
}

// Store implements driven.PartitionStore on the local filesystem.
type Store struct {
	baseDir  string
	deltaDir string
	ext      string
	log      logrus.FieldLogger
	metrics  *metrics.Metrics

	// rename is swapped in tests to simulate cross-device moves.
	rename func(oldpath, newpath string) error

	// mu serialises mutations so pruning never races a placement.
	mu sync.Mutex
}

// marker is the sidecar stored next to every delta document.
type marker struct {
	Owner      string    `json:"owner"`
	ID         string    `json:"id"`
	SourceDate string    `json:"source_date,omitempty"`
	PlacedAt   time.Time `json:"placed_at"`
}

// New creates both areas if needed.
func New(cfg Config, log logrus.FieldLogger, m *metrics.Metrics) (*Store, error) {
	if cfg.BaseDir == "" || cfg.DeltaDir == "" {
		return nil, fmt.Errorf("base and delta directories are required: %w", domain.ErrInvalidInput)
	}
	if filepath.Clean(cfg.BaseDir) == filepath.Clean(cfg.DeltaDir) {
		return nil, fmt.Errorf("base and delta directories must differ: %w", domain.ErrInvalidInput)
	}
	ext := cfg.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	for _, dir := range []string{cfg.BaseDir, cfg.DeltaDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create partition dir: %w", err)
		}
	}
	return &Store{
		baseDir:  cfg.BaseDir,
		deltaDir: cfg.DeltaDir,
		ext:      ext,
		log:      log.WithField("component", "partition"),
		metrics:  m,
		rename:   os.Rename,
	}, nil
}

// Place writes content into the record's area and clears the other one.
func (s *Store) Place(ctx context.Context, record domain.DocumentRecord, content []byte) (domain.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return record, err
	}
	if err := checkName(record.Owner); err != nil {
		return record, err
	}
	if err := checkName(record.ID); err != nil {
		return record, err
	}
	if record.Partition == "" {
		record.Partition = domain.PartitionDelta
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.path(record.Partition, record.Owner, record.ID)
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return record, fmt.Errorf("create owner dir: %w", err)
	}
	if err := atomic.WriteFile(dst, bytes.NewReader(content)); err != nil {
		return record, fmt.Errorf("write document: %w", err)
	}

	other := domain.PartitionBase
	if record.Partition == domain.PartitionBase {
		other = domain.PartitionDelta
	}
	if err := removeIfExists(s.path(other, record.Owner, record.ID)); err != nil {
		return record, err
	}

	if record.Partition == domain.PartitionDelta {
		if err := s.writeMarker(record); err != nil {
			return record, err
		}
	} else if err := removeIfExists(s.markerPath(record.Owner, record.ID)); err != nil {
		return record, err
	}

	record.StoragePath = dst
	return record, nil
}

// Read returns the content and placement of a document.
func (s *Store) Read(ctx context.Context, owner, id string) ([]byte, domain.DocumentRecord, error) {
	record := domain.DocumentRecord{ID: id, Owner: owner}
	if err := ctx.Err(); err != nil {
		return nil, record, err
	}
	if err := checkName(owner); err != nil {
		return nil, record, err
	}
	if err := checkName(id); err != nil {
		return nil, record, err
	}

	partition, ok := s.locate(owner, id)
	if !ok {
		return nil, record, fmt.Errorf("document %s/%s: %w", owner, id, domain.ErrNotFound)
	}
	record.Partition = partition
	record.StoragePath = s.path(partition, owner, id)
	if partition == domain.PartitionDelta {
		if m, err := s.readMarker(owner, id); err == nil {
			record.SourceDate = m.SourceDate
		}
	}

	content, err := os.ReadFile(record.StoragePath)
	if err != nil {
		return nil, record, fmt.Errorf("read document: %w", err)
	}
	return content, record, nil
}

// List returns every document of an owner across both areas.
func (s *Store) List(ctx context.Context, owner string) ([]domain.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(owner); err != nil {
		return nil, err
	}

	seen := make(map[string]domain.DocumentRecord)
	for _, partition := range []domain.Partition{domain.PartitionDelta, domain.PartitionBase} {
		entries, err := os.ReadDir(filepath.Join(s.root(partition), owner))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", partition, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, s.ext) {
				continue
			}
			id := strings.TrimSuffix(name, s.ext)
			seen[id] = domain.DocumentRecord{
				ID:          id,
				Owner:       owner,
				Partition:   partition,
				StoragePath: filepath.Join(s.root(partition), owner, name),
			}
		}
	}

	records := make([]domain.DocumentRecord, 0, len(seen))
	for _, r := range seen {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// ReconcileByPresence classifies ids from where their files are found:
// a base copy wins and any stray delta copy is removed; a delta-only copy
// stays delta; a missing document is reported as delta with no storage path
// so that it is fetched again.
func (s *Store) ReconcileByPresence(ctx context.Context, owner string, ids []string) (*domain.ReconcileReport, error) {
	if err := checkName(owner); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := &domain.ReconcileReport{Owner: owner}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := checkName(id); err != nil {
			s.log.WithField("owner", owner).WithError(err).Warn("skipping document with invalid id")
			report.Skipped = append(report.Skipped, id)
			continue
		}

		record := domain.DocumentRecord{ID: id, Owner: owner}
		inBase := exists(s.path(domain.PartitionBase, owner, id))
		inDelta := exists(s.path(domain.PartitionDelta, owner, id))

		switch {
		case inBase:
			if inDelta {
				if err := s.removeDelta(owner, id); err != nil {
					return report, err
				}
			}
			record.Partition = domain.PartitionBase
			record.StoragePath = s.path(domain.PartitionBase, owner, id)
		case inDelta:
			record.Partition = domain.PartitionDelta
			record.StoragePath = s.path(domain.PartitionDelta, owner, id)
		default:
			record.Partition = domain.PartitionDelta
		}
		report.Records = append(report.Records, record)
	}

	s.prune()
	return report, nil
}

// ReconcileByDate moves documents dated strictly after reference to delta and
// the rest to base. Documents present in neither area are classified from
// their date without any move. Documents whose date cannot be parsed are
// skipped and left in place.
func (s *Store) ReconcileByDate(ctx context.Context, owner string, refs []domain.DocumentRef, reference time.Time) (*domain.ReconcileReport, error) {
	if err := checkName(owner); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.WithField("owner", owner)
	report := &domain.ReconcileReport{Owner: owner}
	toDelta, toBase := 0, 0

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := checkName(ref.ID); err != nil {
			log.WithError(err).Warn("skipping document with invalid id")
			report.Skipped = append(report.Skipped, ref.ID)
			continue
		}
		date, err := domain.ParseSourceDate(ref.SourceDate)
		if err != nil {
			log.WithField("document", ref.ID).WithError(err).Warn("skipping document without a usable date")
			report.Skipped = append(report.Skipped, ref.ID)
			continue
		}

		target := domain.PartitionBase
		if date.After(reference) {
			target = domain.PartitionDelta
		}
		record := domain.DocumentRecord{
			ID:         ref.ID,
			Owner:      owner,
			Partition:  target,
			SourceDate: ref.SourceDate,
		}

		current, found := s.locate(owner, ref.ID)
		if !found {
			report.Records = append(report.Records, record)
			continue
		}

		if current != target {
			if err := s.move(record, current); err != nil {
				return report, err
			}
			report.Moves++
			if target == domain.PartitionDelta {
				toDelta++
			} else {
				toBase++
			}
		} else if target == domain.PartitionDelta && !exists(s.markerPath(owner, ref.ID)) {
			if err := s.writeMarker(record); err != nil {
				return report, err
			}
		} else if target == domain.PartitionBase {
			if err := s.removeDelta(owner, ref.ID); err != nil {
				return report, err
			}
		}
		record.StoragePath = s.path(target, owner, ref.ID)
		report.Records = append(report.Records, record)
	}

	s.metrics.Moved(string(domain.PartitionDelta), toDelta)
	s.metrics.Moved(string(domain.PartitionBase), toBase)
	s.prune()
	return report, nil
}

// Promote moves the delta copies of ids to base.
func (s *Store) Promote(ctx context.Context, owner string, ids []string) (*domain.ReconcileReport, error) {
	if err := checkName(owner); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := &domain.ReconcileReport{Owner: owner}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := checkName(id); err != nil {
			report.Skipped = append(report.Skipped, id)
			continue
		}

		record := domain.DocumentRecord{ID: id, Owner: owner, Partition: domain.PartitionBase}
		inDelta := exists(s.path(domain.PartitionDelta, owner, id))
		inBase := exists(s.path(domain.PartitionBase, owner, id))

		switch {
		case inDelta && inBase:
			if err := s.removeDelta(owner, id); err != nil {
				return report, err
			}
		case inDelta:
			if err := s.move(record, domain.PartitionDelta); err != nil {
				return report, err
			}
			report.Moves++
		case !inBase:
			report.Skipped = append(report.Skipped, id)
			continue
		}
		record.StoragePath = s.path(domain.PartitionBase, owner, id)
		report.Records = append(report.Records, record)
	}

	s.metrics.Moved(string(domain.PartitionBase), report.Moves)
	s.prune()
	return report, nil
}

// move relocates a document from one area to the record's partition and
// keeps the marker in step. Caller must hold mu.
func (s *Store) move(record domain.DocumentRecord, from domain.Partition) error {
	src := s.path(from, record.Owner, record.ID)
	dst := s.path(record.Partition, record.Owner, record.ID)
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("create owner dir: %w", err)
	}
	if err := s.moveFile(src, dst); err != nil {
		return err
	}
	if record.Partition == domain.PartitionDelta {
		return s.writeMarker(record)
	}
	return removeIfExists(s.markerPath(record.Owner, record.ID))
}

// moveFile renames src to dst, falling back to copy then delete when the
// rename fails (e.g. across devices).
func (s *Store) moveFile(src, dst string) error {
	err := s.rename(src, dst)
	if err == nil {
		return nil
	}
	s.log.WithError(err).Debug("rename failed, copying instead")

	content, readErr := os.ReadFile(src)
	if readErr != nil {
		return fmt.Errorf("move %s: %w", src, errors.Join(err, readErr))
	}
	if err := atomic.WriteFile(dst, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}

func (s *Store) removeDelta(owner, id string) error {
	if err := removeIfExists(s.path(domain.PartitionDelta, owner, id)); err != nil {
		return err
	}
	return removeIfExists(s.markerPath(owner, id))
}

// prune removes empty directories below the delta root, deepest first.
// Caller must hold mu.
func (s *Store) prune() {
	var dirs []string
	root := filepath.Clean(s.deltaDir)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			s.log.WithError(err).WithField("dir", dir).Debug("could not prune directory")
		}
	}
}

func (s *Store) locate(owner, id string) (domain.Partition, bool) {
	if exists(s.path(domain.PartitionBase, owner, id)) {
		return domain.PartitionBase, true
	}
	if exists(s.path(domain.PartitionDelta, owner, id)) {
		return domain.PartitionDelta, true
	}
	return "", false
}

func (s *Store) writeMarker(record domain.DocumentRecord) error {
	data, err := json.Marshal(marker{
		Owner:      record.Owner,
		ID:         record.ID,
		SourceDate: record.SourceDate,
		PlacedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := atomic.WriteFile(s.markerPath(record.Owner, record.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func (s *Store) readMarker(owner, id string) (*marker, error) {
	data, err := os.ReadFile(s.markerPath(owner, id))
	if err != nil {
		return nil, err
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse marker: %w", err)
	}
	return &m, nil
}

func (s *Store) root(p domain.Partition) string {
	if p == domain.PartitionBase {
		return s.baseDir
	}
	return s.deltaDir
}

func (s *Store) path(p domain.Partition, owner, id string) string {
	return filepath.Join(s.root(p), owner, id+s.ext)
}

func (s *Store) markerPath(owner, id string) string {
	return s.path(domain.PartitionDelta, owner, id) + markerSuffix
}

// checkName rejects owner keys and ids that cannot be used as a single path element.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("invalid name %q: %w", name, domain.ErrInvalidInput)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
