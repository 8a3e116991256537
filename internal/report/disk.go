package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// DiskStore writes each RunRecord as <id>.json under Dir and keeps at most
// Keep records, removing the oldest on Save.
type DiskStore struct {
	mu   sync.Mutex
	dir  string
	keep int
}

// NewDiskStore creates a DiskStore rooted at dir. The directory is created
// on the first Save. A keep <= 0 disables pruning.
func NewDiskStore(dir string, keep int) *DiskStore {
	return &DiskStore{dir: dir, keep: keep}
}

// Dir returns the directory holding the records.
func (s *DiskStore) Dir() string { return s.dir }

// Save atomically writes rec to disk, then prunes old records.
func (s *DiskStore) Save(rec *RunRecord) error {
	if rec.ID == "" {
		return errors.New("run record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling record %s: %w", rec.ID, err)
	}
	if err := renameio.WriteFile(s.path(rec.ID), data, 0o644); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.ID, err)
	}
	return s.prune()
}

// Load reads the record for runID.
func (s *DiskStore) Load(runID string) (*RunRecord, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("reading record %s: %w", runID, err)
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshalling record %s: %w", runID, err)
	}
	return &rec, nil
}

// List returns up to limit records, newest first. Unreadable files are skipped.
func (s *DiskStore) List(limit int) ([]*RunRecord, error) {
	s.mu.Lock()
	recs, err := s.readAll()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// readAll loads every record sorted newest first. Callers hold mu.
func (s *DiskStore) readAll() ([]*RunRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}

	var recs []*RunRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		rec, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].StartedAt.Equal(recs[j].StartedAt) {
			return recs[i].ID > recs[j].ID
		}
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
	return recs, nil
}

func (s *DiskStore) prune() error {
	if s.keep <= 0 {
		return nil
	}
	recs, err := s.readAll()
	if err != nil {
		return err
	}
	var errs []error
	for _, rec := range recs[min(s.keep, len(recs)):] {
		if err := os.Remove(s.path(rec.ID)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("pruning record %s: %w", rec.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *DiskStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}
