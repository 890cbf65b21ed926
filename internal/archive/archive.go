// Package archive keeps a local history of discovery runs in a bbolt file.
//
// Only derived metrics are stored: no geometry and no view state.
//
// Buckets:
//
//	runs   one JSON report per discovery run, keyed by a time-ordered UUIDv7
//	_meta  schema version, created_at
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/couchcryptid/flood-extent-service/internal/discovery"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

const schemaVersion = 1

var (
	bucketRuns     = []byte("runs")
	bucketInternal = []byte("_meta")
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Dataset is the archived form of one indexed dataset.
type Dataset struct {
	Key       domain.Key      `json:"key"`
	Label     string          `json:"label,omitempty"`
	SourceRef string          `json:"source_ref"`
	Metrics   domain.Metrics  `json:"metrics"`
	Severity  domain.Severity `json:"severity"`
}

// Run is the archived report of one discovery run.
type Run struct {
	ID         string                `json:"id"`
	StartedAt  time.Time             `json:"started_at"`
	Duration   time.Duration         `json:"duration_ns"`
	Candidates int                   `json:"candidates"`
	Datasets   []Dataset             `json:"datasets"`
	Excluded   []discovery.Exclusion `json:"excluded,omitempty"`
}

// FromResult converts a discovery result into an archive run with a new id.
func FromResult(res discovery.Result) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("run id: %w", err)
	}
	run := Run{
		ID:         id.String(),
		StartedAt:  res.StartedAt,
		Duration:   res.Duration,
		Candidates: res.Candidates,
		Datasets:   make([]Dataset, 0, res.Index.Len()),
		Excluded:   res.Excluded,
	}
	for _, rec := range res.Index.Records() {
		run.Datasets = append(run.Datasets, Dataset{
			Key:       rec.Key(),
			Label:     rec.Descriptor.Label,
			SourceRef: rec.SourceRef,
			Metrics:   rec.Metrics,
			Severity:  rec.Severity,
		})
	}
	return run, nil
}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the archive at path, creating parent directories.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRuns, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) != nil {
			return nil
		}
		if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
			return err
		}
		return meta.Put([]byte("created_at"), []byte(domain.Now().Format(time.RFC3339)))
	})
}

// Record archives a discovery result.
func (s *Store) Record(_ context.Context, res discovery.Result) error {
	run, err := FromResult(res)
	if err != nil {
		return err
	}
	return s.Save(run)
}

// Save stores run under its id, replacing any run with the same id.
func (s *Store) Save(run Run) error {
	if run.ID == "" {
		return errors.New("run has no id")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(run.ID), data)
	})
}

// Get returns the run with the given id.
func (s *Store) Get(id string) (Run, error) {
	var run Run
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRuns).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &run)
	})
	return run, err
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Run, error) {
	runs := []Run{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("decoding run %s: %w", k, err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	return runs, err
}
