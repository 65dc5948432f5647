// Package fsstore implements the filesystem run store: the canonical on-disk
// layout for extraction worklists, model build outcomes, screening results,
// and aggregation reports.  The layout is a cache, fully re-derivable from the
// input library, so every write is atomic (temp file + rename) and every read
// tolerates missing files.
package fsstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Directory layout under the store root.  All names are fixed so separate
// stages (and separate job slots) agree on paths without coordination.
const (
	dirExtraction = "extraction"
	dirModels     = "models"
	dirModelState = "models/status"
	dirArtifacts  = "models/artifacts"
	dirScreening  = "screening"
	dirPairState  = "screening/results"
	dirReports    = "reports"
)

// Store is the filesystem-backed run store.  One Store instance maps to one
// root directory; concurrent use by goroutines of a single process is safe
// because all writes are atomic renames of distinct paths.
type Store struct {
	root   string
	logger logging.Logger
}

// New creates the store root and its fixed subdirectories.
func New(root string, logger logging.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.InvalidConfig("fsstore root must not be empty")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	for _, d := range []string{
		dirExtraction, dirModelState, dirArtifacts, dirPairState, dirReports,
	} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create store directory")
		}
	}
	return &Store{root: root, logger: logger.Named("fsstore")}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// ArtifactDir returns the directory model builders should write artifacts for
// a target into.
func (s *Store) ArtifactDir(targetID string) string {
	return filepath.Join(s.root, dirArtifacts, targetID)
}

// ReportsDir returns the directory aggregation reports are written into.
func (s *Store) ReportsDir() string {
	return filepath.Join(s.root, dirReports)
}

// ─────────────────────────────────────────────────────────────────────────────
// Run metadata
// ─────────────────────────────────────────────────────────────────────────────

// RunMeta records the identity of the run that owns this store root.
type RunMeta struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// SaveRunMeta persists the run identity at the store root.
func (s *Store) SaveRunMeta(meta RunMeta) error {
	return s.writeJSON(filepath.Join(s.root, "run.json"), meta)
}

// LoadRunMeta returns the recorded run identity, or ok=false when this root
// has not hosted a run yet.
func (s *Store) LoadRunMeta() (meta RunMeta, ok bool, err error) {
	err = s.readJSON(filepath.Join(s.root, "run.json"), &meta)
	if err != nil {
		if os.IsNotExist(underlying(err)) {
			return RunMeta{}, false, nil
		}
		return RunMeta{}, false, err
	}
	return meta, true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic file helpers
// ─────────────────────────────────────────────────────────────────────────────

// writeFileAtomic writes data to path via a temp file and rename, so readers
// never observe a partially-written file.
func (s *Store) writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create parent directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to rename temp file")
	}
	return nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to marshal JSON")
	}
	return s.writeFileAtomic(path, append(data, '\n'))
}

func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError,
			fmt.Sprintf("failed to read %s", filepath.Base(path)))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError,
			fmt.Sprintf("corrupt JSON in %s", filepath.Base(path)))
	}
	return nil
}

// underlying unwraps to the deepest cause, so os.IsNotExist checks work on
// wrapped store errors.
func underlying(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok || u.Unwrap() == nil {
			return err
		}
		err = u.Unwrap()
	}
}
