// Package composite layers the optional shared database store over the
// filesystem run store.  Reads stay on the filesystem, which is authoritative
// for a slot; writes go to both, so a central database sees every outcome
// across slots.
package composite

import (
	"context"

	"github.com/standardseed/pharmscreen/internal/domain/screening"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/fsstore"
)

// ModelStore dual-writes model build outcomes.
type ModelStore struct {
	*fsstore.Store
	db target.ModelStore
}

// NewModelStore wraps fs with dual writes to db.
func NewModelStore(fs *fsstore.Store, db target.ModelStore) *ModelStore {
	return &ModelStore{Store: fs, db: db}
}

// SaveArtifact persists to the filesystem first, then to the database.  Both
// writes must succeed; the database was enabled deliberately and silent
// divergence would defeat it.
func (s *ModelStore) SaveArtifact(ctx context.Context, runID string, art target.ModelArtifact) error {
	if err := s.Store.SaveArtifact(ctx, runID, art); err != nil {
		return err
	}
	return s.db.SaveArtifact(ctx, runID, art)
}

// ResultStore dual-writes screening pair outcomes.
type ResultStore struct {
	*fsstore.Store
	db screening.ResultStore
}

// NewResultStore wraps fs with dual writes to db.
func NewResultStore(fs *fsstore.Store, db screening.ResultStore) *ResultStore {
	return &ResultStore{Store: fs, db: db}
}

// SaveResult persists to the filesystem first, then to the database.
func (s *ResultStore) SaveResult(ctx context.Context, runID string, res screening.Result) error {
	if err := s.Store.SaveResult(ctx, runID, res); err != nil {
		return err
	}
	return s.db.SaveResult(ctx, runID, res)
}
