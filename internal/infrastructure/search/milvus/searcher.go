// Package milvus implements the similarity-search collaborator on top of a
// Milvus collection of reference-ligand fingerprint vectors.  Each collection
// entity carries the target ID as its string primary key; a query fingerprint
// ANN search therefore returns candidate targets directly.
package milvus

import (
	"context"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Searcher implements chemical.SimilaritySearcher over a Milvus collection.
type Searcher struct {
	client      client.Client
	collection  string
	vectorField string
	metricType  entity.MetricType
	searchEf    int
	logger      logging.Logger
}

// NewSearcher connects to Milvus and loads the reference collection.
func NewSearcher(ctx context.Context, cfg config.MilvusConfig, logger logging.Logger) (*Searcher, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Addr})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to connect to milvus").
			WithDetail("addr=" + cfg.Addr)
	}
	if err := c.LoadCollection(ctx, cfg.Collection, false); err != nil {
		c.Close()
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load collection").
			WithDetail("collection=" + cfg.Collection)
	}
	return &Searcher{
		client:      c,
		collection:  cfg.Collection,
		vectorField: cfg.VectorField,
		metricType:  entity.MetricType(cfg.MetricType),
		searchEf:    cfg.SearchEf,
		logger:      logger.Named("milvus"),
	}, nil
}

// Close releases the Milvus connection.
func (s *Searcher) Close() error {
	return s.client.Close()
}

// Search computes the query fingerprint for chem and runs an ANN search over
// the reference collection, returning up to limit candidates ranked by
// similarity.  Result ranks are 1-based in Milvus score order; callers
// re-sort deterministically before truncation.
func (s *Searcher) Search(ctx context.Context, chem chemical.Chemical, limit int) ([]chemical.CandidateTarget, error) {
	vec, err := morganFingerprint(chem.SMILES)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputMalformed, "failed to fingerprint chemical").
			WithDetail("chemical=" + chem.ID)
	}

	sp, err := entity.NewIndexHNSWSearchParam(s.searchEf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build search params")
	}

	start := time.Now()
	results, err := s.client.Search(ctx, s.collection, nil, "", nil,
		[]entity.Vector{entity.FloatVector(vec)},
		s.vectorField, s.metricType, limit, sp)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "similarity search failed").
			WithDetail("chemical=" + chem.ID)
	}

	var cands []chemical.CandidateTarget
	for _, res := range results {
		for i := 0; i < res.ResultCount; i++ {
			targetID, err := res.IDs.GetAsString(i)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read result id")
			}
			cands = append(cands, chemical.CandidateTarget{
				ChemicalID: chem.ID,
				TargetID:   targetID,
				Similarity: s.toSimilarity(res.Scores[i]),
				SourceRank: i + 1,
			})
		}
	}

	s.logger.Debug("similarity search executed",
		logging.String("chemical_id", chem.ID),
		logging.Int("candidates", len(cands)),
		logging.Duration("took", time.Since(start)))
	return cands, nil
}

// toSimilarity converts a Milvus score to a similarity in [0, 1].  JACCARD
// and TANIMOTO report distances (1 - similarity); other metrics are passed
// through as-is.
func (s *Searcher) toSimilarity(score float32) float64 {
	switch s.metricType {
	case entity.JACCARD, entity.TANIMOTO:
		sim := 1 - float64(score)
		if sim < 0 {
			return 0
		}
		return sim
	default:
		return float64(score)
	}
}
