// Package report implements the similarity-search collaborator on top of a
// precomputed similarity-analysis report file.  The report groups ranked
// candidate rows under MOLECULE: headers; loading it once up front lets the
// extraction stage run without a live vector store.
package report

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// moleculeHeader introduces one chemical's candidate block.
const moleculeHeader = "MOLECULE:"

// Searcher implements chemical.SimilaritySearcher over a parsed report.
type Searcher struct {
	candidates map[string][]chemical.CandidateTarget
	logger     logging.Logger
}

// Load parses the report at path and returns a searcher over its contents.
func Load(path string, logger logging.Logger) (*Searcher, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParseFailed, "failed to open similarity report").
			WithDetail("path=" + path)
	}
	defer f.Close()

	candidates, err := parse(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParseFailed, "failed to parse similarity report").
			WithDetail("path=" + path)
	}
	if len(candidates) == 0 {
		return nil, errors.New(errors.ErrCodeInputParseFailed, "similarity report contains no molecules").
			WithDetail("path=" + path)
	}
	logger.Info("similarity report loaded",
		logging.String("path", path),
		logging.Int("molecules", len(candidates)))
	return &Searcher{candidates: candidates, logger: logger.Named("report")}, nil
}

// Search returns up to limit candidates recorded for chem, in report order.
// A chemical absent from the report gets an empty result; the extraction
// stage then skips it the same way it skips an empty live search.
func (s *Searcher) Search(ctx context.Context, chem chemical.Chemical, limit int) ([]chemical.CandidateTarget, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, ok := s.candidates[chem.Name]
	if !ok {
		rows = s.candidates[chem.ID]
	}
	if len(rows) == 0 {
		s.logger.Debug("chemical not present in similarity report",
			logging.String("chemical_id", chem.ID))
		return nil, nil
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]chemical.CandidateTarget, len(rows))
	for i, row := range rows {
		row.ChemicalID = chem.ID
		out[i] = row
	}
	return out, nil
}

// parse reads the candidate table.  Rows outside a MOLECULE: block, separator
// and column-header lines, and rows that do not parse as rank/target/score
// are skipped, matching the tolerant upstream report format.
func parse(r io.Reader) (map[string][]chemical.CandidateTarget, error) {
	candidates := make(map[string][]chemical.CandidateTarget)
	var current string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, moleculeHeader) {
			current = strings.TrimSpace(strings.TrimPrefix(line, moleculeHeader))
			continue
		}
		if current == "" || line == "" ||
			strings.HasPrefix(line, "-") || strings.HasPrefix(line, "Rank") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		rank, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			continue
		}
		if !validTargetID(parts[1]) {
			continue
		}
		candidates[current] = append(candidates[current], chemical.CandidateTarget{
			TargetID:   parts[1],
			Similarity: score,
			SourceRank: rank,
		})
	}
	return candidates, scanner.Err()
}

// validTargetID accepts the 4-character alphanumeric protein-structure IDs
// the report carries.
func validTargetID(id string) bool {
	if len(id) != 4 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
