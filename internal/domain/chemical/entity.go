// Package chemical provides the domain model for query chemicals and their
// candidate protein targets.  A Chemical is the unit the pipeline screens; a
// CandidateTarget is one ranked hit returned for it by similarity search.
package chemical

import (
	"regexp"
	"sort"
	"strings"

	"github.com/standardseed/pharmscreen/pkg/errors"
)

// validSMILESChars defines the allowed character set for SMILES notation.
// This is a simplified check; full SMILES validation requires a parser and is
// the scorer's responsibility.
var validSMILESChars = regexp.MustCompile(`^[A-Za-z0-9@+\-\[\]()=#/\\%.*:]+$`)

// ─────────────────────────────────────────────────────────────────────────────
// Chemical
// ─────────────────────────────────────────────────────────────────────────────

// Chemical is one query compound of the screening library.  ID is the stable
// identifier reused verbatim in every downstream record; join correctness
// across pipeline stages depends on exact string equality of IDs.
type Chemical struct {
	// ID is the canonical identifier, derived from Name with whitespace
	// collapsed.  Never rewritten downstream.
	ID string `json:"id"`

	// Name is the display name as given in the library file.
	Name string `json:"name"`

	// SMILES is the structure notation handed to collaborators unmodified.
	SMILES string `json:"smiles"`

	// Source records the origin of the compound (e.g., plant species).
	Source string `json:"source,omitempty"`

	// Category is a free-form compound class (e.g., flavonoid).
	Category string `json:"category,omitempty"`
}

// NewChemical constructs a validated Chemical.  Name and SMILES are required;
// a malformed record yields an INP error so callers can skip it without
// aborting the run.
func NewChemical(name, smiles, source, category string) (Chemical, error) {
	name = strings.TrimSpace(name)
	smiles = strings.TrimSpace(smiles)
	if name == "" {
		return Chemical{}, errors.New(errors.ErrCodeInputMissingField, "chemical name must not be empty")
	}
	if smiles == "" {
		return Chemical{}, errors.New(errors.ErrCodeInputMissingField, "SMILES must not be empty").
			WithDetail("chemical=" + name)
	}
	if !validSMILESChars.MatchString(smiles) {
		return Chemical{}, errors.New(errors.ErrCodeInputMalformed, "SMILES contains invalid characters").
			WithDetail("chemical=" + name)
	}
	return Chemical{
		ID:       CanonicalID(name),
		Name:     name,
		SMILES:   smiles,
		Source:   strings.TrimSpace(source),
		Category: strings.TrimSpace(category),
	}, nil
}

// CanonicalID derives the stable chemical identifier from a display name:
// trimmed, inner whitespace runs collapsed to single underscores.
func CanonicalID(name string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(name)), "_")
}

// ─────────────────────────────────────────────────────────────────────────────
// CandidateTarget
// ─────────────────────────────────────────────────────────────────────────────

// CandidateTarget is one ranked similarity hit for a chemical.  SourceRank is
// the 1-based position in the searcher's ranking and is preserved for
// provenance even after cross-chemical deduplication.
type CandidateTarget struct {
	ChemicalID string  `json:"chemical_id"`
	TargetID   string  `json:"target_id"`
	Similarity float64 `json:"similarity"`
	SourceRank int     `json:"source_rank"`
}

// SortCandidates orders candidates by similarity descending, breaking ties by
// target ID ascending so the ordering is total and reproducible.
func SortCandidates(cands []CandidateTarget) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Similarity != cands[j].Similarity {
			return cands[i].Similarity > cands[j].Similarity
		}
		return cands[i].TargetID < cands[j].TargetID
	})
}

// TopN returns the first n candidates of a sorted slice, or all of them when
// fewer exist.  The input must already be sorted by SortCandidates.
func TopN(cands []CandidateTarget, n int) []CandidateTarget {
	if len(cands) <= n {
		return cands
	}
	return cands[:n]
}
