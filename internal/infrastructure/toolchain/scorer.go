package toolchain

import (
	"context"
	"strconv"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

// Scorer implements screening.Scorer over the configured external scoring
// command.
type Scorer struct {
	argv []string
}

// NewScorer creates a Scorer from the tools configuration.
func NewScorer(cfg config.ToolsConfig) *Scorer {
	return &Scorer{argv: cfg.ScorerCommand}
}

// Score runs the scoring tool for one chemical-model pair and parses the
// numeric score from the last line of stdout.
func (s *Scorer) Score(ctx context.Context, chem chemical.Chemical, model target.ModelArtifact) (float64, error) {
	argv := expand(s.argv, map[string]string{
		"chemical_id": chem.ID,
		"smiles":      chem.SMILES,
		"target_id":   model.TargetID,
		"model":       model.PrimaryArtifact(),
	})
	out, err := runCommand(ctx, argv)
	if err != nil {
		return 0, classifyScorerError(err, chem.ID, model.TargetID)
	}

	score, err := strconv.ParseFloat(lastLine(out), 64)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeScoringFailed,
			"scoring tool produced no parseable score").
			WithDetail("pair=" + chem.ID + "/" + model.TargetID)
	}
	return score, nil
}

func classifyScorerError(err error, chemicalID, targetID string) error {
	if te, ok := err.(*toolError); ok {
		if te.exitCode() == exitInputRejected {
			return apperrors.Wrap(err, apperrors.ErrCodeScoringInvalidSMILES, "chemical SMILES rejected").
				WithDetail("pair=" + chemicalID + "/" + targetID)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeScoringFailed, "pair scoring failed").
			WithDetail("pair=" + chemicalID + "/" + targetID)
	}
	return err
}
