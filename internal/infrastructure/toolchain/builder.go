package toolchain

import (
	"context"
	"os"
	"path/filepath"

	"github.com/standardseed/pharmscreen/internal/config"
	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

// Builder implements target.ModelBuilder over the configured external
// modeling command.
type Builder struct {
	argv []string
}

// NewBuilder creates a Builder from the tools configuration.
func NewBuilder(cfg config.ToolsConfig) *Builder {
	return &Builder{argv: cfg.BuilderCommand}
}

// Build runs the modeling tool for one target.  The tool prints the artifact
// path on its last stdout line; an empty stdout falls back to the
// conventional model.json under outDir.  The artifact file must exist on
// success, otherwise the build classifies as a build error.
func (b *Builder) Build(ctx context.Context, targetID, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeModelBuildFailed, "failed to create artifact directory")
	}

	argv := expand(b.argv, map[string]string{
		"target_id": targetID,
		"out_dir":   outDir,
	})
	out, err := runCommand(ctx, argv)
	if err != nil {
		return "", classifyBuilderError(err, targetID)
	}

	path := lastLine(out)
	if path == "" {
		path = filepath.Join(outDir, "model.json")
	}
	if _, err := os.Stat(path); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeModelArtifactMissing,
			"modeling tool exited cleanly but produced no artifact").
			WithDetail("target=" + targetID)
	}
	return path, nil
}

func classifyBuilderError(err error, targetID string) error {
	if te, ok := err.(*toolError); ok {
		switch te.exitCode() {
		case exitInputRejected:
			return apperrors.Wrap(err, apperrors.ErrCodeModelInvalidStructure, "target structure rejected").
				WithDetail("target=" + targetID)
		case exitFetchFailed:
			return apperrors.Wrap(err, apperrors.ErrCodeModelDownloadFailed, "target structure download failed").
				WithDetail("target=" + targetID)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeModelBuildFailed, "model build failed").
			WithDetail("target=" + targetID)
	}
	// Context errors pass through untouched so deadline classification works.
	return err
}
