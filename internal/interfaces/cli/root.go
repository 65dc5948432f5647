// Package cli defines the pharmscreen command tree: the full pipeline run and
// the four individual stages, each resumable over the same workspace root.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global CLI flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
}

// NewRootCommand creates the root command with global flags and subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pharmscreen",
		Short: "Batch virtual-screening pipeline for chemical libraries",
		Long: "pharmscreen orchestrates a four-stage virtual screening pipeline:\n" +
			"target extraction by fingerprint similarity, batched pharmacophore\n" +
			"modeling, exhaustive chemical-target screening, and ranked result\n" +
			"aggregation.  Every stage persists its output and resumes over prior\n" +
			"completed work.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: environment variables only)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "shorthand for --log-level debug")

	cmd.AddCommand(
		newRunCmd(opts),
		newExtractCmd(opts),
		newModelCmd(opts),
		newScreenCmd(opts),
		newReportCmd(opts),
	)
	return cmd
}

// loadConfig resolves configuration with priority flags > env > file.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	} else if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return cfg, nil
}

// newLogger builds the process logger from the resolved configuration.
func newLogger(cfg *config.Config) (logging.Logger, error) {
	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logger, nil
}

// withApp loads config, builds the wired App, runs fn, and tears down.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(app *App) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	app, err := NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
