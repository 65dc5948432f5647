package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/standardseed/pharmscreen/internal/application/pipeline"
	"github.com/standardseed/pharmscreen/internal/domain/target"
)

// newRunCmd runs all four stages end to end.
func newRunCmd(opts *RootOptions) *cobra.Command {
	var library, simReport string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: extract, model, screen, report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *App) error {
				if simReport != "" {
					if err := app.UseSimilarityReport(simReport); err != nil {
						return err
					}
				}
				if err := app.RequireSearcher(); err != nil {
					return err
				}
				p := pipeline.New(app.Extractor, app.Modeler, app.Screener,
					app.Aggregator, app.Store, app.Events, app.Logger)
				sum, err := p.Run(cmd.Context(), library)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Run complete: %d ranked hits, %d incomplete pairs.\nReports: %s\n",
					len(sum.Hits), len(sum.Incomplete), app.Store.ReportsDir())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&library, "library", "l", "", "chemical library CSV (required)")
	cmd.Flags().StringVar(&simReport, "similarity-report", "", "precomputed similarity report to use instead of the vector store")
	cmd.MarkFlagRequired("library")
	return cmd
}

// newExtractCmd runs only the target-extraction stage.
func newExtractCmd(opts *RootOptions) *cobra.Command {
	var library, simReport string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract top-N candidate targets per chemical",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *App) error {
				if simReport != "" {
					if err := app.UseSimilarityReport(simReport); err != nil {
						return err
					}
				}
				if err := app.RequireSearcher(); err != nil {
					return err
				}
				if _, err := pipeline.EnsureRunID(app.Store); err != nil {
					return err
				}
				lib, err := pipeline.LoadLibrary(library, app.Logger)
				if err != nil {
					return err
				}
				w, err := app.Extractor.Run(cmd.Context(), lib)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Extraction complete: %d chemicals, %d pairs, %d unique targets.\n",
					w.Stats.Chemicals, w.Stats.SelectedPairs, w.Stats.UniqueTargets)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&library, "library", "l", "", "chemical library CSV (required)")
	cmd.Flags().StringVar(&simReport, "similarity-report", "", "precomputed similarity report to use instead of the vector store")
	cmd.MarkFlagRequired("library")
	return cmd
}

// newModelCmd runs the modeling stage, either all batches or one batch slot.
func newModelCmd(opts *RootOptions) *cobra.Command {
	var batchIndex int

	cmd := &cobra.Command{
		Use:   "model",
		Short: "Build pharmacophore models for the extracted targets",
		Long: "Builds one model per unique target.  With --batch-index the command\n" +
			"processes a single batch, so external schedulers can fan batches out\n" +
			"across job slots; without it every batch runs in this process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *App) error {
				runID, w, err := loadRunAndWorklist(app)
				if err != nil {
					return err
				}
				if batchIndex >= 0 {
					sum, err := app.Modeler.RunBatch(cmd.Context(), runID, w, batchIndex)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(),
						"Batch %d complete: %d succeeded, %d failed, %d skipped.\n",
						batchIndex, sum.Succeeded, sum.Failed, sum.Skipped)
					return nil
				}
				if err := app.Modeler.RunAll(cmd.Context(), runID, w); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All modeling batches complete.")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&batchIndex, "batch-index", -1, "single batch to process (default: all batches)")
	return cmd
}

// newScreenCmd runs the screening stage.
func newScreenCmd(opts *RootOptions) *cobra.Command {
	var library string

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Score every chemical against every modeled target",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *App) error {
				runID, err := pipeline.EnsureRunID(app.Store)
				if err != nil {
					return err
				}
				lib, err := pipeline.LoadLibrary(library, app.Logger)
				if err != nil {
					return err
				}
				stats, err := app.Screener.Run(cmd.Context(), runID, lib)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Screening complete: %d pairs, %d succeeded, %d failed.\n",
					stats.Attempted, stats.Succeeded, stats.Failed)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&library, "library", "l", "", "chemical library CSV (required)")
	cmd.MarkFlagRequired("library")
	return cmd
}

// newReportCmd runs the aggregation stage.
func newReportCmd(opts *RootOptions) *cobra.Command {
	var library string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Join, rank and report the screening results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *App) error {
				runID, err := pipeline.EnsureRunID(app.Store)
				if err != nil {
					return err
				}
				lib, err := pipeline.LoadLibrary(library, app.Logger)
				if err != nil {
					return err
				}
				sum, err := app.Aggregator.Aggregate(cmd.Context(), runID, lib)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Report complete: %d ranked hits, %d incomplete pairs.\nReports: %s\n",
					len(sum.Hits), len(sum.Incomplete), app.Store.ReportsDir())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&library, "library", "l", "", "chemical library CSV (required)")
	cmd.MarkFlagRequired("library")
	return cmd
}

// loadRunAndWorklist resolves the run identity and the persisted extraction
// output, which the modeling stage requires.
func loadRunAndWorklist(app *App) (string, *target.Worklist, error) {
	runID, err := pipeline.EnsureRunID(app.Store)
	if err != nil {
		return "", nil, err
	}
	w, ok, err := app.Store.LoadWorklist()
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, fmt.Errorf("no extraction output in %s; run `pharmscreen extract` first", app.Store.Root())
	}
	return runID, w, nil
}
