package aggregation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	scr "github.com/standardseed/pharmscreen/internal/domain/screening"
)

const (
	reportRule       = "================================================================================"
	reportSectRule   = "--------------------------------------------------------------------------------"
	reportTopGlobal  = 20
	reportTopPerChem = 5
)

// renderReport produces the human-readable integrated report: run overview,
// per-stage summaries, the top interactions overall and per chemical, and a
// pointer to the incomplete-pair table.
func renderReport(runID string, sum *Summary) string {
	var b strings.Builder

	fmt.Fprintln(&b, reportRule)
	fmt.Fprintln(&b, " Integrated virtual screening report")
	fmt.Fprintln(&b, reportRule)
	fmt.Fprintf(&b, "Run ID:    %s\n", runID)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	writeExtractionSection(&b, sum)
	writeModelingSection(&b, sum)
	writeScreeningSection(&b, sum)
	writeTopInteractions(&b, sum.Hits)
	writePerChemicalTop(&b, sum.Hits)
	writeArtifactDownloads(&b, sum.ArtifactURLs)

	fmt.Fprintln(&b, reportSectRule)
	fmt.Fprintf(&b, "Incomplete pairs: %d (see incomplete_pairs.csv)\n", len(sum.Incomplete))
	fmt.Fprintln(&b, reportRule)
	return b.String()
}

func writeExtractionSection(b *strings.Builder, sum *Summary) {
	s := sum.Worklist.Stats
	fmt.Fprintln(b, reportSectRule)
	fmt.Fprintln(b, "Target extraction")
	fmt.Fprintln(b, reportSectRule)
	fmt.Fprintf(b, "Chemicals processed: %d (skipped: %d)\n", s.Chemicals, s.SkippedChemicals)
	fmt.Fprintf(b, "Selected pairs:      %d\n", s.SelectedPairs)
	fmt.Fprintf(b, "Unique targets:      %d\n", s.UniqueTargets)
	fmt.Fprintf(b, "Similarity range:    %.4f - %.4f (mean %.4f)\n\n",
		s.MinSimilarity, s.MaxSimilarity, s.MeanSimilarity)
}

func writeModelingSection(b *strings.Builder, sum *Summary) {
	fmt.Fprintln(b, reportSectRule)
	fmt.Fprintln(b, "Pharmacophore modeling")
	fmt.Fprintln(b, reportSectRule)
	if len(sum.Batches) == 0 {
		fmt.Fprintln(b, "No batch summaries recorded.")
		fmt.Fprintln(b)
		return
	}
	var succeeded, failed, skipped int
	for _, bs := range sum.Batches {
		succeeded += bs.Succeeded
		failed += bs.Failed
		skipped += bs.Skipped
		fmt.Fprintf(b, "Batch %d/%d: %d targets, %d succeeded, %d failed, %d skipped (%.1fs)\n",
			bs.BatchIndex+1, bs.BatchCount, bs.Targets, bs.Succeeded, bs.Failed,
			bs.Skipped, bs.Duration.Seconds())
	}
	fmt.Fprintf(b, "Total: %d succeeded, %d failed, %d skipped\n\n", succeeded, failed, skipped)
}

func writeScreeningSection(b *strings.Builder, sum *Summary) {
	s := sum.Screening
	fmt.Fprintln(b, reportSectRule)
	fmt.Fprintln(b, "Screening")
	fmt.Fprintln(b, reportSectRule)
	fmt.Fprintf(b, "Pairs attempted: %d (succeeded: %d, failed: %d)\n",
		s.Attempted, s.Succeeded, s.Failed)
	if s.Succeeded > 0 {
		fmt.Fprintf(b, "Score range:     %.4f - %.4f (mean %.4f)\n",
			s.MinScore, s.MaxScore, s.MeanScore)
	}
	for _, rc := range sortedReasons(s.FailuresByReason) {
		fmt.Fprintf(b, "  %-16s %d\n", rc.reason+":", rc.count)
	}
	fmt.Fprintln(b)
}

func writeTopInteractions(b *strings.Builder, hits []scr.CombinedHit) {
	fmt.Fprintln(b, reportSectRule)
	fmt.Fprintf(b, "Top %d chemical-target interactions\n", reportTopGlobal)
	fmt.Fprintln(b, reportSectRule)
	top := scr.TopK(hits, reportTopGlobal)
	for _, h := range top {
		fmt.Fprintf(b, "%3d. %s -> %s  combined=%.4f (similarity=%.4f, screening=%.4f)\n",
			h.Rank, h.ChemicalID, h.TargetID, h.CombinedScore, h.SimilarityScore, h.ScreeningScore)
	}
	if len(top) == 0 {
		fmt.Fprintln(b, "No successfully screened pairs.")
	}
	fmt.Fprintln(b)
}

func writePerChemicalTop(b *strings.Builder, hits []scr.CombinedHit) {
	fmt.Fprintln(b, reportSectRule)
	fmt.Fprintf(b, "Top %d targets per chemical\n", reportTopPerChem)
	fmt.Fprintln(b, reportSectRule)

	// Hits arrive globally ranked, so a per-chemical walk in rank order keeps
	// each chemical's list ranked too.
	perChem := make(map[string][]scr.CombinedHit)
	var order []string
	for _, h := range hits {
		if len(perChem[h.ChemicalID]) == 0 {
			order = append(order, h.ChemicalID)
		}
		if len(perChem[h.ChemicalID]) < reportTopPerChem {
			perChem[h.ChemicalID] = append(perChem[h.ChemicalID], h)
		}
	}
	for _, chemID := range order {
		fmt.Fprintf(b, "%s:\n", chemID)
		for i, h := range perChem[chemID] {
			fmt.Fprintf(b, "  %d. %s  combined=%.4f\n", i+1, h.TargetID, h.CombinedScore)
		}
	}
	if len(order) == 0 {
		fmt.Fprintln(b, "No successfully screened pairs.")
	}
	fmt.Fprintln(b)
}

// writeArtifactDownloads lists presigned model-artifact URLs for the targets
// of the top interactions.  The section is omitted entirely when no mirror is
// configured.
func writeArtifactDownloads(b *strings.Builder, urls map[string]string) {
	if len(urls) == 0 {
		return
	}
	ids := make([]string, 0, len(urls))
	for id := range urls {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(b, reportSectRule)
	fmt.Fprintln(b, "Model artifact downloads")
	fmt.Fprintln(b, reportSectRule)
	for _, id := range ids {
		fmt.Fprintf(b, "%s: %s\n", id, urls[id])
	}
	fmt.Fprintln(b)
}

type reasonCount struct {
	reason string
	count  int
}

func sortedReasons(m map[scr.FailureReason]int) []reasonCount {
	out := make([]reasonCount, 0, len(m))
	for r, n := range m {
		out = append(out, reasonCount{reason: string(r), count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].reason < out[j].reason })
	return out
}
