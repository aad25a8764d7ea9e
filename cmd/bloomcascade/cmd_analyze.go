package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/intentsim/bloomcascade/internal/analysis"
)

// analysisResult is the JSON output of the analyze command.
type analysisResult struct {
	Run            string                      `json:"run"`
	Step           int                         `json:"step"`
	Classification analysis.Classification     `json:"classification"`
	Summary        *analysis.Summary           `json:"summary,omitempty"`
	Anomalies      map[string]analysis.Anomaly `json:"anomalies"`
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <run>",
		Short: "Classify a stored run's trajectory and report anomalies",
		Long: `Match the recorded metrics of a stored run against the developmental
profiles, summarize the run and list detected anomalies.

Examples:
  bloomcascade analyze first-cascade
  bloomcascade analyze first-cascade --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			run, engine, err := loadEngine(cmd, runs, args[0])
			if err != nil {
				return err
			}

			result := analysisResult{
				Run:            run.ID,
				Step:           run.Step,
				Classification: engine.ClassifyTrajectory(),
				Anomalies:      engine.DetectAnomalies(),
			}
			if summary, ok := engine.Summary(); ok {
				result.Summary = &summary
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd, result)
			}
			printAnalysis(cmd, run.Name, result)
			return nil
		},
	}
}

func printAnalysis(cmd *cobra.Command, name string, r analysisResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s at step %d\n\n", name, r.Step)

	c := r.Classification
	fmt.Fprintln(out, "Trajectory:")
	if c.Status != analysis.ClassScored {
		fmt.Fprintln(out, "  not enough history to classify")
	} else {
		fmt.Fprintf(out, "  profile:    %s\n", c.Profile)
		fmt.Fprintf(out, "  confidence: %.2f\n", c.Confidence)
		for _, p := range slices.Sorted(maps.Keys(c.Scores)) {
			fmt.Fprintf(out, "    %-24s %.2f\n", p, c.Scores[p])
		}
	}

	if s := r.Summary; s != nil {
		fmt.Fprintln(out, "\nSummary:")
		fmt.Fprintf(out, "  peak complexity:  %.4f (step %d)\n", s.PeakComplexity, s.PeakStep)
		fmt.Fprintf(out, "  final complexity: %.4f\n", s.FinalComplexity)
		fmt.Fprintf(out, "  retention:        %.4f\n", s.RetentionRatio)
		if s.EnergyEfficiency != nil {
			fmt.Fprintf(out, "  energy efficiency: %.4f\n", *s.EnergyEfficiency)
		}
		fmt.Fprintf(out, "  stability:        %.4f\n", s.Stability)
		fmt.Fprintf(out, "  focus:            %.4f ± %.4f\n", s.FocusMean, s.FocusStd)
		fmt.Fprintf(out, "  pruning:          mean %.4f, max %.4f\n", s.PruningMean, s.PruningMax)
		if s.Overpruning {
			fmt.Fprintln(out, "  overpruning detected")
		}
	}

	fmt.Fprintln(out, "\nAnomalies:")
	if len(r.Anomalies) == 0 {
		fmt.Fprintln(out, "  none")
		return
	}
	for _, kind := range slices.Sorted(maps.Keys(r.Anomalies)) {
		a := r.Anomalies[kind]
		fmt.Fprintf(out, "  %-22s severity %.2f  %s\n", kind, a.Severity, a.Description)
	}
}
