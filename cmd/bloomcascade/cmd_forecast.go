package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/intentsim/bloomcascade/internal/constants"
	"github.com/intentsim/bloomcascade/internal/forecast"
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/simulation"
	"github.com/intentsim/bloomcascade/internal/store"
)

func newForecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast <run>",
		Short: "Train forecast models on a stored run and predict future metrics",
		Long: `Train autoregressive forecast models on the history of a stored run and
print the predicted values of the next steps.

Without --metric every forecastable metric is trained concurrently.

Examples:
  bloomcascade forecast first-cascade --metric complexity --horizon 20
  bloomcascade forecast first-cascade --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metricName, _ := cmd.Flags().GetString("metric")
			horizon, _ := cmd.Flags().GetInt("horizon")
			if horizon < 1 || horizon > constants.MaxHorizon {
				return fmt.Errorf("--horizon must be between 1 and %d, got %d", constants.MaxHorizon, horizon)
			}

			var selected []metrics.Metric
			if metricName != "" {
				m, err := metrics.ParseMetric(metricName)
				if err != nil {
					return err
				}
				if !forecast.Trainable(m) {
					return fmt.Errorf("%w: %s", forecast.ErrUntrainable, m)
				}
				selected = []metrics.Metric{m}
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, events := newLoggers(cmd, cfg)
			defer events.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			run, engine, err := loadEngine(cmd, runs, args[0])
			if err != nil {
				return err
			}
			engine.SetLogger(logger, events)

			if selected == nil {
				if _, err := engine.TrainForecastAsync(ctx).Wait(ctx); err != nil {
					return fmt.Errorf("training failed: %w", err)
				}
				for _, m := range metrics.All() {
					if forecast.Trainable(m) {
						selected = append(selected, m)
					}
				}
			} else if _, err := engine.TrainForecast(ctx, selected[0]); err != nil {
				return fmt.Errorf("training failed: %w", err)
			}

			results := make([]forecast.Result, 0, len(selected))
			for _, m := range selected {
				r, err := engine.Forecast(m, horizon)
				if err != nil {
					return err
				}
				results = append(results, r)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd, map[string]any{
					"run":       run.ID,
					"step":      run.Step,
					"horizon":   horizon,
					"forecasts": results,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Forecast for run %s from step %d (%d steps ahead):\n\n", run.Name, run.Step, horizon)
			for _, r := range results {
				if r.Status != forecast.StatusTrained {
					fmt.Fprintf(out, "  %-18s %s\n", r.Metric, r.Status)
					continue
				}
				values := make([]string, len(r.Values))
				for i, v := range r.Values {
					values[i] = fmt.Sprintf("%.4f", v)
				}
				fmt.Fprintf(out, "  %-18s %s\n", r.Metric, strings.Join(values, " "))
			}
			return nil
		},
	}

	trainable := []string{}
	for _, m := range metrics.All() {
		if forecast.Trainable(m) {
			trainable = append(trainable, string(m))
		}
	}
	slices.Sort(trainable)
	cmd.Flags().String("metric", "", "Metric to forecast: "+strings.Join(trainable, ", "))
	cmd.Flags().Int("horizon", constants.DefaultHorizon, "Number of future steps")

	return cmd
}

// loadEngine restores the stored run ref.
func loadEngine(cmd *cobra.Command, runs *store.Store, ref string) (store.Run, *simulation.Engine, error) {
	run, state, err := runs.Load(cmd.Context(), ref)
	if err != nil {
		return store.Run{}, nil, fmt.Errorf("failed to load run %s: %w", ref, err)
	}
	engine, err := simulation.Restore(state)
	if err != nil {
		return store.Run{}, nil, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
	}
	return run, engine, nil
}
