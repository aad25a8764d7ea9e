package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/intentsim/bloomcascade/internal/config"
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/sanitize"
	"github.com/intentsim/bloomcascade/internal/simulation"
	"github.com/intentsim/bloomcascade/internal/store"
)

// runResult is the JSON output of the run command.
type runResult struct {
	Step      int                `json:"step"`
	Phase     string             `json:"phase"`
	Snapshots []metrics.Snapshot `json:"snapshots"`
	Run       *store.Run         `json:"run,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation and print per-step metrics",
		Long: `Run the simulation for a number of steps and print the metrics recorded
at each step.

Phases are entered by a bloom cascade (--blooms) or an explicit schedule
(--schedule). Both are run-relative: step 0 is the first step of the run.
Without either flag the run section of the config file applies.

Examples:
  bloomcascade run --steps 200 --blooms 20
  bloomcascade run --steps 60 --schedule 5:bloom --schedule 30:pruning
  bloomcascade run --steps 100 --save first-cascade
  bloomcascade run --from first-cascade --steps 100 --update`,
		RunE: runSimulation,
	}

	cmd.Flags().Int("steps", 0, "Number of steps to run (default from config)")
	cmd.Flags().IntSlice("blooms", nil, "Run-relative bloom steps; builds a bloom cascade")
	cmd.Flags().StringSlice("schedule", nil, "Phase schedule entries as step:phase")
	cmd.Flags().Uint64("seed", 0, "Random seed (default from config)")
	cmd.Flags().Int("agents", 0, "Number of agents (default from config)")
	cmd.Flags().Int("every", 1, "Print every Nth step in text output")
	cmd.Flags().String("from", "", "Continue a stored run (id or name)")
	cmd.Flags().String("save", "", "Save the result as a new stored run with this name")
	cmd.Flags().Bool("update", false, "Append the result to the run given by --from")

	return cmd
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	from, _ := cmd.Flags().GetString("from")
	save, _ := cmd.Flags().GetString("save")
	update, _ := cmd.Flags().GetBool("update")
	every, _ := cmd.Flags().GetInt("every")
	if update && from == "" {
		return errors.New("--update requires --from")
	}
	if update && save != "" {
		return errors.New("--update and --save are mutually exclusive")
	}
	if every < 1 {
		return fmt.Errorf("--every must be positive, got %d", every)
	}
	name := sanitize.RunName(save)
	if save != "" && name == "" {
		return fmt.Errorf("invalid run name %q", save)
	}

	logger, events := newLoggers(cmd, cfg)
	defer events.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var runs *store.Store
	if from != "" || save != "" {
		runs, err = openStore(cfg)
		if err != nil {
			return err
		}
		defer runs.Close()
	}

	var (
		engine *simulation.Engine
		source store.Run
	)
	if from != "" {
		run, state, err := runs.Load(ctx, from)
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", from, err)
		}
		engine, err = simulation.Restore(state)
		if err != nil {
			return fmt.Errorf("failed to restore run %s: %w", run.ID, err)
		}
		source = run
		cfg.Simulation.CascadeDelay = engine.Config().CascadeDelay
	} else {
		engine, err = simulation.New(cfg.Simulation)
		if err != nil {
			return fmt.Errorf("failed to create engine: %w", err)
		}
	}
	engine.SetLogger(logger, events)

	schedule, err := cfg.Schedule()
	if err != nil {
		return err
	}
	snaps, err := engine.Run(ctx, cfg.Run.Steps, schedule)
	if err != nil {
		return fmt.Errorf("run stopped after %d of %d steps: %w", len(snaps), cfg.Run.Steps, err)
	}

	result := runResult{
		Step:      engine.CurrentStep(),
		Phase:     engine.Phase().String(),
		Snapshots: snaps,
	}
	if update || save != "" {
		state, err := engine.State()
		if err != nil {
			return err
		}
		var run store.Run
		if update {
			run, err = runs.Update(ctx, source.ID, state)
		} else {
			run, err = runs.Save(ctx, name, state)
		}
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		result.Run = &run
	}

	if jsonOutput(cmd) {
		if result.Snapshots == nil {
			result.Snapshots = []metrics.Snapshot{}
		}
		return writeJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	printSnapshots(out, snaps, every)
	fmt.Fprintf(out, "\nFinished at step %d in phase %s\n", result.Step, result.Phase)
	if result.Run != nil {
		fmt.Fprintf(out, "Saved run %s (%s) at step %d\n", result.Run.Name, result.Run.ID, result.Run.Step)
	}
	return nil
}

// applyRunFlags overrides the config's run and simulation settings with
// the flags that were set, then validates again.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("blooms") && flags.Changed("schedule") {
		return errors.New("--blooms and --schedule are mutually exclusive")
	}
	if flags.Changed("steps") {
		cfg.Run.Steps, _ = flags.GetInt("steps")
	}
	if flags.Changed("blooms") {
		cfg.Run.Blooms, _ = flags.GetIntSlice("blooms")
		cfg.Run.Schedule = nil
	}
	if flags.Changed("schedule") {
		entries, _ := flags.GetStringSlice("schedule")
		schedule, err := parseScheduleFlag(entries)
		if err != nil {
			return err
		}
		cfg.Run.Schedule = schedule
		cfg.Run.Blooms = nil
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("agents") {
		cfg.Simulation.Agents.Count, _ = flags.GetInt("agents")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	return nil
}

// parseScheduleFlag parses step:phase entries. Phase names are checked by
// config validation.
func parseScheduleFlag(entries []string) (map[int]string, error) {
	schedule := make(map[int]string, len(entries))
	for _, entry := range entries {
		stepStr, name, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("schedule entry %q: want step:phase", entry)
		}
		step, err := strconv.Atoi(strings.TrimSpace(stepStr))
		if err != nil {
			return nil, fmt.Errorf("schedule entry %q: invalid step: %w", entry, err)
		}
		if _, dup := schedule[step]; dup {
			return nil, fmt.Errorf("schedule entry %q: step %d scheduled twice", entry, step)
		}
		schedule[step] = strings.TrimSpace(name)
	}
	return schedule, nil
}

// printSnapshots writes a metrics table with every Nth row and always the
// last one.
func printSnapshots(w io.Writer, snaps []metrics.Snapshot, every int) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No steps executed.")
		return
	}
	fmt.Fprintf(w, "%6s  %-14s  %9s  %7s  %10s  %7s  %5s  %11s\n",
		"STEP", "PHASE", "COHERENCE", "ENTROPY", "COMPLEXITY", "ENERGY", "BONDS", "CONNECTIONS")
	for i, s := range snaps {
		if i%every != 0 && i != len(snaps)-1 {
			continue
		}
		fmt.Fprintf(w, "%6d  %-14s  %9.4f  %7.4f  %10.4f  %7.4f  %5d  %11d\n",
			s.Step, s.Phase, s.Coherence, s.Entropy, s.Complexity, s.Energy, s.ResonanceBonds, s.ConnectionCount)
	}
}
