// Package mcp provides an MCP (Model Context Protocol) server for bloomcascade.
package mcp

import (
	"github.com/intentsim/bloomcascade/internal/analysis"
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/store"
)

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// StatusOutput describes the engine's current position.
type StatusOutput struct {
	Step           int     `json:"step" jsonschema:"number of steps executed so far"`
	Phase          string  `json:"phase" jsonschema:"current developmental phase"`
	CriticalPeriod float64 `json:"critical_period" jsonschema:"remaining plasticity in [0,1]"`
	Agents         int     `json:"agents" jsonschema:"number of agents"`
	Connections    int     `json:"connections" jsonschema:"number of live connections"`
	RunID          string  `json:"run_id,omitempty" jsonschema:"stored run the engine was saved as or loaded from"`
}

// SnapshotOutput is one recorded step of metrics.
type SnapshotOutput struct {
	Step             int     `json:"step"`
	Phase            string  `json:"phase"`
	Coherence        float64 `json:"coherence"`
	Entropy          float64 `json:"entropy"`
	Complexity       float64 `json:"complexity"`
	ResonanceBonds   int     `json:"resonance_bonds"`
	MemoryInversions int     `json:"memory_inversions"`
	Energy           float64 `json:"energy"`
	FocusActivation  float64 `json:"focus_activation"`
	SlowFastCoupling float64 `json:"slow_fast_coupling"`
	PruningRate      float64 `json:"pruning_rate"`
	CriticalPeriod   float64 `json:"critical_period"`
	ConnectionCount  int     `json:"connection_count"`
}

func snapshotOutput(s metrics.Snapshot) SnapshotOutput {
	return SnapshotOutput{
		Step:             s.Step,
		Phase:            s.Phase.String(),
		Coherence:        s.Coherence,
		Entropy:          s.Entropy,
		Complexity:       s.Complexity,
		ResonanceBonds:   s.ResonanceBonds,
		MemoryInversions: s.MemoryInversions,
		Energy:           s.Energy,
		FocusActivation:  s.FocusActivation,
		SlowFastCoupling: s.SlowFastCoupling,
		PruningRate:      s.PruningRate,
		CriticalPeriod:   s.CriticalPeriod,
		ConnectionCount:  s.ConnectionCount,
	}
}

func snapshotOutputs(snaps []metrics.Snapshot) []SnapshotOutput {
	out := make([]SnapshotOutput, len(snaps))
	for i, s := range snaps {
		out[i] = snapshotOutput(s)
	}
	return out
}

// StepInput defines the input for the bloom_step tool.
type StepInput struct {
	Steps int `json:"steps,omitempty" jsonschema:"number of steps to execute (default 1)"`
}

// StepOutput defines the output for the bloom_step and bloom_run tools.
type StepOutput struct {
	Snapshots []SnapshotOutput `json:"snapshots" jsonschema:"one snapshot per executed step"`
	Status    StatusOutput     `json:"status" jsonschema:"engine position after the steps"`
}

// ScheduleEntry enters Phase before the run's Step-th step.
type ScheduleEntry struct {
	Step  int    `json:"step" jsonschema:"run-relative step, 0 is the first step of the run"`
	Phase string `json:"phase" jsonschema:"initialization, bloom, pruning, resonance or stable"`
}

// RunInput defines the input for the bloom_run tool.
type RunInput struct {
	Steps    int             `json:"steps" jsonschema:"number of steps to execute"`
	Blooms   []int           `json:"blooms,omitempty" jsonschema:"run-relative bloom steps; builds a bloom, pruning, resonance cascade"`
	Schedule []ScheduleEntry `json:"schedule,omitempty" jsonschema:"explicit phase schedule; exclusive with blooms"`
}

// TriggerInput defines the input for the bloom_trigger tool.
type TriggerInput struct {
	Strength float64 `json:"strength" jsonschema:"bloom strength in [0,1]"`
}

// TransitionInput defines the input for the bloom_transition tool.
type TransitionInput struct {
	Phase string `json:"phase" jsonschema:"initialization, bloom, pruning, resonance or stable"`
}

// TransitionOutput defines the output for the bloom_trigger and
// bloom_transition tools.
type TransitionOutput struct {
	Previous string       `json:"previous" jsonschema:"phase before the call"`
	Status   StatusOutput `json:"status"`
}

// TrainInput defines the input for the bloom_train_forecast tool.
type TrainInput struct {
	Metric string `json:"metric,omitempty" jsonschema:"metric to train; empty trains every forecastable metric"`
}

// TrainOutput defines the output for the bloom_train_forecast tool.
type TrainOutput struct {
	Statuses map[string]string `json:"statuses" jsonschema:"training status per metric"`
}

// ForecastInput defines the input for the bloom_forecast tool.
type ForecastInput struct {
	Metric  string `json:"metric" jsonschema:"metric to forecast"`
	Horizon int    `json:"horizon,omitempty" jsonschema:"number of future steps (default 10)"`
}

// ForecastOutput defines the output for the bloom_forecast tool.
type ForecastOutput struct {
	Metric string    `json:"metric"`
	Status string    `json:"status" jsonschema:"trained or insufficient_data"`
	Values []float64 `json:"values" jsonschema:"predicted values, empty without a trained model"`
}

// ClassifyOutput defines the output for the bloom_classify tool.
type ClassifyOutput struct {
	Status     string             `json:"status" jsonschema:"scored or insufficient_data"`
	Profile    string             `json:"profile" jsonschema:"best matching profile or unclassified"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores,omitempty" jsonschema:"score per profile"`
}

// AnomaliesOutput defines the output for the bloom_anomalies tool.
type AnomaliesOutput struct {
	Anomalies map[string]analysis.Anomaly `json:"anomalies" jsonschema:"detected anomalies keyed by kind"`
	Count     int                         `json:"count"`
}

// SummaryOutput defines the output for the bloom_summary tool.
type SummaryOutput struct {
	Available bool              `json:"available" jsonschema:"false while the history is too short"`
	Summary   *analysis.Summary `json:"summary,omitempty"`
}

// SaveInput defines the input for the bloom_save tool.
type SaveInput struct {
	Name string `json:"name,omitempty" jsonschema:"name for a new run; empty updates the current run"`
}

// LoadInput defines the input for the bloom_load tool.
type LoadInput struct {
	Run string `json:"run" jsonschema:"run id or name"`
}

// RunOutput describes a stored run.
type RunOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Step        int    `json:"step"`
	Phase       string `json:"phase"`
	Agents      int    `json:"agents"`
	Connections int    `json:"connections"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func runOutput(r store.Run) RunOutput {
	return RunOutput{
		ID:          r.ID,
		Name:        r.Name,
		Step:        r.Step,
		Phase:       r.Phase.String(),
		Agents:      r.Agents,
		Connections: r.Connections,
		CreatedAt:   r.CreatedAt.Format(timeFormat),
		UpdatedAt:   r.UpdatedAt.Format(timeFormat),
	}
}

// RunsOutput defines the output for the bloom_runs tool.
type RunsOutput struct {
	Runs  []RunOutput `json:"runs"`
	Count int         `json:"count"`
}
