package mcp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/intentsim/bloomcascade/internal/analysis"
	"github.com/intentsim/bloomcascade/internal/constants"
	"github.com/intentsim/bloomcascade/internal/forecast"
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/sanitize"
	"github.com/intentsim/bloomcascade/internal/simulation"
)

// ErrNoStore is returned by the persistence tools when the server was
// started without a run store.
var ErrNoStore = errors.New("no run store configured")

const (
	statusURI  = "bloom://status"
	timeFormat = time.RFC3339
)

// registerTools registers all simulation MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_status",
		Description: "Report the engine's current step, phase, critical period and population size",
	}, s.handleStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_step",
		Description: "Advance the simulation by a number of steps in the current phase and return their metrics",
	}, s.handleStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_run",
		Description: "Run a number of steps with an optional bloom cascade or explicit phase schedule",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_trigger",
		Description: "Enter the bloom phase immediately with the given strength",
	}, s.handleTrigger)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_transition",
		Description: "Switch to a developmental phase, applying its entry effect",
	}, s.handleTransition)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_train_forecast",
		Description: "Train forecast models on the recorded history for one metric or all of them",
	}, s.handleTrainForecast)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_forecast",
		Description: "Predict future values of a metric with its trained model. Metrics: " + strings.Join(forecastableMetrics(), ", "),
	}, s.handleForecast)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_classify",
		Description: "Match the recorded trajectory against the developmental profiles",
	}, s.handleClassify)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_anomalies",
		Description: "Detect developmental anomalies such as excessive pruning or declining coherence",
	}, s.handleAnomalies)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_summary",
		Description: "Summarize the run: peak and final complexity, retention, efficiency and stability",
	}, s.handleSummary)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_save",
		Description: "Save the engine state and metrics history to the run store",
	}, s.handleSave)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_load",
		Description: "Replace the engine with a run loaded from the run store",
	}, s.handleLoad)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "bloom_runs",
		Description: "List the runs in the run store, newest first",
	}, s.handleRuns)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         statusURI,
		Name:        "bloom-status",
		Description: "Current phase, latest metrics and trajectory classification of the running simulation.",
		MIMEType:    "text/markdown",
	}, s.handleStatusResource)
}

// handleStatusResource renders the engine status as markdown.
func (s *Server) handleStatusResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status()
	var sb strings.Builder
	sb.WriteString("# Simulation Status\n\n")
	fmt.Fprintf(&sb, "- step: %d\n- phase: %s\n- critical period: %.3f\n", st.Step, st.Phase, st.CriticalPeriod)
	fmt.Fprintf(&sb, "- agents: %d\n- connections: %d\n", st.Agents, st.Connections)
	if st.RunID != "" {
		fmt.Fprintf(&sb, "- run: %s\n", st.RunID)
	}

	history := s.engine.History()
	if n := len(history); n > 0 {
		last := history[n-1]
		sb.WriteString("\n## Latest Metrics\n\n")
		fmt.Fprintf(&sb, "- coherence: %.3f\n- entropy: %.3f\n- complexity: %.3f\n", last.Coherence, last.Entropy, last.Complexity)
		fmt.Fprintf(&sb, "- energy: %.3f\n- slow/fast coupling: %.3f\n", last.Energy, last.SlowFastCoupling)
	}

	c := s.engine.ClassifyTrajectory()
	sb.WriteString("\n## Trajectory\n\n")
	if c.Status == analysis.ClassScored {
		fmt.Fprintf(&sb, "Profile %s (confidence %.2f).\n", c.Profile, c.Confidence)
	} else {
		sb.WriteString("Not enough history to classify.\n")
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      statusURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// status reports the engine position. The caller holds mu.
func (s *Server) status() StatusOutput {
	return StatusOutput{
		Step:           s.engine.CurrentStep(),
		Phase:          s.engine.Phase().String(),
		CriticalPeriod: s.engine.CriticalPeriod(),
		Agents:         len(s.engine.Agents()),
		Connections:    len(s.engine.Connections()),
		RunID:          s.runID,
	}
}

// handleStatus implements the bloom_status tool.
func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_status", start, retErr, nil)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, s.status(), nil
}

// handleStep implements the bloom_step tool.
func (s *Server) handleStep(ctx context.Context, req *sdk.CallToolRequest, args StepInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_step", start, retErr, sanitizeToolParams(map[string]any{"steps": args.Steps}))
	}()

	steps := args.Steps
	if steps == 0 {
		steps = 1
	}
	if err := checkSteps(steps); err != nil {
		return nil, StepOutput{}, err
	}
	if err := s.toolLimiters.Charge("bloom_step", steps); err != nil {
		return nil, StepOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, steps, nil)
}

// handleRun implements the bloom_run tool.
func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]any{"steps": args.Steps}
		if len(args.Blooms) > 0 {
			params["blooms"] = args.Blooms
		}
		if len(args.Schedule) > 0 {
			params["schedule"] = true
		}
		s.auditTool("bloom_run", start, retErr, sanitizeToolParams(params))
	}()

	if err := checkSteps(args.Steps); err != nil {
		return nil, StepOutput{}, err
	}
	if err := s.toolLimiters.Charge("bloom_run", args.Steps); err != nil {
		return nil, StepOutput{}, err
	}
	if len(args.Blooms) > 0 && len(args.Schedule) > 0 {
		return nil, StepOutput{}, errors.New("blooms and schedule are mutually exclusive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var schedule phase.Schedule
	switch {
	case len(args.Blooms) > 0:
		for _, b := range args.Blooms {
			if b < 0 {
				return nil, StepOutput{}, fmt.Errorf("bloom step must be non-negative, got %d", b)
			}
		}
		schedule = phase.CascadeSchedule(args.Steps, args.Blooms, s.engine.Config().CascadeDelay)
	case len(args.Schedule) > 0:
		schedule = make(phase.Schedule, len(args.Schedule))
		for _, entry := range args.Schedule {
			p, err := phase.ParsePhase(entry.Phase)
			if err != nil {
				return nil, StepOutput{}, fmt.Errorf("schedule step %d: %w", entry.Step, err)
			}
			schedule[entry.Step] = p
		}
	}
	return s.run(ctx, args.Steps, schedule)
}

// run executes steps under mu. On error the message reports how many
// steps completed.
func (s *Server) run(ctx context.Context, steps int, schedule phase.Schedule) (*sdk.CallToolResult, StepOutput, error) {
	snaps, err := s.engine.Run(ctx, steps, schedule)
	if err != nil {
		return nil, StepOutput{}, fmt.Errorf("run stopped after %d of %d steps: %w", len(snaps), steps, err)
	}
	return nil, StepOutput{
		Snapshots: snapshotOutputs(snaps),
		Status:    s.status(),
	}, nil
}

func checkSteps(steps int) error {
	if steps < 0 || steps > constants.MaxSteps {
		return fmt.Errorf("steps must be between 0 and %d, got %d", constants.MaxSteps, steps)
	}
	return nil
}

// handleTrigger implements the bloom_trigger tool.
func (s *Server) handleTrigger(ctx context.Context, req *sdk.CallToolRequest, args TriggerInput) (_ *sdk.CallToolResult, _ TransitionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_trigger", start, retErr, sanitizeToolParams(map[string]any{"strength": args.Strength}))
	}()

	if err := s.toolLimiters.Charge("bloom_trigger", 1); err != nil {
		return nil, TransitionOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.engine.Phase().String()
	if err := s.engine.TriggerBloom(args.Strength); err != nil {
		return nil, TransitionOutput{}, err
	}
	return nil, TransitionOutput{Previous: previous, Status: s.status()}, nil
}

// handleTransition implements the bloom_transition tool.
func (s *Server) handleTransition(ctx context.Context, req *sdk.CallToolRequest, args TransitionInput) (_ *sdk.CallToolResult, _ TransitionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_transition", start, retErr, sanitizeToolParams(map[string]any{"phase": args.Phase}))
	}()

	if err := s.toolLimiters.Charge("bloom_transition", 1); err != nil {
		return nil, TransitionOutput{}, err
	}
	p, err := phase.ParsePhase(args.Phase)
	if err != nil {
		return nil, TransitionOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.engine.Phase().String()
	if err := s.engine.TransitionTo(p); err != nil {
		return nil, TransitionOutput{}, err
	}
	return nil, TransitionOutput{Previous: previous, Status: s.status()}, nil
}

// handleTrainForecast implements the bloom_train_forecast tool. Without a
// metric every forecastable metric is trained on a background job that
// the call waits for.
func (s *Server) handleTrainForecast(ctx context.Context, req *sdk.CallToolRequest, args TrainInput) (_ *sdk.CallToolResult, _ TrainOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_train_forecast", start, retErr, sanitizeToolParams(map[string]any{"metric": args.Metric}))
	}()

	var m metrics.Metric
	cost := len(forecastableMetrics())
	if args.Metric != "" {
		var err error
		if m, err = metrics.ParseMetric(args.Metric); err != nil {
			return nil, TrainOutput{}, err
		}
		cost = 1
	}
	if err := s.toolLimiters.Charge("bloom_train_forecast", cost); err != nil {
		return nil, TrainOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := map[string]string{}
	if m != "" {
		status, err := s.engine.TrainForecast(ctx, m)
		if err != nil {
			return nil, TrainOutput{}, err
		}
		statuses[string(m)] = string(status)
		return nil, TrainOutput{Statuses: statuses}, nil
	}

	models, err := s.engine.TrainForecastAsync(ctx).Wait(ctx)
	if err != nil {
		return nil, TrainOutput{}, fmt.Errorf("training failed: %w", err)
	}
	for m, model := range models {
		statuses[string(m)] = string(model.Status)
	}
	return nil, TrainOutput{Statuses: statuses}, nil
}

// handleForecast implements the bloom_forecast tool.
func (s *Server) handleForecast(ctx context.Context, req *sdk.CallToolRequest, args ForecastInput) (_ *sdk.CallToolResult, _ ForecastOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_forecast", start, retErr, sanitizeToolParams(map[string]any{
			"metric":  args.Metric,
			"horizon": args.Horizon,
		}))
	}()

	if err := s.toolLimiters.Charge("bloom_forecast", 1); err != nil {
		return nil, ForecastOutput{}, err
	}
	m, err := metrics.ParseMetric(args.Metric)
	if err != nil {
		return nil, ForecastOutput{}, err
	}
	horizon := args.Horizon
	if horizon == 0 {
		horizon = constants.DefaultHorizon
	}
	if horizon < 0 || horizon > constants.MaxHorizon {
		return nil, ForecastOutput{}, fmt.Errorf("horizon must be between 1 and %d, got %d", constants.MaxHorizon, horizon)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.engine.Forecast(m, horizon)
	if err != nil {
		return nil, ForecastOutput{}, err
	}
	values := result.Values
	if values == nil {
		values = []float64{}
	}
	return nil, ForecastOutput{
		Metric: string(result.Metric),
		Status: string(result.Status),
		Values: values,
	}, nil
}

// handleClassify implements the bloom_classify tool.
func (s *Server) handleClassify(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ ClassifyOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_classify", start, retErr, nil)
	}()

	if err := s.toolLimiters.Charge("bloom_classify", 1); err != nil {
		return nil, ClassifyOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.engine.ClassifyTrajectory()
	return nil, ClassifyOutput{
		Status:     string(c.Status),
		Profile:    c.Profile,
		Confidence: c.Confidence,
		Scores:     c.Scores,
	}, nil
}

// handleAnomalies implements the bloom_anomalies tool.
func (s *Server) handleAnomalies(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ AnomaliesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_anomalies", start, retErr, nil)
	}()

	if err := s.toolLimiters.Charge("bloom_anomalies", 1); err != nil {
		return nil, AnomaliesOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.engine.DetectAnomalies()
	out := AnomaliesOutput{Anomalies: maps.Clone(found), Count: len(found)}
	if out.Anomalies == nil {
		out.Anomalies = map[string]analysis.Anomaly{}
	}
	return nil, out, nil
}

// handleSummary implements the bloom_summary tool.
func (s *Server) handleSummary(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ SummaryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_summary", start, retErr, nil)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.engine.Summary()
	if !ok {
		return nil, SummaryOutput{}, nil
	}
	return nil, SummaryOutput{Available: true, Summary: &summary}, nil
}

// handleSave implements the bloom_save tool. A name starts a new run;
// without one the current run is updated, or a run named after the seed
// is created.
func (s *Server) handleSave(ctx context.Context, req *sdk.CallToolRequest, args SaveInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_save", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name}))
	}()

	if err := s.toolLimiters.Charge("bloom_save", 1); err != nil {
		return nil, RunOutput{}, err
	}
	if s.runs == nil {
		return nil, RunOutput{}, ErrNoStore
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.engine.State()
	if err != nil {
		return nil, RunOutput{}, err
	}

	if args.Name == "" && s.runID != "" {
		run, err := s.runs.Update(ctx, s.runID, state)
		if err != nil {
			return nil, RunOutput{}, fmt.Errorf("failed to update run: %w", err)
		}
		return nil, runOutput(run), nil
	}

	name := sanitize.RunName(args.Name)
	if name == "" {
		name = fmt.Sprintf("seed-%d", s.engine.Config().Seed)
	}
	run, err := s.runs.Save(ctx, name, state)
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("failed to save run: %w", err)
	}
	s.runID = run.ID
	s.logger.Info("run saved", "id", run.ID, "name", run.Name, "step", run.Step)
	return nil, runOutput(run), nil
}

// handleLoad implements the bloom_load tool.
func (s *Server) handleLoad(ctx context.Context, req *sdk.CallToolRequest, args LoadInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_load", start, retErr, sanitizeToolParams(map[string]any{"run": args.Run}))
	}()

	if err := s.toolLimiters.Charge("bloom_load", 1); err != nil {
		return nil, RunOutput{}, err
	}
	if s.runs == nil {
		return nil, RunOutput{}, ErrNoStore
	}

	run, state, err := s.runs.Load(ctx, args.Run)
	if err != nil {
		return nil, RunOutput{}, err
	}
	engine, err := simulation.Restore(state)
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
	}
	engine.SetLogger(s.logger, s.events)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
	s.runID = run.ID
	s.logger.Info("run loaded", "id", run.ID, "name", run.Name, "step", run.Step)
	return nil, runOutput(run), nil
}

// handleRuns implements the bloom_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("bloom_runs", start, retErr, nil)
	}()

	if err := s.toolLimiters.Charge("bloom_runs", 1); err != nil {
		return nil, RunsOutput{}, err
	}
	if s.runs == nil {
		return nil, RunsOutput{}, ErrNoStore
	}

	runs, err := s.runs.List(ctx)
	if err != nil {
		return nil, RunsOutput{}, err
	}
	out := RunsOutput{Runs: make([]RunOutput, len(runs)), Count: len(runs)}
	for i, r := range runs {
		out.Runs[i] = runOutput(r)
	}
	return nil, out, nil
}

// forecastableMetrics lists the metrics bloom_forecast accepts.
func forecastableMetrics() []string {
	var names []string
	for _, m := range metrics.All() {
		if forecast.Trainable(m) {
			names = append(names, string(m))
		}
	}
	slices.Sort(names)
	return names
}
