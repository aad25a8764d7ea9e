package simulation

import (
	"context"
	"fmt"
	"maps"

	"github.com/intentsim/bloomcascade/internal/analysis"
	"github.com/intentsim/bloomcascade/internal/forecast"
	"github.com/intentsim/bloomcascade/internal/metrics"
)

// TrainForecast fits the forecast model for m on the current history and
// keeps it for Forecast. Too little history is reported through the
// returned status, not an error.
func (e *Engine) TrainForecast(ctx context.Context, m metrics.Metric) (forecast.Status, error) {
	models, err := forecast.NewTrainer(e.cfg.Forecast, e.cfg.Workers).Train(ctx, e.history.Snapshots(), m)
	if err != nil {
		return "", err
	}
	e.adopt(models)
	return models[m].Status, nil
}

// TrainForecastAsync trains every forecastable metric on a copy of the
// current history without blocking stepping. The models are adopted by the
// next Forecast call after the job finishes; a newer job replaces an
// unfinished one.
func (e *Engine) TrainForecastAsync(ctx context.Context) *forecast.Job {
	job := forecast.NewTrainer(e.cfg.Forecast, e.cfg.Workers).TrainAsync(ctx, e.history.Snapshots())
	e.pending = job
	return job
}

// collect adopts the models of a finished async job.
func (e *Engine) collect() {
	if e.pending == nil {
		return
	}
	select {
	case <-e.pending.Done():
	default:
		return
	}
	models, err := e.pending.Result()
	e.pending = nil
	if err != nil {
		e.logger.Warn("forecast training failed", "error", err)
		return
	}
	e.adopt(models)
}

func (e *Engine) adopt(models map[metrics.Metric]*forecast.Model) {
	maps.Copy(e.models, models)
	for m, model := range models {
		e.logger.Debug("forecast model trained", "metric", m, "status", model.Status, "mse", model.MSE)
		e.events.Log("forecast_trained", map[string]any{
			"step":    e.step,
			"metric":  string(m),
			"status":  string(model.Status),
			"samples": model.Samples,
			"mse":     model.MSE,
		})
	}
}

// Forecast predicts horizon future values of m from the current history.
// Without a trained model the result has status insufficient_data and no
// values.
func (e *Engine) Forecast(m metrics.Metric, horizon int) (forecast.Result, error) {
	if !forecast.Trainable(m) {
		return forecast.Result{}, fmt.Errorf("%w: %q", forecast.ErrUntrainable, m)
	}
	if horizon < 0 {
		return forecast.Result{}, fmt.Errorf("horizon must be non-negative, got %d", horizon)
	}
	e.collect()
	model, ok := e.models[m]
	if !ok {
		return forecast.Result{Metric: m, Status: forecast.StatusInsufficientData, Values: []float64{}}, nil
	}
	return model.Forecast(e.history.Snapshots(), horizon), nil
}

// ClassifyTrajectory scores the history against the built-in profiles.
func (e *Engine) ClassifyTrajectory() analysis.Classification {
	return analysis.Classify(e.history.Snapshots(), analysis.Library())
}

// Summary returns whole-run statistics, or false with too little history.
func (e *Engine) Summary() (analysis.Summary, bool) {
	return analysis.Summarize(e.history.Snapshots())
}

// DetectAnomalies flags developmental anomalies in the history.
func (e *Engine) DetectAnomalies() map[string]analysis.Anomaly {
	return analysis.DetectAnomalies(e.history.Snapshots(), e.step)
}
