package forecast

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/intentsim/bloomcascade/internal/metrics"
)

// Trainer fits several models concurrently.
type Trainer struct {
	cfg     Config
	workers int
}

// NewTrainer returns a trainer. workers <= 0 means one goroutine per metric.
func NewTrainer(cfg Config, workers int) *Trainer {
	return &Trainer{cfg: cfg, workers: workers}
}

// Train fits one model per metric. With no metrics given it trains every
// tracked metric plus focus activation. The history slice is copied before
// training starts.
func (t *Trainer) Train(ctx context.Context, history []metrics.Snapshot, ms ...metrics.Metric) (map[metrics.Metric]*Model, error) {
	if len(ms) == 0 {
		ms = append(slices.Clone(Tracked), metrics.FocusActivation)
	}
	for _, m := range ms {
		if !Trainable(m) {
			return nil, fmt.Errorf("%w: %q", ErrUntrainable, m)
		}
	}
	history = slices.Clone(history)

	models := make([]*Model, len(ms))
	g, gctx := errgroup.WithContext(ctx)
	if t.workers > 0 {
		g.SetLimit(t.workers)
	}
	for i, m := range ms {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			model, err := Train(t.cfg, history, m)
			if err != nil {
				return err
			}
			models[i] = model
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("train forecast models: %w", err)
	}

	out := make(map[metrics.Metric]*Model, len(ms))
	for i, m := range ms {
		out[m] = models[i]
	}
	return out, nil
}

// TrainAsync starts Train in its own goroutine. Cancelling ctx stops the
// job; its error then wraps context.Canceled.
func (t *Trainer) TrainAsync(ctx context.Context, history []metrics.Snapshot, ms ...metrics.Metric) *Job {
	history = slices.Clone(history)
	j := &Job{done: make(chan struct{})}
	go func() {
		defer close(j.done)
		models, err := t.Train(ctx, history, ms...)
		j.mu.Lock()
		j.models, j.err = models, err
		j.mu.Unlock()
	}()
	return j
}

// Job is an in-flight training run.
type Job struct {
	done   chan struct{}
	mu     sync.Mutex
	models map[metrics.Metric]*Model
	err    error
}

// Done is closed when training finishes.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (map[metrics.Metric]*Model, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a finished job, or nil and nil if it is
// still running.
func (j *Job) Result() (map[metrics.Metric]*Model, error) {
	select {
	case <-j.done:
	default:
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.models, j.err
}
