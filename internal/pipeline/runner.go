package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docpipeline/internal/logging"
)

// Strategy selects how the Runner schedules stages relative to each other.
type Strategy int

const (
	// Sequential runs stage i to exhaustion (HasMore == false) before
	// starting stage i+1.
	Sequential Strategy = iota
	// InterleavedDeferred lets deferred stages run concurrently with the
	// next non-deferred stage, via errgroup; non-deferred stages never run
	// concurrently with each other within one Runner.
	InterleavedDeferred
)

// Options configures one Run invocation.
type Options struct {
	ChunkSize int
	// Limit caps the total number of successful items across the whole
	// run; 0 means unbounded.
	Limit    uint64
	Strategy Strategy
	Events   chan<- Event
}

// Runner executes a fixed, ordered list of stages against one Options set.
type Runner struct {
	stages []Stage
	log    *logging.Logger
}

func NewRunner(log *logging.Logger, stages ...Stage) *Runner {
	if log == nil {
		log = logging.NewNop()
	}
	return &Runner{stages: stages, log: log}
}

// Run executes all stages per opts.Strategy. It returns only on a
// stage-level setup error or after every stage has been exhausted;
// per-item failures never abort the run.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	switch opts.Strategy {
	case InterleavedDeferred:
		return r.runInterleaved(ctx, opts)
	default:
		return r.runSequential(ctx, opts)
	}
}

func (r *Runner) runSequential(ctx context.Context, opts Options) error {
	for _, stage := range r.stages {
		if err := r.drainStage(ctx, stage, opts); err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
	}
	return nil
}

// runInterleaved pairs each deferred stage with the next non-deferred stage
// and runs the pair concurrently via errgroup; remaining stages (if the
// lists are uneven in length) fall back to sequential execution.
func (r *Runner) runInterleaved(ctx context.Context, opts Options) error {
	var deferredStages, directStages []Stage
	for _, s := range r.stages {
		if s.IsDeferred() {
			deferredStages = append(deferredStages, s)
		} else {
			directStages = append(directStages, s)
		}
	}

	pairs := len(deferredStages)
	if len(directStages) < pairs {
		pairs = len(directStages)
	}

	for i := 0; i < pairs; i++ {
		deferred, direct := deferredStages[i], directStages[i]
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return r.drainStage(gctx, deferred, opts) })
		g.Go(func() error { return r.drainStage(gctx, direct, opts) })
		if err := g.Wait(); err != nil {
			return fmt.Errorf("interleaved stages %s/%s: %w", deferred.Name(), direct.Name(), err)
		}
	}

	for _, s := range append(append([]Stage{}, deferredStages[pairs:]...), directStages[pairs:]...) {
		if err := r.drainStage(ctx, s, opts); err != nil {
			return fmt.Errorf("stage %s: %w", s.Name(), err)
		}
	}
	return nil
}

// drainStage repeatedly calls RunChunk until HasMore is false or the run's
// item budget is exhausted, emitting StageStarted before the first chunk and
// StageCompleted after the last.
func (r *Runner) drainStage(ctx context.Context, stage Stage, opts Options) error {
	total, err := stage.Count(ctx)
	if err != nil {
		r.log.Warn("stage count failed, proceeding without a total", "stage", stage.Name(), "error", err)
	}
	emit(ctx, opts.Events, StageStarted(stage.Name(), total))

	var succeeded, failed, skipped uint64
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50
	}

	for {
		if ctx.Err() != nil {
			break
		}
		var remaining uint64
		if opts.Limit > 0 {
			if succeeded >= opts.Limit {
				break
			}
			remaining = opts.Limit - succeeded
		}
		result, err := stage.RunChunk(ctx, chunkSize, remaining, opts.Events)
		succeeded += result.Succeeded
		failed += result.Failed
		skipped += result.Skipped
		if err != nil {
			emit(ctx, opts.Events, StageCompleted(stage.Name(), succeeded, failed, skipped))
			return err
		}
		if !result.HasMore {
			break
		}
	}

	emit(ctx, opts.Events, StageCompleted(stage.Name(), succeeded, failed, skipped))
	return nil
}
