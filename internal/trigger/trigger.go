// Package trigger schedules pipeline runs. In "triggered" mode it runs an
// Asynq server that executes one pipeline run per received task; in
// "run-once" mode it invokes RunFunc exactly once and returns.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/docpipeline/internal/logging"
)

const TaskTypeRunPipeline = "run-pipeline"

// RunFunc executes one full pass of the configured pipeline Runner.
type RunFunc func(ctx context.Context) error

// Scheduler wraps an Asynq server/client pair dedicated to triggering
// pipeline runs. A received task's payload is empty; receipt alone is the
// signal to run.
type Scheduler struct {
	redisOpt asynq.RedisConnOpt
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	periodic *asynq.PeriodicTaskManager
	run      RunFunc
	log      *logging.Logger
}

// NewScheduler parses redisURL and wires a single-task-type Asynq server
// bounded to concurrency concurrent runs (normally 1: overlapping full
// pipeline runs would duplicate work the claim/lease mechanism already
// serializes).
func NewScheduler(redisURL string, concurrency int, run RunFunc, log *logging.Logger) (*Scheduler, error) {
	if log == nil {
		log = logging.NewNop()
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("trigger: parse redis url: %w", err)
	}

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"pipeline-runs": 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(5*(1<<uint(n))) * time.Second
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("pipeline run task failed", "error", err)
		}),
	})

	s := &Scheduler{redisOpt: redisOpt, client: client, server: server, mux: asynq.NewServeMux(), run: run, log: log}
	s.mux.HandleFunc(TaskTypeRunPipeline, s.handleRun)
	return s, nil
}

func (s *Scheduler) handleRun(ctx context.Context, task *asynq.Task) error {
	start := time.Now()
	s.log.Info("pipeline run starting")
	if err := s.run(ctx); err != nil {
		s.log.Error("pipeline run failed", "error", err, "elapsed", time.Since(start))
		return err
	}
	s.log.Info("pipeline run completed", "elapsed", time.Since(start))
	return nil
}

// Enqueue submits one run-pipeline task; used by an external caller (a cron
// trigger, an HTTP hook) to kick off a run in "triggered" mode.
func (s *Scheduler) Enqueue(ctx context.Context) error {
	_, err := s.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeRunPipeline, nil), asynq.Queue("pipeline-runs"))
	if err != nil {
		return fmt.Errorf("trigger: enqueue run: %w", err)
	}
	return nil
}

// cronConfigProvider hands asynq.PeriodicTaskManager a single fixed
// periodic task: enqueue TaskTypeRunPipeline on cronSpec.
type cronConfigProvider struct {
	cronSpec string
}

func (p *cronConfigProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	return []*asynq.PeriodicTaskConfig{
		{
			Cronspec: p.cronSpec,
			Task:     asynq.NewTask(TaskTypeRunPipeline, nil),
			Opts:     []asynq.Option{asynq.Queue("pipeline-runs")},
		},
	}, nil
}

// Start runs the Asynq server in the background until Stop is called; ctx is
// not used to stop it. When
// cronSpec is non-empty it also starts an asynq.PeriodicTaskManager (backed
// by robfig/cron/v3 inside asynq) that enqueues a run-pipeline task on that
// schedule, on top of any on-demand Enqueue calls.
func (s *Scheduler) Start(ctx context.Context, cronSpec string) error {
	go func() {
		if err := s.server.Run(s.mux); err != nil {
			s.log.Error("trigger server stopped", "error", err)
		}
	}()

	if cronSpec == "" {
		return nil
	}

	mgr, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               s.redisOpt,
		PeriodicTaskConfigProvider: &cronConfigProvider{cronSpec: cronSpec},
		SyncInterval:               time.Minute,
	})
	if err != nil {
		return fmt.Errorf("trigger: start periodic task manager: %w", err)
	}
	s.periodic = mgr
	go func() {
		if err := mgr.Run(); err != nil {
			s.log.Error("periodic task manager stopped", "error", err)
		}
	}()
	s.log.Info("periodic trigger scheduled", "cron_spec", cronSpec)
	return nil
}

// Stop shuts the server and any periodic task manager down gracefully, then
// closes the client.
func (s *Scheduler) Stop() error {
	if s.periodic != nil {
		s.periodic.Shutdown()
	}
	s.server.Shutdown()
	return s.client.Close()
}

// RunOnce invokes run exactly once, for WorkerMode "run-once".
func RunOnce(ctx context.Context, run RunFunc) error {
	return run(ctx)
}
