package scrape

import (
	"context"

	"github.com/kiranshivaraju/subharvest/internal/jobs"
	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// Service admits extraction jobs: it registers them and dispatches their
// bodies onto the worker pool.
type Service struct {
	registry *jobs.Registry
	pool     *jobs.Pool
	runner   *Runner
}

// NewService creates the job admission service.
func NewService(registry *jobs.Registry, pool *jobs.Pool, runner *Runner) *Service {
	return &Service{registry: registry, pool: pool, runner: runner}
}

// Start registers a queued job and hands it to the pool. When the queue is
// full the registry entry is rolled back so no job is left queued forever.
func (s *Service) Start(params jobs.CreateParams) (models.Job, error) {
	job := s.registry.Create(params)

	err := s.pool.Submit(func(ctx context.Context) {
		s.runner.Run(ctx, job.ID)
	})
	if err != nil {
		s.registry.Delete(job.ID)
		return models.Job{}, err
	}
	return job, nil
}
