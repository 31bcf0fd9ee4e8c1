package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/subharvest/internal/jobs"
	"github.com/kiranshivaraju/subharvest/internal/sink"
	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// Runner executes one extraction job end to end: enumerate ids, hydrate
// each, write rows, and report progress into the registry.
type Runner struct {
	engine    *Engine
	enricher  *Enricher
	registry  *jobs.Registry
	outputDir string
}

// NewRunner creates a runner writing artifacts under outputDir.
func NewRunner(engine *Engine, enricher *Enricher, registry *jobs.Registry, outputDir string) *Runner {
	return &Runner{
		engine:    engine,
		enricher:  enricher,
		registry:  registry,
		outputDir: outputDir,
	}
}

// Run is the job body handed to a worker. It derives the job's context from
// the registry so the retention sweep can cancel in-flight work.
func (r *Runner) Run(parent context.Context, id uuid.UUID) {
	job, ok := r.registry.Get(id)
	if !ok {
		return
	}

	ctx := r.registry.Begin(parent, id)
	defer r.registry.Finish(id)

	r.registry.Update(id, func(j *models.Job) {
		j.State = models.JobStateRunning
		j.Message = "Starting..."
	})
	slog.Info("job started",
		"job_id", id,
		"subreddit", job.Subreddit,
		"range_start", job.RangeStart,
		"range_end", job.RangeEnd,
		"limit", job.Limit,
	)

	if err := r.run(ctx, job); err != nil {
		if ctx.Err() != nil {
			slog.Info("job cancelled", "job_id", id)
			return
		}
		slog.Error("job failed", "job_id", id, "error", err)
		r.registry.Update(id, func(j *models.Job) {
			j.State = models.JobStateError
			j.Message = fmt.Sprintf("Failed: %v", err)
		})
	}
}

func (r *Runner) run(ctx context.Context, job models.Job) error {
	window := TimeWindow{Start: job.RangeStart, End: job.RangeEnd}
	if window.End.Before(window.Start) {
		return fmt.Errorf("%w: end before start", ErrInvalidWindow)
	}

	path := filepath.Join(r.outputDir, fmt.Sprintf("%s_%s_%s_%s.csv",
		job.Subreddit,
		job.RangeStart.Format(dateLayout),
		job.RangeEnd.Format(dateLayout),
		job.ID,
	))

	out, err := sink.Open(path)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			out.Close()
		}
	}()

	// Recorded immediately so the sweep can reclaim partial artifacts;
	// downloads stay gated on the done state.
	r.registry.Update(job.ID, func(j *models.Job) { j.Filename = path })

	if err := out.WriteHeader(); err != nil {
		return err
	}

	items, covCh := r.engine.Enumerate(ctx, job.Subreddit, window, job.Limit)

	count := 0
	var newest, oldest time.Time
	for item := range items {
		rows, err := r.enricher.Hydrate(ctx, item.ID, job.IncludeComments)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("hydration failed, skipping", "job_id", job.ID, "post_id", item.ID, "error", err)
			continue
		}

		for _, row := range rows {
			if err := out.WriteRow(row); err != nil {
				return err
			}
		}

		count++
		ts := time.Unix(item.CreatedUTC, 0).UTC()
		if count == 1 {
			newest = ts
		}
		oldest = ts

		progress := count * 100 / job.Limit
		if progress > 99 {
			progress = 99
		}
		newestTS, oldestTS := newest, oldest
		r.registry.Update(job.ID, func(j *models.Job) {
			j.Progress = progress
			j.ResultCount = count
			j.Message = fmt.Sprintf("Processed %d posts...", count)
			j.CoverageNewest = &newestTS
			j.CoverageOldest = &oldestTS
		})
	}

	cov := <-covCh
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if cov.Err != nil && count == 0 {
		return fmt.Errorf("search upstream failed for entire window: %w", cov.Err)
	}

	if err := out.Close(); err != nil {
		return err
	}
	closed = true

	r.registry.Update(job.ID, func(j *models.Job) {
		j.State = models.JobStateDone
		j.Progress = 100
		j.Message = "Finished"
		j.Filename = path
		j.ResultCount = count
		j.CapHit = cov.CapHit
		j.EmptyDays = cov.EmptyDays
		j.TotalDays = cov.TotalDays
	})
	slog.Info("job finished",
		"job_id", job.ID,
		"results", count,
		"cap_hit", cov.CapHit,
		"empty_days", cov.EmptyDays,
		"total_days", cov.TotalDays,
	)
	return nil
}
