// Package jobs owns the volatile registry of extraction jobs and the worker
// pool that runs them.
package jobs

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// Registry is the in-memory job store. It owns its own exclusion: every
// read or mutation of job state goes through it, and callers only ever see
// copies. Entries do not survive a process restart.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]*models.Job
	cancels   map[uuid.UUID]context.CancelFunc
	retention time.Duration
}

// NewRegistry creates a registry whose entries expire after retention.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		jobs:      make(map[uuid.UUID]*models.Job),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
		retention: retention,
	}
}

// CreateParams are the validated inputs for a new job.
type CreateParams struct {
	Subreddit       string
	IncludeComments bool
	Limit           int
	RangeStart      time.Time
	RangeEnd        time.Time
}

// Create registers a new queued job and returns a copy of it.
func (r *Registry) Create(params CreateParams) models.Job {
	job := &models.Job{
		ID:              uuid.New(),
		State:           models.JobStateQueued,
		Progress:        0,
		Message:         "Queued",
		Subreddit:       params.Subreddit,
		IncludeComments: params.IncludeComments,
		Limit:           params.Limit,
		RangeStart:      params.RangeStart,
		RangeEnd:        params.RangeEnd,
		CreatedAt:       time.Now().UTC(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return *job
}

// Get returns a copy of the job, if it exists.
func (r *Registry) Get(id uuid.UUID) (models.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *job, true
}

// Update applies fn to the job under the registry lock. Updating a job that
// was already reclaimed is a no-op, so a worker finishing after the sweep
// cannot resurrect an entry.
func (r *Registry) Update(id uuid.UUID, fn func(*models.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}

// Begin derives the job's run context from parent and registers its cancel
// function so the sweep can stop in-flight work instead of orphaning it.
func (r *Registry) Begin(parent context.Context, id uuid.UUID) context.Context {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()

	return ctx
}

// Finish releases the job's cancel function once its worker returns.
func (r *Registry) Finish(id uuid.UUID) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()

	if ok {
		cancel()
	}
}

// Sweep removes every job older than the retention window, regardless of
// state: in-flight work is cancelled, the registry entry is deleted, and
// the artifact is removed from storage. Returns the number of jobs swept.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()

	var expired []*models.Job
	for id, job := range r.jobs {
		if now.Sub(job.CreatedAt) > r.retention {
			expired = append(expired, job)
			if cancel, ok := r.cancels[id]; ok {
				cancel()
				delete(r.cancels, id)
			}
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, job := range expired {
		if job.Filename != "" {
			if err := os.Remove(job.Filename); err != nil && !os.IsNotExist(err) {
				slog.Warn("removing expired artifact", "job_id", job.ID, "error", err)
			}
		}
		slog.Info("job expired", "job_id", job.ID, "state", job.State)
	}

	return len(expired)
}

// Delete removes a job entry outright, cancelling any in-flight work. Used
// when dispatch fails after creation; artifacts are not touched.
func (r *Registry) Delete(id uuid.UUID) {
	r.mu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	delete(r.jobs, id)
	r.mu.Unlock()
}
