package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStateQueued  = "queued"
	JobStateRunning = "running"
	JobStateDone    = "done"
	JobStateError   = "error"
)

// Job tracks an async extraction job. The API returns a job_id on POST /api/v1/jobs;
// the client polls GET /api/v1/jobs/{job_id} until state is done or error.
// Jobs live only in the in-memory registry and are reclaimed by the retention sweep.
type Job struct {
	ID              uuid.UUID  `json:"id"`
	State           string     `json:"state"`
	Progress        int        `json:"progress"`
	Message         string     `json:"message"`
	Filename        string     `json:"-"` // artifact path; downloads are gated on the done state
	Subreddit       string     `json:"subreddit"`
	IncludeComments bool       `json:"include_comments"`
	Limit           int        `json:"limit"`
	RangeStart      time.Time  `json:"range_start"`
	RangeEnd        time.Time  `json:"range_end"`
	CoverageNewest  *time.Time `json:"coverage_newest,omitempty"`
	CoverageOldest  *time.Time `json:"coverage_oldest,omitempty"`
	ResultCount     int        `json:"result_count"`
	CapHit          bool       `json:"cap_hit"`
	EmptyDays       int        `json:"empty_days"`
	TotalDays       int        `json:"total_days"`
	CreatedAt       time.Time  `json:"created_at"`
}
