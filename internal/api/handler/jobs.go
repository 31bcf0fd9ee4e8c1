package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/subharvest/internal/api/response"
	"github.com/kiranshivaraju/subharvest/internal/jobs"
	"github.com/kiranshivaraju/subharvest/internal/scrape"
	"github.com/kiranshivaraju/subharvest/pkg/models"
)

var validate = validator.New()

// JobStarter admits a validated extraction job.
type JobStarter interface {
	Start(params jobs.CreateParams) (models.Job, error)
}

// JobStore reads job state.
type JobStore interface {
	Get(id uuid.UUID) (models.Job, bool)
}

// CreateJobRequest is the body of POST /api/v1/jobs.
type CreateJobRequest struct {
	Subreddit       string `json:"subreddit"        validate:"required"`
	StartDate       string `json:"start_date"       validate:"required"`
	EndDate         string `json:"end_date"         validate:"required"`
	IncludeComments bool   `json:"include_comments"`
	Limit           int    `json:"limit"            validate:"gte=0"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// Validation failures are rejected here, before any job record exists.
func NewCreateJobHandler(starter JobStarter, maxResults int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := validate.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Invalid job parameters", validationDetails(err))
			return
		}

		window, err := scrape.NewWindow(req.StartDate, req.EndDate)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		limit := req.Limit
		if limit == 0 || limit > maxResults {
			limit = maxResults
		}

		job, err := starter.Start(jobs.CreateParams{
			Subreddit:       req.Subreddit,
			IncludeComments: req.IncludeComments,
			Limit:           limit,
			RangeStart:      window.Start,
			RangeEnd:        window.End,
		})
		if err != nil {
			if errors.Is(err, jobs.ErrQueueFull) {
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_FULL",
					"Too many pending jobs, try again later", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, map[string]string{"job_id": job.ID.String()})
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(store JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Malformed job id", nil)
			return
		}

		job, ok := store.Get(id)
		if !ok {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown or expired job id", nil)
			return
		}

		resp := jobStatusResponse{
			JobID:           job.ID.String(),
			State:           job.State,
			Progress:        job.Progress,
			Message:         job.Message,
			Subreddit:       job.Subreddit,
			IncludeComments: job.IncludeComments,
			StartDate:       job.RangeStart.UTC().Format("2006-01-02"),
			EndDate:         job.RangeEnd.UTC().Format("2006-01-02"),
			ResultCount:     job.ResultCount,
			CapHit:          job.CapHit,
			EmptyDays:       job.EmptyDays,
			TotalDays:       job.TotalDays,
			CreatedAt:       job.CreatedAt.UTC().Format(time.RFC3339),
		}
		if job.CoverageNewest != nil {
			s := job.CoverageNewest.UTC().Format(time.RFC3339)
			resp.CoverageNewest = &s
		}
		if job.CoverageOldest != nil {
			s := job.CoverageOldest.UTC().Format(time.RFC3339)
			resp.CoverageOldest = &s
		}
		if job.State == models.JobStateDone && job.Filename != "" {
			resp.DownloadURL = fmt.Sprintf("/api/v1/jobs/%s/download", job.ID)
		}

		response.JSON(w, resp)
	}
}

// NewDownloadHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/download.
// A retrieval reference exists only for done jobs whose artifact is still on disk.
func NewDownloadHandler(store JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Malformed job id", nil)
			return
		}

		job, ok := store.Get(id)
		if !ok {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown or expired job id", nil)
			return
		}
		if job.State != models.JobStateDone || job.Filename == "" {
			response.Error(w, http.StatusNotFound, "FILE_NOT_READY", "Artifact not ready", nil)
			return
		}
		if _, err := os.Stat(job.Filename); err != nil {
			response.Error(w, http.StatusNotFound, "FILE_MISSING", "Artifact missing (expired?)", nil)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", filepath.Base(job.Filename)))
		http.ServeFile(w, r, job.Filename)
	}
}

type jobStatusResponse struct {
	JobID           string  `json:"job_id"`
	State           string  `json:"state"`
	Progress        int     `json:"progress"`
	Message         string  `json:"message"`
	Subreddit       string  `json:"subreddit"`
	IncludeComments bool    `json:"include_comments"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	ResultCount     int     `json:"result_count"`
	CapHit          bool    `json:"cap_hit"`
	EmptyDays       int     `json:"empty_days"`
	TotalDays       int     `json:"total_days"`
	CoverageNewest  *string `json:"coverage_newest,omitempty"`
	CoverageOldest  *string `json:"coverage_oldest,omitempty"`
	DownloadURL     string  `json:"download_url,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// validationDetails flattens validator errors into a field → problem map.
func validationDetails(err error) map[string]string {
	details := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["request"] = err.Error()
		return details
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "gte":
			details[fe.Field()] = fmt.Sprintf("must be >= %s", fe.Param())
		default:
			details[fe.Field()] = fmt.Sprintf("failed %s validation", fe.Tag())
		}
	}
	return details
}
