package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/subharvest/internal/api/handler"
	"github.com/kiranshivaraju/subharvest/internal/jobs"
	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// mockStarter records the params it was started with.
type mockStarter struct {
	params jobs.CreateParams
	job    models.Job
	err    error
	called bool
}

func (m *mockStarter) Start(params jobs.CreateParams) (models.Job, error) {
	m.called = true
	m.params = params
	return m.job, m.err
}

// mockStore serves a fixed set of jobs.
type mockStore struct {
	jobs map[uuid.UUID]models.Job
}

func (m *mockStore) Get(id uuid.UUID) (models.Job, bool) {
	job, ok := m.jobs[id]
	return job, ok
}

func postJob(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %s", w.Body.String())
	}
	return errObj
}

// --- create ---

func TestCreateJob_Accepted(t *testing.T) {
	starter := &mockStarter{job: models.Job{ID: uuid.New()}}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{
		"subreddit": "golang",
		"start_date": "2024-01-10",
		"end_date": "2024-01-12",
		"include_comments": true,
		"limit": 50
	}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	data := body["data"].(map[string]any)
	if _, err := uuid.Parse(data["job_id"].(string)); err != nil {
		t.Errorf("expected a job id, got %v", data["job_id"])
	}

	if starter.params.Subreddit != "golang" || !starter.params.IncludeComments {
		t.Errorf("unexpected params: %+v", starter.params)
	}
	if starter.params.Limit != 50 {
		t.Errorf("expected limit 50, got %d", starter.params.Limit)
	}
	wantStart := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if !starter.params.RangeStart.Equal(wantStart) {
		t.Errorf("unexpected range start: %s", starter.params.RangeStart)
	}
	wantEnd := time.Date(2024, 1, 12, 23, 59, 59, 0, time.UTC)
	if !starter.params.RangeEnd.Equal(wantEnd) {
		t.Errorf("unexpected range end: %s", starter.params.RangeEnd)
	}
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	starter := &mockStarter{}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{"subreddit": `)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if starter.called {
		t.Error("no job may be created for an invalid body")
	}
}

func TestCreateJob_MissingFields(t *testing.T) {
	starter := &mockStarter{}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{"limit": 10}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	errObj := decodeError(t, w)
	details := errObj["details"].(map[string]any)
	for _, field := range []string{"Subreddit", "StartDate", "EndDate"} {
		if details[field] != "is required" {
			t.Errorf("expected %s to be required, details: %v", field, details)
		}
	}
	if starter.called {
		t.Error("no job may be created for invalid params")
	}
}

func TestCreateJob_InvertedRange(t *testing.T) {
	starter := &mockStarter{}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{
		"subreddit": "golang",
		"start_date": "2024-01-12",
		"end_date": "2024-01-10"
	}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if starter.called {
		t.Error("no job may be created for an inverted range")
	}
}

func TestCreateJob_MalformedDates(t *testing.T) {
	starter := &mockStarter{}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{
		"subreddit": "golang",
		"start_date": "10/01/2024",
		"end_date": "2024-01-12"
	}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateJob_NegativeLimit(t *testing.T) {
	starter := &mockStarter{}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{
		"subreddit": "golang",
		"start_date": "2024-01-10",
		"end_date": "2024-01-12",
		"limit": -5
	}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateJob_LimitDefaultsToMax(t *testing.T) {
	starter := &mockStarter{job: models.Job{ID: uuid.New()}}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{
		"subreddit": "golang",
		"start_date": "2024-01-10",
		"end_date": "2024-01-12"
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if starter.params.Limit != 500 {
		t.Errorf("omitted limit must default to max, got %d", starter.params.Limit)
	}
}

func TestCreateJob_LimitClampedToMax(t *testing.T) {
	starter := &mockStarter{job: models.Job{ID: uuid.New()}}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{
		"subreddit": "golang",
		"start_date": "2024-01-10",
		"end_date": "2024-01-12",
		"limit": 9999
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if starter.params.Limit != 500 {
		t.Errorf("oversized limit must clamp to max, got %d", starter.params.Limit)
	}
}

func TestCreateJob_QueueFull(t *testing.T) {
	starter := &mockStarter{err: jobs.ErrQueueFull}
	h := handler.NewCreateJobHandler(starter, 500)

	w := postJob(t, h, `{
		"subreddit": "golang",
		"start_date": "2024-01-10",
		"end_date": "2024-01-12"
	}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	errObj := decodeError(t, w)
	if errObj["code"] != "QUEUE_FULL" {
		t.Errorf("expected QUEUE_FULL, got %v", errObj["code"])
	}
}

// --- status ---

func statusRouter(store handler.JobStore) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/jobs/{jobID}", handler.NewJobStatusHandler(store))
	r.Get("/api/v1/jobs/{jobID}/download", handler.NewDownloadHandler(store))
	return r
}

func TestJobStatus_MalformedID(t *testing.T) {
	router := statusRouter(&mockStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestJobStatus_Unknown(t *testing.T) {
	router := statusRouter(&mockStore{jobs: map[uuid.UUID]models.Job{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	errObj := decodeError(t, w)
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", errObj["code"])
	}
}

func TestJobStatus_Running(t *testing.T) {
	id := uuid.New()
	newest := time.Date(2024, 1, 12, 18, 0, 0, 0, time.UTC)
	oldest := time.Date(2024, 1, 11, 6, 0, 0, 0, time.UTC)
	store := &mockStore{jobs: map[uuid.UUID]models.Job{
		id: {
			ID:              id,
			State:           models.JobStateRunning,
			Progress:        42,
			Message:         "Processed 210 posts...",
			Subreddit:       "golang",
			IncludeComments: true,
			RangeStart:      time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			RangeEnd:        time.Date(2024, 1, 12, 23, 59, 59, 0, time.UTC),
			CoverageNewest:  &newest,
			CoverageOldest:  &oldest,
			ResultCount:     210,
			CreatedAt:       time.Now().UTC(),
		},
	}}
	router := statusRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	data := body["data"].(map[string]any)
	if data["state"] != "running" {
		t.Errorf("unexpected state: %v", data["state"])
	}
	if data["progress"] != float64(42) {
		t.Errorf("unexpected progress: %v", data["progress"])
	}
	if data["start_date"] != "2024-01-10" || data["end_date"] != "2024-01-12" {
		t.Errorf("unexpected dates: %v %v", data["start_date"], data["end_date"])
	}
	if data["coverage_newest"] != "2024-01-12T18:00:00Z" {
		t.Errorf("unexpected coverage_newest: %v", data["coverage_newest"])
	}
	if _, hasURL := data["download_url"]; hasURL {
		t.Error("running job must not expose a download url")
	}
}

func TestJobStatus_DoneExposesDownloadURL(t *testing.T) {
	id := uuid.New()
	store := &mockStore{jobs: map[uuid.UUID]models.Job{
		id: {
			ID:       id,
			State:    models.JobStateDone,
			Progress: 100,
			Message:  "Finished",
			Filename: "/tmp/golang_2024-01-10_2024-01-12_" + id.String() + ".csv",
		},
	}}
	router := statusRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	data := body["data"].(map[string]any)
	want := "/api/v1/jobs/" + id.String() + "/download"
	if data["download_url"] != want {
		t.Errorf("expected download url %s, got %v", want, data["download_url"])
	}
}

// --- download ---

func TestDownload_NotReady(t *testing.T) {
	id := uuid.New()
	store := &mockStore{jobs: map[uuid.UUID]models.Job{
		id: {ID: id, State: models.JobStateRunning, Filename: "/tmp/partial.csv"},
	}}
	router := statusRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id.String()+"/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	errObj := decodeError(t, w)
	if errObj["code"] != "FILE_NOT_READY" {
		t.Errorf("expected FILE_NOT_READY, got %v", errObj["code"])
	}
}

func TestDownload_FileMissing(t *testing.T) {
	id := uuid.New()
	store := &mockStore{jobs: map[uuid.UUID]models.Job{
		id: {ID: id, State: models.JobStateDone, Filename: "/definitely/gone.csv"},
	}}
	router := statusRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id.String()+"/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	errObj := decodeError(t, w)
	if errObj["code"] != "FILE_MISSING" {
		t.Errorf("expected FILE_MISSING, got %v", errObj["code"])
	}
}

func TestDownload_ServesArtifact(t *testing.T) {
	id := uuid.New()
	path := filepath.Join(t.TempDir(), "golang_2024-01-10_2024-01-12_"+id.String()+".csv")
	content := "post_id,post_title\nabc123,hello\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &mockStore{jobs: map[uuid.UUID]models.Job{
		id: {ID: id, State: models.JobStateDone, Filename: path},
	}}
	router := statusRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id.String()+"/download", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("unexpected content type: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Error("expected a content disposition header")
	}
	if w.Body.String() != content {
		t.Errorf("artifact content mismatch: %q", w.Body.String())
	}
}
