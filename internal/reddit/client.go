package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"time"

	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// Sentinel errors for content client failures.
var (
	ErrUnreachable = errors.New("reddit unreachable")
	ErrFetchError  = errors.New("reddit fetch error")
	ErrTimeout     = errors.New("reddit fetch timeout")
)

// Client is the interface for the authoritative content-and-replies service.
type Client interface {
	Thread(ctx context.Context, id string) (*Thread, error)
}

// Thread is a hydrated submission together with its top-level comments.
// Placeholder "load more" nodes are already elided.
type Thread struct {
	Submission models.Submission
	Comments   []models.Comment
}

// HTTPClient implements Client using reddit's public comment-thread endpoint.
type HTTPClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewHTTPClient creates a new reddit content client.
func NewHTTPClient(baseURL, userAgent string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Thread(ctx context.Context, id string) (*Thread, error) {
	params := url.Values{
		"raw_json": {"1"},
		"depth":    {"1"},
		"sort":     {"confidence"},
	}
	u := fmt.Sprintf("%s/comments/%s.json?%s", c.baseURL, url.PathEscape(id), params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchError, resp.StatusCode)
	}

	// The endpoint returns a two-element array: the submission listing and
	// the top-level comment listing.
	var listings []listing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, fmt.Errorf("%w: decoding thread: %v", ErrFetchError, err)
	}
	if len(listings) < 2 || len(listings[0].Data.Children) == 0 {
		return nil, fmt.Errorf("%w: malformed thread payload", ErrFetchError)
	}

	var sub submissionData
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &sub); err != nil {
		return nil, fmt.Errorf("%w: decoding submission: %v", ErrFetchError, err)
	}

	thread := &Thread{
		Submission: models.Submission{
			ID:         sub.ID,
			Title:      sub.Title,
			Selftext:   sub.Selftext,
			URL:        sub.URL,
			Author:     sub.Author,
			Score:      sub.Score,
			CreatedUTC: int64(sub.CreatedUTC),
		},
	}

	for _, child := range listings[1].Data.Children {
		// "more" children are pagination placeholders, not comments.
		if child.Kind != "t1" {
			continue
		}
		var cm commentData
		if err := json.Unmarshal(child.Data, &cm); err != nil {
			continue
		}
		thread.Comments = append(thread.Comments, models.Comment{
			ID:         cm.ID,
			ParentID:   cm.ParentID,
			Body:       cm.Body,
			Author:     cm.Author,
			Score:      cm.Score,
			CreatedUTC: int64(cm.CreatedUTC),
		})
	}

	return thread, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// --- thread response types ---

type listing struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	Children []thing `json:"children"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type submissionData struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	Author     string  `json:"author"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

type commentData struct {
	ID         string  `json:"id"`
	ParentID   string  `json:"parent_id"`
	Body       string  `json:"body"`
	Author     string  `json:"author"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
