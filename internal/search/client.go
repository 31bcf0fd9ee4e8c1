package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// Sentinel errors for search client failures.
var (
	ErrUnreachable      = errors.New("search mirror unreachable")
	ErrQueryError       = errors.New("search query error")
	ErrTimeout          = errors.New("search query timeout")
	ErrMirrorsExhausted = errors.New("all search mirrors exhausted")
)

// Client is the interface for the time-indexed submission search service.
type Client interface {
	SearchSubmissions(ctx context.Context, req SubmissionsRequest) ([]models.SearchItem, error)
}

// SubmissionsRequest defines parameters for one page of a submission search.
// After and Before are inclusive unix-second bounds on created_utc.
type SubmissionsRequest struct {
	Subreddit string
	After     int64
	Before    int64
	Size      int
}

// HTTPClient implements Client against one or more interchangeable mirror
// endpoints. Each mirror is retried with exponential backoff before the next
// mirror is tried; only when every mirror is exhausted does the call fail.
type HTTPClient struct {
	mirrors     []string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	client      *http.Client
}

// NewHTTPClient creates a new search client over the given mirror base URLs.
func NewHTTPClient(mirrors []string, maxAttempts int, baseDelay, maxDelay, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		mirrors:     mirrors,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		client:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) SearchSubmissions(ctx context.Context, req SubmissionsRequest) ([]models.SearchItem, error) {
	// Upstream treats after/before as exclusive; widen by one second to keep
	// the request's inclusive contract.
	params := url.Values{
		"subreddit": {req.Subreddit},
		"after":     {strconv.FormatInt(req.After-1, 10)},
		"before":    {strconv.FormatInt(req.Before+1, 10)},
		"size":      {strconv.Itoa(req.Size)},
		"sort":      {"desc"},
		"sort_type": {"created_utc"},
		"fields":    {"id,created_utc"},
	}

	var lastErr error
	for _, mirror := range c.mirrors {
		items, err := c.searchMirror(ctx, mirror, params)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrMirrorsExhausted, lastErr)
}

// searchMirror retries a single mirror up to maxAttempts with exponential
// backoff (doubling from baseDelay, capped at maxDelay, jittered).
func (c *HTTPClient) searchMirror(ctx context.Context, mirror string, params url.Values) ([]models.SearchItem, error) {
	var lastErr error
	delay := c.baseDelay

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		items, err := c.doSearch(ctx, mirror, params)
		if err == nil {
			return items, nil
		}
		lastErr = err

		if attempt < c.maxAttempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			case <-time.After(jitter(delay)):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
	}
	return nil, fmt.Errorf("mirror %s failed after %d attempts: %w", mirror, c.maxAttempts, lastErr)
}

func (c *HTTPClient) doSearch(ctx context.Context, mirror string, params url.Values) ([]models.SearchItem, error) {
	u := fmt.Sprintf("%s/reddit/search/submission?%s", mirror, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrQueryError, resp.StatusCode)
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrQueryError, err)
	}

	items := make([]models.SearchItem, 0, len(searchResp.Data))
	for _, d := range searchResp.Data {
		items = append(items, models.SearchItem{
			ID:         d.ID,
			CreatedUTC: int64(d.CreatedUTC),
		})
	}
	return items, nil
}

// jitter returns a duration in [d/2, d].
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := int64(d / 2)
	return time.Duration(half + rand.Int63n(half+1))
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

// --- search response types ---

type searchResponse struct {
	Data []searchItem `json:"data"`
}

type searchItem struct {
	ID         string  `json:"id"`
	CreatedUTC float64 `json:"created_utc"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
