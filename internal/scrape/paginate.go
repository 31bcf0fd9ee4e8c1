package scrape

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/subharvest/internal/search"
	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// EngineConfig configures the pagination engine.
type EngineConfig struct {
	PageSize        int
	ChunkAttempts   int
	EmptyChunkPause time.Duration
	PacePerSecond   float64
}

// Engine enumerates submissions for a community over a time window by
// walking daily chunks backward in time and paginating each chunk with a
// cursor derived from the oldest timestamp seen.
type Engine struct {
	client  search.Client
	cfg     EngineConfig
	limiter *rate.Limiter
}

// NewEngine creates a pagination engine over the given search client.
func NewEngine(client search.Client, cfg EngineConfig) *Engine {
	lim := rate.Inf
	if cfg.PacePerSecond > 0 {
		lim = rate.Limit(cfg.PacePerSecond)
	}
	return &Engine{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(lim, 1),
	}
}

// Coverage summarizes a completed enumeration. Err is set only when no
// upstream request succeeded at all and nothing was emitted, so the caller
// can distinguish total upstream failure from a genuinely empty window.
type Coverage struct {
	EmptyDays int
	TotalDays int
	CapHit    bool
	Err       error
}

// Enumerate produces the deduplicated, time-descending sequence of
// discovered items for the window, up to limit. The returned coverage
// channel yields exactly one summary after the item channel is closed.
func (e *Engine) Enumerate(ctx context.Context, subreddit string, window TimeWindow, limit int) (<-chan models.SearchItem, <-chan Coverage) {
	items := make(chan models.SearchItem)
	covCh := make(chan Coverage, 1)

	go func() {
		defer close(items)

		var cov Coverage
		defer func() { covCh <- cov }()

		emitted := 0
		anyFetched := false
		var lastErr error

		for _, chunk := range window.Chunks() {
			if emitted >= limit {
				cov.CapHit = true
				return
			}

			cov.TotalDays++
			res := e.scanChunk(ctx, subreddit, chunk, limit-emitted, items)
			emitted += res.emitted
			anyFetched = anyFetched || res.fetched
			if res.err != nil {
				lastErr = res.err
			}
			if ctx.Err() != nil {
				return
			}

			if res.emitted == 0 {
				cov.EmptyDays++
				slog.Debug("empty day",
					"subreddit", subreddit,
					"chunk_start", chunk.Start,
					"chunk_end", chunk.End,
				)
				if !e.pause(ctx, e.cfg.EmptyChunkPause) {
					return
				}
			}

			if emitted >= limit {
				cov.CapHit = true
				return
			}
		}

		if emitted == 0 && !anyFetched && lastErr != nil {
			cov.Err = lastErr
		}
	}()

	return items, covCh
}

type chunkResult struct {
	emitted int
	fetched bool // at least one page request succeeded
	err     error
}

// scanChunk makes up to ChunkAttempts independent attempts at a chunk. The
// first attempt that yields an item covers the chunk; a chunk whose attempts
// all yield nothing counts as an empty day. Upstream failures end the
// attempt, never the enumeration.
func (e *Engine) scanChunk(ctx context.Context, subreddit string, chunk Chunk, remaining int, out chan<- models.SearchItem) chunkResult {
	var res chunkResult
	for attempt := 1; attempt <= e.cfg.ChunkAttempts; attempt++ {
		n, fetched, err := e.scanAttempt(ctx, subreddit, chunk, remaining, out)
		res.emitted += n
		res.fetched = res.fetched || fetched
		if err != nil {
			res.err = err
		}
		if ctx.Err() != nil {
			return res
		}
		if n > 0 {
			return res
		}
		if err != nil {
			slog.Warn("chunk attempt failed",
				"subreddit", subreddit,
				"chunk_start", chunk.Start,
				"attempt", attempt,
				"error", err,
			)
		}
	}
	return res
}

// scanAttempt pages backward through one chunk: each page is bounded above
// by the cursor and below by the chunk start, and the cursor moves to one
// second below the oldest new item seen. The attempt ends on an empty page,
// on a page that fails to extend the minimum (stalled cursor), on reaching
// the remaining cap, or on an upstream failure.
func (e *Engine) scanAttempt(ctx context.Context, subreddit string, chunk Chunk, remaining int, out chan<- models.SearchItem) (int, bool, error) {
	cursor := chunk.End
	seen := make(map[string]struct{})
	emitted := 0
	fetched := false
	minSeen := int64(math.MaxInt64)

	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return emitted, fetched, err
		}

		size := e.cfg.PageSize
		if rem := remaining - emitted; rem < size {
			size = rem
		}
		if size <= 0 {
			return emitted, fetched, nil
		}

		page, err := e.client.SearchSubmissions(ctx, search.SubmissionsRequest{
			Subreddit: subreddit,
			After:     chunk.Start,
			Before:    cursor,
			Size:      size,
		})
		if err != nil {
			return emitted, fetched, err
		}
		fetched = true

		if len(page) == 0 {
			return emitted, fetched, nil
		}

		prevMin := minSeen
		for _, item := range page {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			if item.CreatedUTC < chunk.Start || item.CreatedUTC > chunk.End {
				continue
			}
			seen[item.ID] = struct{}{}

			select {
			case out <- item:
			case <-ctx.Done():
				return emitted, fetched, ctx.Err()
			}
			emitted++

			if item.CreatedUTC < minSeen {
				minSeen = item.CreatedUTC
			}
			if emitted >= remaining {
				return emitted, fetched, nil
			}
		}

		// A page that fails to lower the minimum cannot move the cursor;
		// stop rather than repaginate the same range forever.
		if minSeen >= prevMin {
			return emitted, fetched, nil
		}

		cursor = minSeen - 1
		if cursor < chunk.Start {
			return emitted, fetched, nil
		}
	}
}

// pause waits for d or until the context is cancelled; reports whether the
// enumeration should continue.
func (e *Engine) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
