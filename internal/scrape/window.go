package scrape

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for malformed dates or an inverted range.
var ErrInvalidWindow = errors.New("invalid time window")

const dateLayout = "2006-01-02"

// TimeWindow is the inclusive [Start, End] range of a job, in UTC.
// Day-granularity input is widened to full-day boundaries.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewWindow parses YYYY-MM-DD dates and widens them to full-day bounds:
// Start becomes 00:00:00 and End becomes 23:59:59 of the given days.
func NewWindow(startDate, endDate string) (TimeWindow, error) {
	start, err := time.ParseInLocation(dateLayout, startDate, time.UTC)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("%w: start date %q must be YYYY-MM-DD", ErrInvalidWindow, startDate)
	}
	end, err := time.ParseInLocation(dateLayout, endDate, time.UTC)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("%w: end date %q must be YYYY-MM-DD", ErrInvalidWindow, endDate)
	}
	if end.Before(start) {
		return TimeWindow{}, fmt.Errorf("%w: end date %s before start date %s", ErrInvalidWindow, endDate, startDate)
	}

	return TimeWindow{
		Start: start,
		End:   end.Add(24*time.Hour - time.Second),
	}, nil
}

// Chunk is one day-bounded sub-interval of a window, with inclusive
// unix-second bounds.
type Chunk struct {
	Start int64
	End   int64
}

const daySeconds = 24 * 60 * 60

// Chunks partitions the window into sub-intervals of at most one day,
// ordered newest to oldest. The chunks cover the window exactly, with no
// gaps and no overlaps.
func (w TimeWindow) Chunks() []Chunk {
	start := w.Start.Unix()
	chunkEnd := w.End.Unix()

	var chunks []Chunk
	for chunkEnd >= start {
		chunkStart := chunkEnd - daySeconds + 1
		if chunkStart < start {
			chunkStart = start
		}
		chunks = append(chunks, Chunk{Start: chunkStart, End: chunkEnd})
		chunkEnd = chunkStart - 1
	}
	return chunks
}
