// Package sink writes assembled rows to a delimited output artifact.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// Header is the fixed column order of the artifact.
var Header = []string{
	"post_id", "post_title", "post_selftext", "post_url", "post_author",
	"post_score", "post_created_utc",
	"comment_id", "comment_parent_id", "comment_body", "comment_author",
	"comment_score", "comment_created_utc",
}

// CSV is an open artifact handle. Exactly one header row is written before
// any data row; the file is flushed and closed by Close.
type CSV struct {
	f *os.File
	w *csv.Writer
}

// Open creates (or truncates) the artifact at path.
func Open(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	return &CSV{f: f, w: csv.NewWriter(f)}, nil
}

// WriteHeader writes the header row.
func (s *CSV) WriteHeader() error {
	return s.w.Write(Header)
}

// WriteRow appends one data row. Rows without a comment leave the six
// comment columns empty.
func (s *CSV) WriteRow(row models.Row) error {
	fields := []string{
		row.Post.ID,
		row.Post.Title,
		row.Post.Selftext,
		row.Post.URL,
		row.Post.Author,
		strconv.Itoa(row.Post.Score),
		isoUTC(row.Post.CreatedUTC),
		"", "", "", "", "", "",
	}
	if c := row.Comment; c != nil {
		fields[7] = c.ID
		fields[8] = c.ParentID
		fields[9] = c.Body
		fields[10] = c.Author
		fields[11] = strconv.Itoa(c.Score)
		fields[12] = isoUTC(c.CreatedUTC)
	}
	return s.w.Write(fields)
}

// Close flushes buffered rows and closes the file. A Close error means the
// artifact must not be exposed as complete.
func (s *CSV) Close() error {
	s.w.Flush()
	flushErr := s.w.Error()
	closeErr := s.f.Close()
	if flushErr != nil {
		return fmt.Errorf("flushing artifact: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing artifact: %w", closeErr)
	}
	return nil
}

func isoUTC(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format(time.RFC3339)
}
