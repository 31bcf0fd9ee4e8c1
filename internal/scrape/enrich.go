package scrape

import (
	"context"
	"strings"

	"github.com/kiranshivaraju/subharvest/internal/reddit"
	"github.com/kiranshivaraju/subharvest/pkg/models"
)

// crlf replaces embedded CR/LF characters with spaces so every record stays
// on one artifact row.
var crlf = strings.NewReplacer("\r", " ", "\n", " ")

// Enricher hydrates discovered submissions through the authoritative
// content API and assembles output rows.
type Enricher struct {
	client reddit.Client
}

// NewEnricher creates an enricher over the given content client.
func NewEnricher(client reddit.Client) *Enricher {
	return &Enricher{client: client}
}

// Hydrate fetches the full record for id and returns its output rows.
// With comments included, one row is emitted per top-level comment, each
// repeating the submission's fields; a submission with no qualifying
// comments, or any submission when comments are excluded, yields exactly
// one row with empty comment fields.
func (e *Enricher) Hydrate(ctx context.Context, id string, includeComments bool) ([]models.Row, error) {
	thread, err := e.client.Thread(ctx, id)
	if err != nil {
		return nil, err
	}
	return AssembleRows(thread, includeComments), nil
}

// AssembleRows flattens a hydrated thread into sanitized output rows.
func AssembleRows(thread *reddit.Thread, includeComments bool) []models.Row {
	post := thread.Submission
	post.Title = crlf.Replace(post.Title)
	post.Selftext = crlf.Replace(post.Selftext)

	if !includeComments || len(thread.Comments) == 0 {
		return []models.Row{{Post: post}}
	}

	rows := make([]models.Row, 0, len(thread.Comments))
	for _, c := range thread.Comments {
		c.Body = crlf.Replace(c.Body)
		comment := c
		rows = append(rows, models.Row{Post: post, Comment: &comment})
	}
	return rows
}
