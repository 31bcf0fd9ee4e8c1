package models

// SearchItem is the minimal record returned by the time-indexed search
// service: enough to know an item exists and when it was created.
type SearchItem struct {
	ID         string
	CreatedUTC int64
}

// Submission is the authoritative content record for a post.
type Submission struct {
	ID         string
	Title      string
	Selftext   string
	URL        string
	Author     string
	Score      int
	CreatedUTC int64
}

// Comment is one top-level reply on a submission.
type Comment struct {
	ID         string
	ParentID   string
	Body       string
	Author     string
	Score      int
	CreatedUTC int64
}

// Row is one flattened (submission x comment) pair destined for the CSV
// artifact. Comment is nil for a reply-less row; the sink leaves the six
// comment columns empty in that case.
type Row struct {
	Post    Submission
	Comment *Comment
}
