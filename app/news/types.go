package news

import (
	"time"
)

// Article is the canonical stored record. Two articles with the same
// Fingerprint are the same logical article, whichever source supplied them.
type Article struct {
	Fingerprint string
	SourceID    string
	Category    string
	URL         string
	Title       string
	Body        string
	Authors     []string
	PublishedAt time.Time
	IngestedAt  time.Time
	LastSeenAt  time.Time
	Revision    int
	ContentHash string
}

// Channel describes the RSS channel the generator wraps articles in.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfLink    string
	Generator   string
}

// entry is what a format strategy extracts before normalization.
type entry struct {
	title     string
	link      string
	body      string
	authors   []string
	published *time.Time
}
