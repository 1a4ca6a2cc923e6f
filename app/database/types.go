package database

import (
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type ArticleFilter struct {
	SourceID string
	Category string
	Since    *time.Time
	Limit    int
	Offset   int
}

type Stats struct {
	TotalArticles     int
	BySource          map[string]int
	ByCategory        map[string]int
	LatestPublishedAt *time.Time
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
