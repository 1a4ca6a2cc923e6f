package api

import (
	"context"
	"time"

	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/news"
	"github.com/lysyi3m/news-comb/app/source"
)

type ArticleReader interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*news.Article, error)
	ListArticles(ctx context.Context, filter database.ArticleFilter) ([]news.Article, error)
	CountArticles(ctx context.Context, filter database.ArticleFilter) (int, error)
	GetStats(ctx context.Context) (*database.Stats, error)
}

type BookkeepingReader interface {
	ListBookkeeping(ctx context.Context) ([]source.Bookkeeping, error)
}

type GeneratorInterface interface {
	Run(channel news.Channel, articles []news.Article) (string, error)
}

var _ GeneratorInterface = (*news.Generator)(nil)
var _ ArticleReader = (*database.ArticleRepository)(nil)
var _ BookkeepingReader = (*database.BookkeepingRepository)(nil)

type Handler struct {
	articles     ArticleReader
	bookkeeping  BookkeepingReader
	registry     *source.Registry
	generator    GeneratorInterface
	baseURL      string
	version      string
	storeTimeout time.Duration
}

type articleResponse struct {
	Fingerprint string    `json:"fingerprint"`
	SourceID    string    `json:"source_id"`
	Category    string    `json:"category"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Authors     []string  `json:"authors"`
	PublishedAt time.Time `json:"published_at"`
	IngestedAt  time.Time `json:"ingested_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Revision    int       `json:"revision"`
}

type sourceResponse struct {
	ID                  string     `json:"id"`
	URL                 string     `json:"url"`
	Format              string     `json:"format"`
	Category            string     `json:"category"`
	Weight              float64    `json:"weight"`
	Enabled             bool       `json:"enabled"`
	Cadence             string     `json:"cadence"`
	EffectiveCadence    string     `json:"effective_cadence"`
	LastAttemptAt       *time.Time `json:"last_attempt_at"`
	LastSuccessAt       *time.Time `json:"last_success_at"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Quarantined         bool       `json:"quarantined"`
	LastStatus          string     `json:"last_status"`
	LastError           string     `json:"last_error"`
}

func toArticleResponse(a news.Article) articleResponse {
	authors := a.Authors
	if authors == nil {
		authors = []string{}
	}

	return articleResponse{
		Fingerprint: a.Fingerprint,
		SourceID:    a.SourceID,
		Category:    a.Category,
		URL:         a.URL,
		Title:       a.Title,
		Body:        a.Body,
		Authors:     authors,
		PublishedAt: a.PublishedAt,
		IngestedAt:  a.IngestedAt,
		LastSeenAt:  a.LastSeenAt,
		Revision:    a.Revision,
	}
}
