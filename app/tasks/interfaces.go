package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/news-comb/app/dedup"
	"github.com/lysyi3m/news-comb/app/fetcher"
	"github.com/lysyi3m/news-comb/app/news"
	"github.com/lysyi3m/news-comb/app/source"
)

// TaskSchedulerInterface is what the process entry point drives: Start and
// Stop for the continuous mode, Tick for a single cycle.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	Tick(ctx context.Context, now time.Time) []Outcome
}

type Fetcher interface {
	Fetch(ctx context.Context, desc source.Descriptor) (*fetcher.RawPayload, error)
}

type Parser interface {
	Run(desc source.Descriptor, payload *fetcher.RawPayload) ([]news.Article, error)
}

type Resolver interface {
	Resolve(ctx context.Context, article news.Article) (dedup.Decision, news.Article, error)
}

// Bookkeeper persists per-source attempt state independently of articles.
type Bookkeeper interface {
	ListBookkeeping(ctx context.Context) ([]source.Bookkeeping, error)
	UpdateBookkeeping(ctx context.Context, record source.Bookkeeping) error
}
