package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/news"
)

type Decision string

const (
	New              Decision = "new"
	DuplicateExact   Decision = "duplicate_exact"
	DuplicateUpdated Decision = "duplicate_updated"
)

type Store interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*news.Article, error)
	Upsert(ctx context.Context, article news.Article, expectedRevision int) error
}

type Resolver struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

func NewResolver(store Store, timeout time.Duration) *Resolver {
	return &Resolver{
		store:   store,
		timeout: timeout,
		now:     time.Now,
	}
}

// Resolve classifies the article against the stored record with the same
// fingerprint and persists it when needed. A lost compare-and-set race is
// re-resolved once against the winner's state.
func (r *Resolver) Resolve(ctx context.Context, article news.Article) (Decision, news.Article, error) {
	if article.Fingerprint == "" {
		article.Fingerprint = news.Fingerprint(article.Title, article.URL, article.Body)
	}
	article.ContentHash = news.ContentHash(article)

	decision, stored, err := r.resolve(ctx, article)
	if errors.Is(err, database.ErrConflict) {
		slog.Debug("Concurrent write detected, resolving again", "fingerprint", article.Fingerprint)
		decision, stored, err = r.resolve(ctx, article)
	}

	return decision, stored, err
}

func (r *Resolver) resolve(ctx context.Context, article news.Article) (Decision, news.Article, error) {
	existing, err := r.get(ctx, article.Fingerprint)
	if err != nil {
		return "", article, fmt.Errorf("failed to look up %s: %w", article.Fingerprint, err)
	}

	now := r.now().UTC()

	if existing == nil {
		article.Revision = 1
		article.IngestedAt = now
		article.LastSeenAt = now

		if err := r.upsert(ctx, article, 0); err != nil {
			return "", article, err
		}
		return New, article, nil
	}

	if existing.ContentHash == article.ContentHash {
		return DuplicateExact, *existing, nil
	}

	updated := article
	updated.SourceID = existing.SourceID
	updated.Category = existing.Category
	updated.IngestedAt = existing.IngestedAt
	updated.LastSeenAt = now
	updated.Revision = existing.Revision + 1

	if err := r.upsert(ctx, updated, existing.Revision); err != nil {
		return "", article, err
	}
	return DuplicateUpdated, updated, nil
}

func (r *Resolver) get(ctx context.Context, fingerprint string) (*news.Article, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.store.GetByFingerprint(ctx, fingerprint)
}

func (r *Resolver) upsert(ctx context.Context, article news.Article, expectedRevision int) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.store.Upsert(ctx, article, expectedRevision)
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
