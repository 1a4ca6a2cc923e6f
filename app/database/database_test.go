package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/news-comb/app/news"
	"github.com/lysyi3m/news-comb/app/source"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "data", "news.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	status, err := Migrate(db)
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if status.Version != SchemaVersion || !status.Applied || status.Previous != 0 {
		t.Fatalf("Expected migration from 0 to 2, got %+v", status)
	}

	return db
}

func testArticle(fingerprint string, published time.Time) news.Article {
	return news.Article{
		Fingerprint: fingerprint,
		SourceID:    "source-a",
		Category:    "ai",
		URL:         "https://example.com/" + fingerprint,
		Title:       "Title " + fingerprint,
		Body:        "Body",
		Authors:     []string{"Jane"},
		PublishedAt: published,
		IngestedAt:  published.Add(time.Minute),
		LastSeenAt:  published.Add(time.Minute),
		Revision:    1,
		ContentHash: "hash-" + fingerprint,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	status, err := Migrate(db)
	if err != nil {
		t.Fatalf("Expected no error on second run, got: %v", err)
	}
	if status.Version != 2 || status.Applied {
		t.Errorf("Expected version 2 with nothing applied, got %+v", status)
	}
}

func TestArticleRepository_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewArticleRepository(newTestDB(t))

	published := time.Date(2024, 5, 1, 12, 30, 0, 123, time.UTC)
	article := testArticle("fp1", published)

	if err := repo.Upsert(ctx, article, 0); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	stored, err := repo.GetByFingerprint(ctx, "fp1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if stored == nil {
		t.Fatal("Expected stored article")
	}
	if stored.Title != article.Title || stored.Revision != 1 || stored.ContentHash != "hash-fp1" {
		t.Errorf("Unexpected stored article: %+v", stored)
	}
	if !stored.PublishedAt.Equal(published) {
		t.Errorf("Expected published %v, got %v", published, stored.PublishedAt)
	}
	if len(stored.Authors) != 1 || stored.Authors[0] != "Jane" {
		t.Errorf("Expected authors [Jane], got %v", stored.Authors)
	}

	missing, err := repo.GetByFingerprint(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for missing article, got %v, %v", missing, err)
	}
}

func TestArticleRepository_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := NewArticleRepository(newTestDB(t))

	article := testArticle("fp1", time.Now().UTC())
	if err := repo.Upsert(ctx, article, 0); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	err := repo.Upsert(ctx, article, 0)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected conflict on second insert, got: %v", err)
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Kind != ErrKindConflict {
		t.Errorf("Expected StoreError with conflict kind, got: %v", err)
	}

	updated := article
	updated.Body = "Changed"
	updated.Revision = 2
	if err := repo.Upsert(ctx, updated, 1); err != nil {
		t.Fatalf("Expected update to succeed, got: %v", err)
	}

	stale := article
	stale.Body = "Stale writer"
	stale.Revision = 2
	if err := repo.Upsert(ctx, stale, 1); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected conflict for stale revision, got: %v", err)
	}

	stored, _ := repo.GetByFingerprint(ctx, "fp1")
	if stored.Body != "Changed" || stored.Revision != 2 {
		t.Errorf("Expected revision 2 with changed body, got %+v", stored)
	}
}

func TestArticleRepository_RejectsRevisionGap(t *testing.T) {
	repo := NewArticleRepository(newTestDB(t))

	article := testArticle("fp1", time.Now().UTC())
	article.Revision = 3
	if err := repo.Upsert(context.Background(), article, 0); err == nil {
		t.Error("Expected error for revision that does not follow expected revision")
	}
}

func TestArticleRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewArticleRepository(newTestDB(t))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, fp := range []string{"a", "b", "c", "d"} {
		article := testArticle(fp, base.Add(time.Duration(i)*time.Hour))
		if fp == "d" {
			article.SourceID = "source-b"
			article.Category = "robotics"
		}
		if err := repo.Upsert(ctx, article, 0); err != nil {
			t.Fatalf("Failed to insert %s: %v", fp, err)
		}
	}

	all, err := repo.ListArticles(ctx, ArticleFilter{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 articles, got %d", len(all))
	}
	if all[0].Fingerprint != "d" || all[3].Fingerprint != "a" {
		t.Errorf("Expected newest first, got %s..%s", all[0].Fingerprint, all[3].Fingerprint)
	}

	bySource, _ := repo.ListArticles(ctx, ArticleFilter{SourceID: "source-a"})
	if len(bySource) != 3 {
		t.Errorf("Expected 3 articles for source-a, got %d", len(bySource))
	}

	byCategory, _ := repo.ListArticles(ctx, ArticleFilter{Category: "robotics"})
	if len(byCategory) != 1 || byCategory[0].Fingerprint != "d" {
		t.Errorf("Expected only d for robotics, got %v", byCategory)
	}

	since := base.Add(2 * time.Hour)
	recent, _ := repo.ListArticles(ctx, ArticleFilter{Since: &since})
	if len(recent) != 2 {
		t.Errorf("Expected 2 articles since %v, got %d", since, len(recent))
	}

	page, _ := repo.ListArticles(ctx, ArticleFilter{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].Fingerprint != "c" || page[1].Fingerprint != "b" {
		t.Errorf("Unexpected page: %v", page)
	}

	count, err := repo.CountArticles(ctx, ArticleFilter{SourceID: "source-a"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
}

func TestArticleRepository_GetStats(t *testing.T) {
	ctx := context.Background()
	repo := NewArticleRepository(newTestDB(t))

	empty, err := repo.GetStats(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if empty.TotalArticles != 0 || empty.LatestPublishedAt != nil {
		t.Errorf("Expected empty stats, got %+v", empty)
	}

	latest := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	repo.Upsert(ctx, testArticle("a", latest.Add(-time.Hour)), 0)
	other := testArticle("b", latest)
	other.SourceID = "source-b"
	repo.Upsert(ctx, other, 0)

	stats, err := repo.GetStats(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if stats.TotalArticles != 2 {
		t.Errorf("Expected 2 articles, got %d", stats.TotalArticles)
	}
	if stats.BySource["source-a"] != 1 || stats.BySource["source-b"] != 1 {
		t.Errorf("Unexpected per-source counts: %v", stats.BySource)
	}
	if stats.ByCategory["ai"] != 2 {
		t.Errorf("Expected 2 ai articles, got %d", stats.ByCategory["ai"])
	}
	if stats.LatestPublishedAt == nil || !stats.LatestPublishedAt.Equal(latest) {
		t.Errorf("Expected latest %v, got %v", latest, stats.LatestPublishedAt)
	}
}

func TestBookkeepingRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewBookkeepingRepository(newTestDB(t))

	missing, err := repo.GetBookkeeping(ctx, "source-a")
	if err != nil || missing != nil {
		t.Fatalf("Expected nil, nil for missing record, got %v, %v", missing, err)
	}

	attempt := time.Date(2024, 3, 3, 3, 3, 3, 0, time.UTC)
	record := source.Bookkeeping{
		SourceID:            "source-a",
		LastAttemptAt:       &attempt,
		ConsecutiveFailures: 2,
		ETag:                `"v1"`,
		LastStatus:          "failed",
		LastError:           "timeout",
		UpdatedAt:           attempt,
	}
	if err := repo.UpdateBookkeeping(ctx, record); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	record.ConsecutiveFailures = 0
	record.LastSuccessAt = &attempt
	record.LastStatus = "success"
	record.LastError = ""
	if err := repo.UpdateBookkeeping(ctx, record); err != nil {
		t.Fatalf("Expected no error on update, got: %v", err)
	}

	stored, err := repo.GetBookkeeping(ctx, "source-a")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if stored.ConsecutiveFailures != 0 || stored.LastStatus != "success" || stored.ETag != `"v1"` {
		t.Errorf("Unexpected record: %+v", stored)
	}
	if stored.LastSuccessAt == nil || !stored.LastSuccessAt.Equal(attempt) {
		t.Errorf("Expected last success %v, got %v", attempt, stored.LastSuccessAt)
	}

	repo.UpdateBookkeeping(ctx, source.Bookkeeping{SourceID: "source-b"})
	records, err := repo.ListBookkeeping(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(records) != 2 || records[0].SourceID != "source-a" || records[1].SourceID != "source-b" {
		t.Errorf("Unexpected records: %+v", records)
	}
	if records[1].LastAttemptAt != nil {
		t.Errorf("Expected nil last attempt for source-b, got %v", records[1].LastAttemptAt)
	}
}

func TestStoreUnavailableAfterClose(t *testing.T) {
	db := newTestDB(t)
	repo := NewArticleRepository(db)
	db.Close()

	_, err := repo.GetByFingerprint(context.Background(), "fp")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected unavailable error, got: %v", err)
	}
}

func TestCheckSchema(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "news.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := CheckSchema(ctx, db); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected unavailable before migration, got: %v", err)
	}

	if _, err := Migrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	if err := CheckSchema(ctx, db); err != nil {
		t.Errorf("Expected migrated schema to pass, got: %v", err)
	}

	if _, err := db.ExecContext(ctx, `UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatalf("Failed to mark schema dirty: %v", err)
	}
	if err := CheckSchema(ctx, db); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected unavailable for dirty schema, got: %v", err)
	}
}
