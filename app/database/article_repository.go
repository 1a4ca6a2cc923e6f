package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lysyi3m/news-comb/app/news"
)

const articleColumns = `fingerprint, source_id, category, url, title, body, authors,
	published_at, ingested_at, last_seen_at, revision, content_hash`

type ArticleRepository struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// GetByFingerprint returns nil, nil when no article has the fingerprint.
func (r *ArticleRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*news.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE fingerprint = ?`, fingerprint)

	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get article", err)
	}

	return article, nil
}

// Upsert writes article if the stored revision still equals
// expectedRevision. An expectedRevision of 0 means the article must not
// exist yet. Losing the race yields a conflict StoreError and no write.
func (r *ArticleRepository) Upsert(ctx context.Context, article news.Article, expectedRevision int) error {
	if article.Revision != expectedRevision+1 {
		return fmt.Errorf("article %s: revision %d does not follow expected revision %d",
			article.Fingerprint, article.Revision, expectedRevision)
	}

	authors, err := json.Marshal(article.Authors)
	if err != nil {
		return fmt.Errorf("failed to encode authors: %w", err)
	}
	if article.Authors == nil {
		authors = []byte("[]")
	}

	var result sql.Result
	if expectedRevision == 0 {
		result, err = r.db.ExecContext(ctx, `
			INSERT INTO articles (`+articleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (fingerprint) DO NOTHING
		`, article.Fingerprint, article.SourceID, article.Category, article.URL,
			article.Title, article.Body, string(authors),
			formatTime(article.PublishedAt), formatTime(article.IngestedAt), formatTime(article.LastSeenAt),
			article.Revision, article.ContentHash)
	} else {
		result, err = r.db.ExecContext(ctx, `
			UPDATE articles
			SET source_id = ?, category = ?, url = ?, title = ?, body = ?, authors = ?,
			    published_at = ?, ingested_at = ?, last_seen_at = ?, revision = ?, content_hash = ?
			WHERE fingerprint = ? AND revision = ?
		`, article.SourceID, article.Category, article.URL, article.Title, article.Body, string(authors),
			formatTime(article.PublishedAt), formatTime(article.IngestedAt), formatTime(article.LastSeenAt),
			article.Revision, article.ContentHash,
			article.Fingerprint, expectedRevision)
	}
	if err != nil {
		return wrap("upsert article", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return wrap("upsert article", err)
	}
	if affected == 0 {
		return conflict("upsert article", article.Fingerprint, expectedRevision)
	}

	return nil
}

// ListArticles returns articles newest first.
func (r *ArticleRepository) ListArticles(ctx context.Context, filter ArticleFilter) ([]news.Article, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	query := applyFilter(sq.Select(articleColumns).From("articles"), filter).
		OrderBy("published_at DESC", "fingerprint ASC").
		Limit(uint64(limit))
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	statement, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build article query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, wrap("list articles", err)
	}
	defer rows.Close()

	articles := make([]news.Article, 0, limit)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, wrap("scan article row", err)
		}
		articles = append(articles, *article)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate article rows", err)
	}

	return articles, nil
}

func (r *ArticleRepository) CountArticles(ctx context.Context, filter ArticleFilter) (int, error) {
	statement, args, err := applyFilter(sq.Select("COUNT(*)").From("articles"), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, statement, args...).Scan(&count); err != nil {
		return 0, wrap("count articles", err)
	}
	return count, nil
}

func (r *ArticleRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		BySource:   make(map[string]int),
		ByCategory: make(map[string]int),
	}

	var latest sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(published_at) FROM articles`).Scan(&stats.TotalArticles, &latest)
	if err != nil {
		return nil, wrap("get stats", err)
	}
	if latest.Valid {
		t, err := parseTime(latest.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse latest published_at: %w", err)
		}
		stats.LatestPublishedAt = &t
	}

	if err := r.countBy(ctx, "source_id", stats.BySource); err != nil {
		return nil, err
	}
	if err := r.countBy(ctx, "category", stats.ByCategory); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *ArticleRepository) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM articles GROUP BY `+column)
	if err != nil {
		return wrap("get stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return wrap("scan stats row", err)
		}
		into[key] = count
	}

	return wrap("iterate stats rows", rows.Err())
}

func applyFilter(query sq.SelectBuilder, filter ArticleFilter) sq.SelectBuilder {
	if filter.SourceID != "" {
		query = query.Where(sq.Eq{"source_id": filter.SourceID})
	}
	if filter.Category != "" {
		query = query.Where(sq.Eq{"category": filter.Category})
	}
	if filter.Since != nil {
		query = query.Where(sq.GtOrEq{"published_at": formatTime(*filter.Since)})
	}
	return query
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (*news.Article, error) {
	var article news.Article
	var authors, publishedAt, ingestedAt, lastSeenAt string

	err := row.Scan(
		&article.Fingerprint, &article.SourceID, &article.Category, &article.URL,
		&article.Title, &article.Body, &authors,
		&publishedAt, &ingestedAt, &lastSeenAt,
		&article.Revision, &article.ContentHash,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(authors), &article.Authors); err != nil {
		return nil, fmt.Errorf("failed to decode authors: %w", err)
	}
	if article.PublishedAt, err = parseTime(publishedAt); err != nil {
		return nil, fmt.Errorf("failed to parse published_at: %w", err)
	}
	if article.IngestedAt, err = parseTime(ingestedAt); err != nil {
		return nil, fmt.Errorf("failed to parse ingested_at: %w", err)
	}
	if article.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
		return nil, fmt.Errorf("failed to parse last_seen_at: %w", err)
	}

	return &article, nil
}
