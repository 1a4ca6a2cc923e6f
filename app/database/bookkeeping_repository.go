package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/news-comb/app/source"
)

const bookkeepingColumns = `source_id, last_attempt_at, last_success_at, consecutive_failures,
	etag, last_modified, last_status, last_error, updated_at`

// BookkeepingRepository persists per-source attempt state. It is
// independent of the articles table so a failed ingest still records
// its attempt.
type BookkeepingRepository struct {
	db *DB
}

func NewBookkeepingRepository(db *DB) *BookkeepingRepository {
	return &BookkeepingRepository{db: db}
}

func (r *BookkeepingRepository) GetBookkeeping(ctx context.Context, sourceID string) (*source.Bookkeeping, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookkeepingColumns+` FROM source_bookkeeping WHERE source_id = ?`, sourceID)

	record, err := scanBookkeeping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get bookkeeping", err)
	}

	return record, nil
}

func (r *BookkeepingRepository) ListBookkeeping(ctx context.Context) ([]source.Bookkeeping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookkeepingColumns+` FROM source_bookkeeping ORDER BY source_id`)
	if err != nil {
		return nil, wrap("list bookkeeping", err)
	}
	defer rows.Close()

	var records []source.Bookkeeping
	for rows.Next() {
		record, err := scanBookkeeping(rows)
		if err != nil {
			return nil, wrap("scan bookkeeping row", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate bookkeeping rows", err)
	}

	return records, nil
}

func (r *BookkeepingRepository) UpdateBookkeeping(ctx context.Context, record source.Bookkeeping) error {
	if record.SourceID == "" {
		return fmt.Errorf("bookkeeping record has no source id")
	}

	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO source_bookkeeping (`+bookkeepingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			last_attempt_at = excluded.last_attempt_at,
			last_success_at = excluded.last_success_at,
			consecutive_failures = excluded.consecutive_failures,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			last_status = excluded.last_status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, record.SourceID, formatTimePtr(record.LastAttemptAt), formatTimePtr(record.LastSuccessAt),
		record.ConsecutiveFailures, record.ETag, record.LastModified,
		record.LastStatus, record.LastError, formatTime(updatedAt))
	if err != nil {
		return wrap("update bookkeeping", err)
	}

	return nil
}

func scanBookkeeping(row scanner) (*source.Bookkeeping, error) {
	var record source.Bookkeeping
	var lastAttempt, lastSuccess sql.NullString
	var updatedAt string

	err := row.Scan(
		&record.SourceID, &lastAttempt, &lastSuccess, &record.ConsecutiveFailures,
		&record.ETag, &record.LastModified, &record.LastStatus, &record.LastError, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if record.LastAttemptAt, err = parseNullTime(lastAttempt); err != nil {
		return nil, fmt.Errorf("failed to parse last_attempt_at: %w", err)
	}
	if record.LastSuccessAt, err = parseNullTime(lastSuccess); err != nil {
		return nil, fmt.Errorf("failed to parse last_success_at: %w", err)
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &record, nil
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
