package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dunamismax/tileflow/internal/domain"
)

const renderSchemaSQL = `
CREATE TABLE IF NOT EXISTS render_log (
	id BIGSERIAL PRIMARY KEY,
	job_id TEXT NOT NULL,
	identifier TEXT NOT NULL,
	request TEXT NOT NULL,
	status TEXT NOT NULL,
	output_key TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	bytes BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS render_log_job_idx ON render_log (job_id, id DESC);
CREATE INDEX IF NOT EXISTS render_log_identifier_idx ON render_log (identifier, id DESC);
`

const renderColumns = `job_id, identifier, request, status, output_key, format, width, height, bytes, duration_ms, error, created_at`

type PostgresRenderStore struct {
	db *sql.DB
}

func NewPostgresRenderStore(ctx context.Context, dsn string) (*PostgresRenderStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresRenderStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresRenderStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, renderSchemaSQL); err != nil {
		return fmt.Errorf("ensure render_log schema: %w", err)
	}
	return nil
}

func (s *PostgresRenderStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRenderStore) Record(ctx context.Context, rec domain.RenderRecord) error {
	if rec.JobID == "" {
		return ErrMissingJobID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO render_log (`+renderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.JobID,
		rec.Identifier,
		rec.Request,
		rec.Status,
		rec.OutputKey,
		rec.Format,
		rec.Width,
		rec.Height,
		rec.Bytes,
		rec.DurationMS,
		rec.Error,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert render record: %w", err)
	}
	return nil
}

func (s *PostgresRenderStore) Latest(ctx context.Context, jobID string) (domain.RenderRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+renderColumns+`
		 FROM render_log
		 WHERE job_id = $1
		 ORDER BY id DESC
		 LIMIT 1`,
		jobID,
	)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RenderRecord{}, false, nil
		}
		return domain.RenderRecord{}, false, fmt.Errorf("query render record: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresRenderStore) ByIdentifier(ctx context.Context, identifier string, limit int) ([]domain.RenderRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+renderColumns+`
		 FROM render_log
		 WHERE identifier = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		identifier,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query render records: %w", err)
	}
	defer rows.Close()

	var out []domain.RenderRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan render record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate render records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.RenderRecord, error) {
	var rec domain.RenderRecord
	err := row.Scan(
		&rec.JobID,
		&rec.Identifier,
		&rec.Request,
		&rec.Status,
		&rec.OutputKey,
		&rec.Format,
		&rec.Width,
		&rec.Height,
		&rec.Bytes,
		&rec.DurationMS,
		&rec.Error,
		&rec.CreatedAt,
	)
	return rec, err
}
