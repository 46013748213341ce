package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mangatint/worker/batch"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	items JSONB,
	settings JSONB,
	current_page INT NOT NULL DEFAULT 0,
	total_pages INT NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	errors JSONB,
	results JSONB,
	output_dir TEXT NOT NULL DEFAULT '',
	archive_path TEXT NOT NULL DEFAULT '',
	eta_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
)`

const jobColumns = `id, trace_id, status, items, settings, current_page, total_pages, message, errors, results, output_dir, archive_path, eta_seconds, cancel_requested, created_at, started_at, completed_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, jobsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init jobs schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Create(ctx context.Context, job *batch.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		job.ID,
		job.TraceID,
		job.Status,
		job.Items,
		job.Settings,
		job.Current,
		job.Total,
		job.Message,
		job.Errors,
		job.Results,
		job.OutputDir,
		job.ArchivePath,
		job.ETASeconds,
		job.CancelRequested,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*batch.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*batch.Job) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
	job, err := scanJob(row)
	if err != nil {
		return err
	}

	if err := fn(job); err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET trace_id = $1, status = $2, items = $3, settings = $4, current_page = $5,
		    total_pages = $6, message = $7, errors = $8, results = $9, output_dir = $10,
		    archive_path = $11, eta_seconds = $12, cancel_requested = $13, started_at = $14,
		    completed_at = $15
		WHERE id = $16
	`

	_, err = tx.Exec(ctx, query,
		job.TraceID,
		job.Status,
		job.Items,
		job.Settings,
		job.Current,
		job.Total,
		job.Message,
		job.Errors,
		job.Results,
		job.OutputDir,
		job.ArchivePath,
		job.ETASeconds,
		job.CancelRequested,
		job.StartedAt,
		job.CompletedAt,
		id,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*batch.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*batch.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*batch.Job, error) {
	var job batch.Job
	err := row.Scan(
		&job.ID,
		&job.TraceID,
		&job.Status,
		&job.Items,
		&job.Settings,
		&job.Current,
		&job.Total,
		&job.Message,
		&job.Errors,
		&job.Results,
		&job.OutputDir,
		&job.ArchivePath,
		&job.ETASeconds,
		&job.CancelRequested,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}
