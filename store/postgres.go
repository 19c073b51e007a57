package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jupark12/go-transcription-queue/models"
)

const jobColumns = `id, file_name, file_path, status, transcription_text, created_at,
	completed_at, error_message, language, file_size_bytes`

const schema = `
CREATE TABLE IF NOT EXISTS transcription_jobs (
	id                 TEXT PRIMARY KEY,
	file_name          TEXT NOT NULL,
	file_path          TEXT NOT NULL,
	status             TEXT NOT NULL,
	transcription_text TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	completed_at       TIMESTAMPTZ,
	error_message      VARCHAR(1000),
	language           VARCHAR(3),
	file_size_bytes    BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transcription_jobs_status ON transcription_jobs (status);
CREATE INDEX IF NOT EXISTS idx_transcription_jobs_created_at ON transcription_jobs (created_at);
`

// PostgresStore keeps jobs in the transcription_jobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ JobStore = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the table and its indexes if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job *models.TranscriptionJob) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO transcription_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.FileName, job.FilePath, string(job.Status), job.TranscriptionText, job.CreatedAt,
		job.CompletedAt, job.ErrorMessage, job.Language, job.FileSizeBytes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, job *models.TranscriptionJob) error {
	tag, err := s.pool.Exec(ctx, `UPDATE transcription_jobs SET
		file_name = $2, file_path = $3, status = $4, transcription_text = $5,
		completed_at = $6, error_message = $7, language = $8, file_size_bytes = $9
		WHERE id = $1`,
		job.ID, job.FileName, job.FilePath, string(job.Status), job.TranscriptionText,
		job.CompletedAt, job.ErrorMessage, job.Language, job.FileSizeBytes)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.TranscriptionJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM transcription_jobs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	job, err := pgx.CollectExactlyOneRow(rows, scanJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transcription_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.TranscriptionJob, error) {
	return s.list(ctx, `TRUE`)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.TranscriptionJob, error) {
	return s.list(ctx, `status = $1`, string(status))
}

func (s *PostgresStore) ListCreatedBefore(ctx context.Context, before time.Time) ([]*models.TranscriptionJob, error) {
	return s.list(ctx, `created_at < $1`, before)
}

func (s *PostgresStore) ListByStatusCreatedBefore(ctx context.Context, status models.JobStatus, before time.Time) ([]*models.TranscriptionJob, error) {
	return s.list(ctx, `status = $1 AND created_at < $2`, string(status), before)
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transcription_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status models.JobStatus) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transcription_jobs WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]*models.TranscriptionJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM transcription_jobs WHERE `+where+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.CollectableRow) (*models.TranscriptionJob, error) {
	var (
		job    models.TranscriptionJob
		status string
	)
	err := row.Scan(&job.ID, &job.FileName, &job.FilePath, &status, &job.TranscriptionText, &job.CreatedAt,
		&job.CompletedAt, &job.ErrorMessage, &job.Language, &job.FileSizeBytes)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	return &job, nil
}
