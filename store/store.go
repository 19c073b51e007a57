package store

import (
	"context"
	"errors"
	"time"

	"github.com/jupark12/go-transcription-queue/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// JobStore persists job records. Implementations hand out copies, never shared pointers.
type JobStore interface {
	Create(ctx context.Context, job *models.TranscriptionJob) error
	Update(ctx context.Context, job *models.TranscriptionJob) error
	Get(ctx context.Context, id string) (*models.TranscriptionJob, error)
	Delete(ctx context.Context, id string) error

	// List returns jobs newest first.
	List(ctx context.Context) ([]*models.TranscriptionJob, error)
	ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.TranscriptionJob, error)
	ListCreatedBefore(ctx context.Context, before time.Time) ([]*models.TranscriptionJob, error)
	ListByStatusCreatedBefore(ctx context.Context, status models.JobStatus, before time.Time) ([]*models.TranscriptionJob, error)

	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status models.JobStatus) (int64, error)
}
