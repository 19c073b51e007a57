package service

import (
	"context"

	"github.com/jupark12/go-transcription-queue/audio"
	"github.com/jupark12/go-transcription-queue/models"
	"github.com/jupark12/go-transcription-queue/queue"
)

// JobService is the inbound API of the transcription pipeline.
type JobService interface {
	CreateJob(ctx context.Context, req CreateJobRequest) (*models.TranscriptionJob, error)
	GetJob(ctx context.Context, id string) (*models.TranscriptionJob, error)
	// ListJobs returns every job, or only those in status when it is set.
	ListJobs(ctx context.Context, status *models.JobStatus) ([]*models.TranscriptionJob, error)
	DeleteJob(ctx context.Context, id string) error
	// RetryJob accepts only jobs in ERROR. A zero maxSegmentSeconds uses the default.
	RetryJob(ctx context.Context, id string, maxSegmentSeconds int) (*models.TranscriptionJob, error)
	GetStatistics(ctx context.Context) (models.Statistics, error)
}

// Dispatcher hands a job to the worker pool.
type Dispatcher interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

type UploadValidator interface {
	Validate(data []byte, fileName string) (audio.FileInfo, error)
}

// FileCleaner removes job files. Both calls are best effort.
type FileCleaner interface {
	DeleteChunkDirectory(originalFilePath string)
	DeleteFileAndChunks(originalFilePath string)
}

// CreateJobRequest is one upload. Language is free-form; MaxSegmentSeconds zero means the default.
type CreateJobRequest struct {
	Data              []byte
	FileName          string
	Language          string
	MaxSegmentSeconds int
}
