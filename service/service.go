package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jupark12/go-transcription-queue/config"
	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
	"github.com/jupark12/go-transcription-queue/queue"
	"github.com/jupark12/go-transcription-queue/store"
)

const interruptedMessage = "processing was interrupted by a service restart, retry the job"

type Service struct {
	store      store.JobStore
	validator  UploadValidator
	cleaner    FileCleaner
	dispatcher Dispatcher
	log        logger.AppLogger

	uploadDir   string
	enqueueWait time.Duration
	now         func() time.Time
	notify      func(job *models.TranscriptionJob)

	// serializes the read-check-write of retries
	retryMu sync.Mutex
}

var _ JobService = (*Service)(nil)

func NewService(
	cfg config.Config,
	st store.JobStore,
	validator UploadValidator,
	cleaner FileCleaner,
	dispatcher Dispatcher,
	log logger.AppLogger,
) *Service {
	return &Service{
		store:       st,
		validator:   validator,
		cleaner:     cleaner,
		dispatcher:  dispatcher,
		log:         log.With(slog.String("service", "jobs")),
		uploadDir:   cfg.UploadDir,
		enqueueWait: cfg.EnqueueWait(),
		now:         time.Now,
		notify:      func(*models.TranscriptionJob) {},
	}
}

// SetNotifier registers a callback fired when a job is created or re-queued.
func (s *Service) SetNotifier(fn func(job *models.TranscriptionJob)) {
	if fn == nil {
		fn = func(*models.TranscriptionJob) {}
	}
	s.notify = fn
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*models.TranscriptionJob, error) {
	if err := validateSegmentSeconds(req.MaxSegmentSeconds); err != nil {
		return nil, err
	}
	fileName, err := SanitizeFileName(req.FileName)
	if err != nil {
		return nil, err
	}
	info, err := s.validator.Validate(req.Data, fileName)
	if err != nil {
		return nil, &ValidationError{Message: "invalid audio file", Err: err}
	}

	path, err := s.saveUpload(req.Data, info.Extension)
	if err != nil {
		return nil, err
	}

	job := &models.TranscriptionJob{
		ID:            uuid.NewString(),
		FileName:      fileName,
		FilePath:      path,
		Status:        models.StatusUploaded,
		CreatedAt:     s.now().UTC(),
		FileSizeBytes: int64(len(req.Data)),
	}
	if strings.TrimSpace(req.Language) != "" {
		if lang, ok := NormalizeLanguage(req.Language); ok {
			job.Language = &lang
		} else {
			s.log.Warn("ignoring invalid language hint, expected 2-3 letters such as pt, en, es",
				slog.String("language", req.Language))
		}
	}

	if err := s.store.Create(ctx, job); err != nil {
		s.cleaner.DeleteFileAndChunks(path)
		return nil, &StorageError{Op: "create job", Err: err}
	}

	if err := s.dispatch(ctx, job.ID, req.MaxSegmentSeconds); err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			s.log.Error("error delete undispatched job", delErr, slog.String("job_id", job.ID))
		}
		s.cleaner.DeleteFileAndChunks(path)
		return nil, err
	}

	s.log.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("file_name", fileName),
		slog.String("mime", info.MIME),
		slog.Int64("size_mb", job.FileSizeBytes/(1024*1024)),
		slog.Duration("duration", info.Duration))
	s.notify(job.Clone())
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*models.TranscriptionJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context, status *models.JobStatus) ([]*models.TranscriptionJob, error) {
	var (
		jobs []*models.TranscriptionJob
		err  error
	)
	if status != nil {
		jobs, err = s.store.ListByStatus(ctx, *status)
	} else {
		jobs, err = s.store.List(ctx)
	}
	if err != nil {
		return nil, &StorageError{Op: "list jobs", Err: err}
	}
	return jobs, nil
}

// DeleteJob removes the record first, then the original file and any chunks.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return s.lookupError(id, err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return s.lookupError(id, err)
	}
	s.cleaner.DeleteFileAndChunks(job.FilePath)
	s.log.Info("job deleted", slog.String("job_id", id))
	return nil
}

func (s *Service) RetryJob(ctx context.Context, id string, maxSegmentSeconds int) (*models.TranscriptionJob, error) {
	if err := validateSegmentSeconds(maxSegmentSeconds); err != nil {
		return nil, err
	}

	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	if err := retryAllowed(job.Status); err != nil {
		return nil, err
	}

	previous := job.Clone()
	s.cleaner.DeleteChunkDirectory(job.FilePath)
	if err := job.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, job); err != nil {
		return nil, &StorageError{Op: "reset job", Err: err}
	}

	if err := s.dispatch(ctx, job.ID, maxSegmentSeconds); err != nil {
		if restoreErr := s.store.Update(context.WithoutCancel(ctx), previous); restoreErr != nil {
			s.log.Error("error restore job after failed retry", restoreErr, slog.String("job_id", id))
		}
		return nil, err
	}

	s.log.Info("job queued for retry", slog.String("job_id", id))
	s.notify(job.Clone())
	return job, nil
}

func (s *Service) GetStatistics(ctx context.Context) (models.Statistics, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return models.Statistics{}, &StorageError{Op: "count jobs", Err: err}
	}
	counts := make(map[models.JobStatus]int64, 3)
	for _, status := range []models.JobStatus{models.StatusProcessing, models.StatusDone, models.StatusError} {
		n, err := s.store.CountByStatus(ctx, status)
		if err != nil {
			return models.Statistics{}, &StorageError{Op: "count jobs", Err: err}
		}
		counts[status] = n
	}
	return models.NewStatistics(total, counts[models.StatusProcessing], counts[models.StatusDone], counts[models.StatusError]), nil
}

// Recover runs once at startup, before uploads are accepted. Jobs left in PROCESSING by a
// crash move to ERROR so they can be retried. Jobs still UPLOADED are dispatched again with
// the default segment duration.
func (s *Service) Recover(ctx context.Context) (interrupted, requeued int, err error) {
	processing, err := s.store.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return 0, 0, &StorageError{Op: "list processing jobs", Err: err}
	}
	for _, job := range processing {
		s.cleaner.DeleteChunkDirectory(job.FilePath)
		if err := job.MarkError(interruptedMessage, s.now().UTC()); err != nil {
			return interrupted, requeued, err
		}
		if err := s.store.Update(ctx, job); err != nil {
			return interrupted, requeued, &StorageError{Op: "mark interrupted job", Err: err}
		}
		interrupted++
	}

	uploaded, err := s.store.ListByStatus(ctx, models.StatusUploaded)
	if err != nil {
		return interrupted, 0, &StorageError{Op: "list uploaded jobs", Err: err}
	}
	// oldest first keeps submission order
	for i := len(uploaded) - 1; i >= 0; i-- {
		if err := s.dispatch(ctx, uploaded[i].ID, 0); err != nil {
			return interrupted, requeued, err
		}
		requeued++
	}

	s.log.Info("jobs recovered", slog.Int("interrupted", interrupted), slog.Int("requeued", requeued))
	return interrupted, requeued, nil
}

func (s *Service) dispatch(ctx context.Context, jobID string, maxSegmentSeconds int) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.enqueueWait)
	defer cancel()
	if err := s.dispatcher.Enqueue(waitCtx, queue.Task{JobID: jobID, MaxSegmentSeconds: maxSegmentSeconds}); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobID, err)
	}
	return nil
}

// saveUpload stores bytes under <millis>_<8 hex><ext> in the upload dir.
func (s *Service) saveUpload(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", &StorageError{Op: "create upload directory", Err: err}
	}
	name := fmt.Sprintf("%d_%s%s", s.now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8], ext)
	path := filepath.Join(s.uploadDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(path)
		return "", &StorageError{Op: "save upload", Err: err}
	}
	return path, nil
}

func (s *Service) lookupError(id string, err error) error {
	if errors.Is(err, store.ErrJobNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &StorageError{Op: "load job", Err: err}
}

func retryAllowed(status models.JobStatus) error {
	switch status {
	case models.StatusError:
		return nil
	case models.StatusProcessing:
		return &InvalidStateError{Status: status, Message: "job is still processing, wait for it to finish before retrying"}
	case models.StatusDone:
		return &InvalidStateError{Status: status, Message: "job already completed successfully, there is nothing to retry"}
	default:
		return &InvalidStateError{Status: status, Message: "only failed jobs can be retried, current status: " + string(status)}
	}
}

func validateSegmentSeconds(secs int) error {
	if secs == 0 {
		return nil
	}
	if secs < config.MinSegmentSeconds || secs > config.MaxSegmentSeconds {
		return &ValidationError{Message: fmt.Sprintf("max_segment_seconds must be between %d and %d, got %d",
			config.MinSegmentSeconds, config.MaxSegmentSeconds, secs)}
	}
	return nil
}
