package cleanup

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jupark12/go-transcription-queue/audio"
	"github.com/jupark12/go-transcription-queue/config"
	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
	"github.com/jupark12/go-transcription-queue/store"
)

const day = 24 * time.Hour

// StorageReport is a point-in-time view of disk and job usage.
type StorageReport struct {
	UploadsBytes int64
	Total        int64
	Processing   int64
	Completed    int64
	Errors       int64
}

// Sweeper applies the retention policy on a schedule.
type Sweeper struct {
	store store.JobStore
	files *Coordinator
	cfg   config.Cleanup
	log   logger.AppLogger
	now   func() time.Time
}

func NewSweeper(st store.JobStore, files *Coordinator, cfg config.Cleanup, log logger.AppLogger) *Sweeper {
	return &Sweeper{
		store: st,
		files: files,
		cfg:   cfg,
		log:   log.With(slog.String("service", "sweeper")),
		now:   time.Now,
	}
}

// Run blocks until ctx is done, firing each task on its own interval.
// A zero interval disables the task.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("retention sweeps are disabled")
		return
	}

	oldJobs := newTicker(s.cfg.OldJobsEveryHours)
	orphans := newTicker(s.cfg.OrphansEveryHours)
	chunks := newTicker(s.cfg.ChunksEveryHours)
	report := newTicker(s.cfg.ReportEveryHours)
	defer func() {
		for _, t := range []*time.Ticker{oldJobs, orphans, chunks, report} {
			if t != nil {
				t.Stop()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick(oldJobs):
			s.CleanOldJobs(ctx)
			s.CleanOldErrorJobs(ctx)
		case <-tick(orphans):
			s.CleanOrphanedChunks(ctx)
		case <-tick(chunks):
			s.CleanCompletedJobChunks(ctx)
		case <-tick(report):
			_, _ = s.StorageReport(ctx)
		}
	}
}

// CleanOldJobs deletes jobs and their files older than the retention period.
// Jobs still in PROCESSING are left alone.
func (s *Sweeper) CleanOldJobs(ctx context.Context) int {
	cutoff := s.now().Add(-time.Duration(s.cfg.RetentionDays) * day)
	jobs, err := s.store.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("error get old jobs", err)
		return 0
	}

	deleted, freed := s.deleteJobs(ctx, jobs)
	s.log.Info("old jobs cleaned",
		slog.Int("retention_days", s.cfg.RetentionDays),
		slog.Int("deleted", deleted),
		slog.Int64("freed_mb", freed/(1024*1024)))
	return deleted
}

// CleanOldErrorJobs deletes failed jobs sooner than the general retention period.
func (s *Sweeper) CleanOldErrorJobs(ctx context.Context) int {
	cutoff := s.now().Add(-time.Duration(s.cfg.ErrorRetentionDays) * day)
	jobs, err := s.store.ListByStatusCreatedBefore(ctx, models.StatusError, cutoff)
	if err != nil {
		s.log.Error("error get old failed jobs", err)
		return 0
	}

	deleted, _ := s.deleteJobs(ctx, jobs)
	s.log.Info("old failed jobs cleaned",
		slog.Int("retention_days", s.cfg.ErrorRetentionDays),
		slog.Int("deleted", deleted))
	return deleted
}

// CleanOrphanedChunks removes chunk directories not owned by a job in PROCESSING.
func (s *Sweeper) CleanOrphanedChunks(ctx context.Context) int {
	processing, err := s.store.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		s.log.Error("error get processing jobs", err)
		return 0
	}
	active := make(map[string]struct{}, len(processing))
	for _, job := range processing {
		active[filepath.Base(audio.ChunkDir(job.FilePath))] = struct{}{}
	}

	removed := s.files.CleanOrphanedChunkDirs(active)
	s.log.Info("orphaned chunks cleaned", slog.Int("removed", removed))
	return removed
}

// CleanCompletedJobChunks removes any chunk directory still left next to a DONE job.
func (s *Sweeper) CleanCompletedJobChunks(ctx context.Context) int {
	done, err := s.store.ListByStatus(ctx, models.StatusDone)
	if err != nil {
		s.log.Error("error get completed jobs", err)
		return 0
	}
	for _, job := range done {
		s.files.DeleteChunkDirectory(job.FilePath)
	}
	s.log.Info("completed job chunks cleaned", slog.Int("jobs", len(done)))
	return len(done)
}

// StorageReport logs and returns disk usage and job counts.
func (s *Sweeper) StorageReport(ctx context.Context) (StorageReport, error) {
	report := StorageReport{UploadsBytes: s.files.UploadsDirSize()}

	var err error
	if report.Total, err = s.store.Count(ctx); err != nil {
		s.log.Error("error count jobs", err)
		return StorageReport{}, err
	}
	counts := map[models.JobStatus]*int64{
		models.StatusProcessing: &report.Processing,
		models.StatusDone:       &report.Completed,
		models.StatusError:      &report.Errors,
	}
	for status, dst := range counts {
		if *dst, err = s.store.CountByStatus(ctx, status); err != nil {
			s.log.Error("error count jobs", err, slog.String("status", string(status)))
			return StorageReport{}, err
		}
	}

	s.log.Info("storage report",
		slog.Int64("uploads_mb", report.UploadsBytes/(1024*1024)),
		slog.Int64("total_jobs", report.Total),
		slog.Int64("processing", report.Processing),
		slog.Int64("completed", report.Completed),
		slog.Int64("errors", report.Errors))
	return report, nil
}

func (s *Sweeper) deleteJobs(ctx context.Context, jobs []*models.TranscriptionJob) (deleted int, freed int64) {
	for _, job := range jobs {
		if job.IsProcessing() {
			continue
		}
		if err := s.store.Delete(ctx, job.ID); err != nil {
			s.log.Error("error delete job", err, slog.String("job_id", job.ID))
			continue
		}
		s.files.DeleteFileAndChunks(job.FilePath)
		deleted++
		freed += job.FileSizeBytes
	}
	return deleted, freed
}

func newTicker(hours int) *time.Ticker {
	if hours <= 0 {
		return nil
	}
	return time.NewTicker(time.Duration(hours) * time.Hour)
}

// tick returns a nil channel for a disabled ticker, which never fires in a select.
func tick(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
