package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
)

// MemoryStore keeps jobs in a map. With a data dir every write is also persisted
// as one JSON file per job and reloaded by LoadJobs.
type MemoryStore struct {
	mu       sync.RWMutex
	jobsByID map[string]*models.TranscriptionJob
	dataDir  string
	log      logger.AppLogger
}

var _ JobStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store. An empty dataDir keeps everything in memory.
func NewMemoryStore(dataDir string, log logger.AppLogger) (*MemoryStore, error) {
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return &MemoryStore{
		jobsByID: make(map[string]*models.TranscriptionJob),
		dataDir:  dataDir,
		log:      log.With(slog.String("service", "memory_store")),
	}, nil
}

func (s *MemoryStore) Create(_ context.Context, job *models.TranscriptionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobsByID[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	if err := s.persistJob(job); err != nil {
		return err
	}
	s.jobsByID[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, job *models.TranscriptionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobsByID[job.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	if err := s.persistJob(job); err != nil {
		return err
	}
	s.jobsByID[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.TranscriptionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobsByID[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobsByID[id]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if s.dataDir != "" {
		if err := os.Remove(s.jobPath(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove job file: %w", err)
		}
	}
	delete(s.jobsByID, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.TranscriptionJob, error) {
	return s.filter(func(*models.TranscriptionJob) bool { return true }), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.JobStatus) ([]*models.TranscriptionJob, error) {
	return s.filter(func(j *models.TranscriptionJob) bool { return j.Status == status }), nil
}

func (s *MemoryStore) ListCreatedBefore(_ context.Context, before time.Time) ([]*models.TranscriptionJob, error) {
	return s.filter(func(j *models.TranscriptionJob) bool { return j.CreatedAt.Before(before) }), nil
}

func (s *MemoryStore) ListByStatusCreatedBefore(_ context.Context, status models.JobStatus, before time.Time) ([]*models.TranscriptionJob, error) {
	return s.filter(func(j *models.TranscriptionJob) bool {
		return j.Status == status && j.CreatedAt.Before(before)
	}), nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.jobsByID)), nil
}

func (s *MemoryStore) CountByStatus(_ context.Context, status models.JobStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, job := range s.jobsByID {
		if job.Status == status {
			n++
		}
	}
	return n, nil
}

// filter returns copies of matching jobs, newest first.
func (s *MemoryStore) filter(keep func(*models.TranscriptionJob) bool) []*models.TranscriptionJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.TranscriptionJob, 0, len(s.jobsByID))
	for _, job := range s.jobsByID {
		if keep(job) {
			jobs = append(jobs, job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (s *MemoryStore) jobPath(id string) string {
	return filepath.Join(s.dataDir, id+".json")
}

// persistJob saves job data to disk
func (s *MemoryStore) persistJob(job *models.TranscriptionJob) error {
	if s.dataDir == "" {
		return nil
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}

	tmp := s.jobPath(job.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write job file: %w", err)
	}
	if err := os.Rename(tmp, s.jobPath(job.ID)); err != nil {
		return fmt.Errorf("failed to write job file: %w", err)
	}
	return nil
}

// LoadJobs loads all persisted jobs from disk. Unreadable files are logged and skipped.
func (s *MemoryStore) LoadJobs() error {
	if s.dataDir == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}

		jobPath := filepath.Join(s.dataDir, file.Name())
		data, err := os.ReadFile(jobPath)
		if err != nil {
			s.log.Error("failed to read job file", err, slog.String("path", jobPath))
			continue
		}

		var job models.TranscriptionJob
		if err := json.Unmarshal(data, &job); err != nil {
			s.log.Error("failed to unmarshal job data", err, slog.String("path", jobPath))
			continue
		}
		if !job.Status.Valid() {
			s.log.Warn("skipping job with unknown status",
				slog.String("path", jobPath), slog.String("status", string(job.Status)))
			continue
		}
		s.jobsByID[job.ID] = &job
	}

	s.log.Info("loaded jobs from disk", slog.Int("count", len(s.jobsByID)))
	return nil
}
