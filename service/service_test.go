package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jupark12/go-transcription-queue/audio"
	"github.com/jupark12/go-transcription-queue/cleanup"
	"github.com/jupark12/go-transcription-queue/config"
	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
	"github.com/jupark12/go-transcription-queue/queue"
	"github.com/jupark12/go-transcription-queue/service"
	"github.com/jupark12/go-transcription-queue/store"
	"github.com/stretchr/testify/require"
)

var mp3Data = append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), make([]byte, 2048)...)

type fixture struct {
	ctx   context.Context
	cfg   config.Config
	store *store.MemoryStore
	queue *queue.JobQueue
	srv   *service.Service
}

func newFixture(t *testing.T, queueCapacity int) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.UploadDir = filepath.Join(t.TempDir(), "uploads")
	cfg.EnqueueWaitMS = 20

	st, err := store.NewMemoryStore("", logger.NewDiscard())
	require.NoError(t, err)
	q := queue.NewJobQueue(queueCapacity)

	srv := service.NewService(cfg, st,
		audio.NewValidator(cfg.MaxFileSizeBytes()),
		cleanup.NewCoordinator(cfg.UploadDir, logger.NewDiscard()),
		q, logger.NewDiscard())
	return &fixture{ctx: context.Background(), cfg: cfg, store: st, queue: q, srv: srv}
}

func (f *fixture) create(t *testing.T) *models.TranscriptionJob {
	t.Helper()
	job, err := f.srv.CreateJob(f.ctx, service.CreateJobRequest{Data: mp3Data, FileName: "talk.mp3"})
	require.NoError(t, err)
	<-f.queue.Tasks()
	return job
}

// setStatus drives a job through valid transitions to the wanted status.
func (f *fixture) setStatus(t *testing.T, id string, status models.JobStatus) *models.TranscriptionJob {
	t.Helper()
	job, err := f.store.Get(f.ctx, id)
	require.NoError(t, err)
	require.NoError(t, job.MarkProcessing())
	switch status {
	case models.StatusDone:
		require.NoError(t, job.MarkDone("A\n", time.Now()))
	case models.StatusError:
		require.NoError(t, job.MarkError("provider unavailable", time.Now()))
	}
	require.NoError(t, f.store.Update(f.ctx, job))
	return job
}

func TestCreateJob(t *testing.T) {
	// given
	f := newFixture(t, 5)

	// when
	job, err := f.srv.CreateJob(f.ctx, service.CreateJobRequest{
		Data:              mp3Data,
		FileName:          `C:\Users\me\Minha Reunião (1).MP3`,
		Language:          " PT ",
		MaxSegmentSeconds: 300,
	})

	// then
	require.NoError(t, err)
	require.Equal(t, models.StatusUploaded, job.Status)
	require.Equal(t, "Minha_Reuni_o_1_.MP3", job.FileName)
	require.Equal(t, "pt", *job.Language)
	require.Equal(t, int64(len(mp3Data)), job.FileSizeBytes)
	require.Nil(t, job.CompletedAt)
	require.Regexp(t, regexp.MustCompile(`^\d{13}_[0-9a-f]{8}\.mp3$`), filepath.Base(job.FilePath))
	require.FileExists(t, job.FilePath)

	stored, err := f.store.Get(f.ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job, stored)

	task := <-f.queue.Tasks()
	require.Equal(t, queue.Task{JobID: job.ID, MaxSegmentSeconds: 300}, task)
}

func TestCreateJob_DropsInvalidLanguage(t *testing.T) {
	f := newFixture(t, 5)

	for _, lang := range []string{"english", "e", "p1", "pt-BR"} {
		job, err := f.srv.CreateJob(f.ctx, service.CreateJobRequest{Data: mp3Data, FileName: "a.mp3", Language: lang})
		require.NoError(t, err, lang)
		require.Nil(t, job.Language, lang)
		<-f.queue.Tasks()
	}
}

func TestCreateJob_Rejections(t *testing.T) {
	cases := map[string]service.CreateJobRequest{
		"segment too short":  {Data: mp3Data, FileName: "a.mp3", MaxSegmentSeconds: 59},
		"segment too long":   {Data: mp3Data, FileName: "a.mp3", MaxSegmentSeconds: 3601},
		"reserved name":      {Data: mp3Data, FileName: "con.mp3"},
		"bad extension":      {Data: mp3Data, FileName: "a.txt"},
		"overlong extension": {Data: mp3Data, FileName: "a." + strings.Repeat("b", 220)},
		"not audio":          {Data: []byte("plain text pretending"), FileName: "a.mp3"},
		"empty":              {Data: nil, FileName: "a.mp3"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 5)

			_, err := f.srv.CreateJob(f.ctx, req)

			var vErr *service.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			n, _ := f.store.Count(f.ctx)
			require.Zero(t, n)
			require.Zero(t, f.queue.Len())
		})
	}
}

func TestCreateJob_QueueFullLeavesNothingBehind(t *testing.T) {
	// given
	f := newFixture(t, 1)
	require.NoError(t, f.queue.Enqueue(f.ctx, queue.Task{JobID: "blocker"}))

	// when
	_, err := f.srv.CreateJob(f.ctx, service.CreateJobRequest{Data: mp3Data, FileName: "a.mp3"})

	// then
	require.ErrorIs(t, err, queue.ErrQueueFull)
	n, _ := f.store.Count(f.ctx)
	require.Zero(t, n)
	entries, _ := os.ReadDir(f.cfg.UploadDir)
	require.Empty(t, entries)
}

func TestCreateJob_StorageFailure(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.cfg.UploadDir), 0o755))
	require.NoError(t, os.WriteFile(f.cfg.UploadDir, []byte("not a dir"), 0o644))

	_, err := f.srv.CreateJob(f.ctx, service.CreateJobRequest{Data: mp3Data, FileName: "a.mp3"})

	var sErr *service.StorageError
	require.True(t, errors.As(err, &sErr))
	n, _ := f.store.Count(f.ctx)
	require.Zero(t, n)
}

func TestGetJob_NotFound(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.srv.GetJob(f.ctx, "missing")

	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestDeleteJob(t *testing.T) {
	// given
	f := newFixture(t, 5)
	job := f.create(t)
	require.NoError(t, os.MkdirAll(audio.ChunkDir(job.FilePath), 0o755))

	// when
	require.NoError(t, f.srv.DeleteJob(f.ctx, job.ID))

	// then
	_, err := f.srv.GetJob(f.ctx, job.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
	require.NoFileExists(t, job.FilePath)
	require.NoDirExists(t, audio.ChunkDir(job.FilePath))
	require.ErrorIs(t, f.srv.DeleteJob(f.ctx, job.ID), service.ErrNotFound)
}

func TestRetryJob(t *testing.T) {
	// given
	f := newFixture(t, 5)
	job := f.create(t)
	f.setStatus(t, job.ID, models.StatusError)
	stale := filepath.Join(audio.ChunkDir(job.FilePath), "stale_000.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	// when
	retried, err := f.srv.RetryJob(f.ctx, job.ID, 900)

	// then
	require.NoError(t, err)
	require.Equal(t, models.StatusUploaded, retried.Status)
	require.Nil(t, retried.ErrorMessage)
	require.Nil(t, retried.TranscriptionText)
	require.Nil(t, retried.CompletedAt)
	require.NoDirExists(t, audio.ChunkDir(job.FilePath))
	require.FileExists(t, job.FilePath)
	require.Equal(t, queue.Task{JobID: job.ID, MaxSegmentSeconds: 900}, <-f.queue.Tasks())

	stored, err := f.store.Get(f.ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusUploaded, stored.Status)
}

func TestRetryJob_RejectsOtherStates(t *testing.T) {
	for _, status := range []models.JobStatus{models.StatusUploaded, models.StatusProcessing, models.StatusDone} {
		t.Run(string(status), func(t *testing.T) {
			// given
			f := newFixture(t, 5)
			job := f.create(t)
			if status != models.StatusUploaded {
				f.setStatus(t, job.ID, status)
			}
			before, err := f.store.Get(f.ctx, job.ID)
			require.NoError(t, err)

			// when
			_, err = f.srv.RetryJob(f.ctx, job.ID, 0)

			// then
			require.ErrorIs(t, err, service.ErrInvalidState)
			var isErr *service.InvalidStateError
			require.True(t, errors.As(err, &isErr))
			require.Equal(t, status, isErr.Status)
			after, err := f.store.Get(f.ctx, job.ID)
			require.NoError(t, err)
			require.Equal(t, before, after, "job is unmodified")
			require.Zero(t, f.queue.Len())
		})
	}
}

func TestRetryJob_DistinctMessages(t *testing.T) {
	f := newFixture(t, 5)
	processing := f.create(t)
	f.setStatus(t, processing.ID, models.StatusProcessing)
	done := f.create(t)
	f.setStatus(t, done.ID, models.StatusDone)

	_, errProcessing := f.srv.RetryJob(f.ctx, processing.ID, 0)
	_, errDone := f.srv.RetryJob(f.ctx, done.ID, 0)

	require.NotEqual(t, errProcessing.Error(), errDone.Error())
}

func TestRetryJob_QueueFullRestoresError(t *testing.T) {
	// given
	f := newFixture(t, 1)
	job := f.create(t)
	failed := f.setStatus(t, job.ID, models.StatusError)
	require.NoError(t, f.queue.Enqueue(f.ctx, queue.Task{JobID: "blocker"}))

	// when
	_, err := f.srv.RetryJob(f.ctx, job.ID, 0)

	// then
	require.ErrorIs(t, err, queue.ErrQueueFull)
	stored, err := f.store.Get(f.ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, failed, stored)
}

func TestRetryJob_NotFoundAndValidation(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.srv.RetryJob(f.ctx, "missing", 0)
	require.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.srv.RetryJob(f.ctx, "missing", 10)
	var vErr *service.ValidationError
	require.True(t, errors.As(err, &vErr))
}

func TestGetStatistics(t *testing.T) {
	// given
	f := newFixture(t, 20)
	statuses := []models.JobStatus{
		models.StatusProcessing, models.StatusProcessing,
		models.StatusDone, models.StatusDone, models.StatusDone, models.StatusDone,
		models.StatusDone, models.StatusDone, models.StatusDone,
		models.StatusError,
	}
	for _, status := range statuses {
		job := f.create(t)
		f.setStatus(t, job.ID, status)
	}

	// when
	stats, err := f.srv.GetStatistics(f.ctx)

	// then
	require.NoError(t, err)
	require.Equal(t, models.NewStatistics(10, 2, 7, 1), stats)
	require.Equal(t, 70.0, stats.SuccessRate)
	require.Equal(t, 10.0, stats.ErrorRate)
}

func TestGetStatistics_Empty(t *testing.T) {
	f := newFixture(t, 5)

	stats, err := f.srv.GetStatistics(f.ctx)

	require.NoError(t, err)
	require.Zero(t, stats.SuccessRate)
	require.Zero(t, stats.ErrorRate)
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, 5)
	first := f.create(t)
	second := f.create(t)
	f.setStatus(t, second.ID, models.StatusDone)

	all, err := f.srv.ListJobs(f.ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	done := models.StatusDone
	onlyDone, err := f.srv.ListJobs(f.ctx, &done)
	require.NoError(t, err)
	require.Len(t, onlyDone, 1)
	require.Equal(t, second.ID, onlyDone[0].ID)
	require.NotEqual(t, first.ID, onlyDone[0].ID)
}

func TestRecover(t *testing.T) {
	// given
	f := newFixture(t, 5)
	interrupted := f.create(t)
	f.setStatus(t, interrupted.ID, models.StatusProcessing)
	require.NoError(t, os.MkdirAll(audio.ChunkDir(interrupted.FilePath), 0o755))
	pending := f.create(t)

	// when
	nInterrupted, nRequeued, err := f.srv.Recover(f.ctx)

	// then
	require.NoError(t, err)
	require.Equal(t, 1, nInterrupted)
	require.Equal(t, 1, nRequeued)

	got, err := f.store.Get(f.ctx, interrupted.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusError, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NoDirExists(t, audio.ChunkDir(interrupted.FilePath))
	require.Equal(t, pending.ID, (<-f.queue.Tasks()).JobID)
}
