package cleanup_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jupark12/go-transcription-queue/audio"
	"github.com/jupark12/go-transcription-queue/cleanup"
	"github.com/jupark12/go-transcription-queue/config"
	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
	"github.com/jupark12/go-transcription-queue/store"
	"github.com/stretchr/testify/require"
)

// uploadWithChunks writes an original file plus a chunk directory holding two chunks.
func uploadWithChunks(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o644))
	chunkDir := audio.ChunkDir(path)
	require.NoError(t, os.MkdirAll(chunkDir, 0o755))
	for _, c := range []string{"_000.mp3", "_001.mp3"} {
		base := name[:len(name)-len(filepath.Ext(name))]
		require.NoError(t, os.WriteFile(filepath.Join(chunkDir, base+c), []byte("chunk"), 0o644))
	}
	return path
}

// backdate moves the chunk directory of path out of the orphan grace period.
func backdate(t *testing.T, path string) {
	t.Helper()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(audio.ChunkDir(path), old, old))
}

func TestCoordinator_DeleteChunkDirectoryKeepsOriginal(t *testing.T) {
	// given
	dir := t.TempDir()
	path := uploadWithChunks(t, dir, "1_a.mp3")
	c := cleanup.NewCoordinator(dir, logger.NewDiscard())

	// when
	c.DeleteChunkDirectory(path)
	c.DeleteChunkDirectory(path)

	// then
	require.NoDirExists(t, audio.ChunkDir(path))
	require.FileExists(t, path)
}

func TestCoordinator_DeleteFileAndChunks(t *testing.T) {
	dir := t.TempDir()
	path := uploadWithChunks(t, dir, "1_a.mp3")
	c := cleanup.NewCoordinator(dir, logger.NewDiscard())

	c.DeleteFileAndChunks(path)
	c.DeleteFileAndChunks(path)
	c.DeleteFileAndChunks("")

	require.NoFileExists(t, path)
	require.NoDirExists(t, audio.ChunkDir(path))
}

func TestCoordinator_CleanOrphanedChunkDirs(t *testing.T) {
	// given
	dir := t.TempDir()
	active := uploadWithChunks(t, dir, "1_active.mp3")
	orphan := uploadWithChunks(t, dir, "2_orphan.mp3")
	backdate(t, active)
	backdate(t, orphan)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "unrelated"), 0o755))
	c := cleanup.NewCoordinator(dir, logger.NewDiscard())

	// when
	removed := c.CleanOrphanedChunkDirs(map[string]struct{}{
		filepath.Base(audio.ChunkDir(active)): {},
	})

	// then
	require.Equal(t, 1, removed)
	require.DirExists(t, audio.ChunkDir(active))
	require.NoDirExists(t, audio.ChunkDir(orphan))
	require.FileExists(t, orphan)
	require.DirExists(t, filepath.Join(dir, "unrelated"))
}

func TestCoordinator_CleanOrphanedChunkDirsKeepsRecentDirs(t *testing.T) {
	// given
	dir := t.TempDir()
	stale := uploadWithChunks(t, dir, "1_stale.mp3")
	backdate(t, stale)
	starting := uploadWithChunks(t, dir, "2_starting.mp3")
	c := cleanup.NewCoordinator(dir, logger.NewDiscard())

	// when
	removed := c.CleanOrphanedChunkDirs(map[string]struct{}{})

	// then
	require.Equal(t, 1, removed)
	require.NoDirExists(t, audio.ChunkDir(stale))
	require.DirExists(t, audio.ChunkDir(starting))
}

func TestCoordinator_UploadsDirSize(t *testing.T) {
	dir := t.TempDir()
	uploadWithChunks(t, dir, "1_a.mp3")

	require.Equal(t, int64(1024+2*len("chunk")), cleanup.NewCoordinator(dir, logger.NewDiscard()).UploadsDirSize())
	require.Zero(t, cleanup.NewCoordinator(filepath.Join(dir, "missing"), logger.NewDiscard()).UploadsDirSize())
}

type sweepFixture struct {
	dir     string
	store   *store.MemoryStore
	sweeper *cleanup.Sweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewMemoryStore("", logger.NewDiscard())
	require.NoError(t, err)
	cfg := config.Default().Cleanup
	files := cleanup.NewCoordinator(dir, logger.NewDiscard())
	return &sweepFixture{dir: dir, store: st, sweeper: cleanup.NewSweeper(st, files, cfg, logger.NewDiscard())}
}

func (f *sweepFixture) addJob(t *testing.T, status models.JobStatus, age time.Duration) *models.TranscriptionJob {
	t.Helper()
	id := uuid.NewString()
	job := &models.TranscriptionJob{
		ID:            id,
		FileName:      "talk.mp3",
		FilePath:      uploadWithChunks(t, f.dir, id+".mp3"),
		Status:        status,
		CreatedAt:     time.Now().Add(-age),
		FileSizeBytes: 1024,
	}
	require.NoError(t, f.store.Create(context.Background(), job))
	return job
}

func (f *sweepFixture) exists(t *testing.T, job *models.TranscriptionJob) bool {
	_, err := f.store.Get(context.Background(), job.ID)
	if err != nil {
		require.ErrorIs(t, err, store.ErrJobNotFound)
		return false
	}
	return true
}

func TestSweeper_CleanOldJobs(t *testing.T) {
	// given
	f := newSweepFixture(t)
	old := f.addJob(t, models.StatusDone, 8*24*time.Hour)
	oldProcessing := f.addJob(t, models.StatusProcessing, 8*24*time.Hour)
	fresh := f.addJob(t, models.StatusDone, time.Hour)

	// when
	deleted := f.sweeper.CleanOldJobs(context.Background())

	// then
	require.Equal(t, 1, deleted)
	require.False(t, f.exists(t, old))
	require.NoFileExists(t, old.FilePath)
	require.True(t, f.exists(t, oldProcessing))
	require.True(t, f.exists(t, fresh))
}

func TestSweeper_CleanOldErrorJobs(t *testing.T) {
	f := newSweepFixture(t)
	oldError := f.addJob(t, models.StatusError, 4*24*time.Hour)
	oldDone := f.addJob(t, models.StatusDone, 4*24*time.Hour)
	freshError := f.addJob(t, models.StatusError, 24*time.Hour)

	require.Equal(t, 1, f.sweeper.CleanOldErrorJobs(context.Background()))

	require.False(t, f.exists(t, oldError))
	require.NoFileExists(t, oldError.FilePath)
	require.True(t, f.exists(t, oldDone))
	require.True(t, f.exists(t, freshError))
}

func TestSweeper_CleanOrphanedChunksSkipsProcessing(t *testing.T) {
	f := newSweepFixture(t)
	processing := f.addJob(t, models.StatusProcessing, time.Minute)
	failed := f.addJob(t, models.StatusError, time.Minute)
	backdate(t, processing.FilePath)
	backdate(t, failed.FilePath)

	require.Equal(t, 1, f.sweeper.CleanOrphanedChunks(context.Background()))

	require.DirExists(t, audio.ChunkDir(processing.FilePath))
	require.NoDirExists(t, audio.ChunkDir(failed.FilePath))
	require.FileExists(t, failed.FilePath)
}

func TestSweeper_CleanOrphanedChunksKeepsJobStartedAfterListing(t *testing.T) {
	// given
	f := newSweepFixture(t)
	uploaded := f.addJob(t, models.StatusUploaded, time.Minute)

	// when
	removed := f.sweeper.CleanOrphanedChunks(context.Background())

	// then
	require.Zero(t, removed)
	require.DirExists(t, audio.ChunkDir(uploaded.FilePath))
}

type failingDeleteStore struct {
	*store.MemoryStore
}

func (s failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("database unavailable")
}

func TestSweeper_CleanOldJobsKeepsFilesWhenDeleteFails(t *testing.T) {
	// given
	f := newSweepFixture(t)
	old := f.addJob(t, models.StatusDone, 8*24*time.Hour)
	files := cleanup.NewCoordinator(f.dir, logger.NewDiscard())
	sweeper := cleanup.NewSweeper(failingDeleteStore{f.store}, files, config.Default().Cleanup, logger.NewDiscard())

	// when
	deleted := sweeper.CleanOldJobs(context.Background())

	// then
	require.Zero(t, deleted)
	require.True(t, f.exists(t, old))
	require.FileExists(t, old.FilePath)
	require.DirExists(t, audio.ChunkDir(old.FilePath))
}

func TestSweeper_CleanCompletedJobChunks(t *testing.T) {
	f := newSweepFixture(t)
	done := f.addJob(t, models.StatusDone, time.Minute)
	uploaded := f.addJob(t, models.StatusUploaded, time.Minute)

	require.Equal(t, 1, f.sweeper.CleanCompletedJobChunks(context.Background()))

	require.NoDirExists(t, audio.ChunkDir(done.FilePath))
	require.FileExists(t, done.FilePath)
	require.DirExists(t, audio.ChunkDir(uploaded.FilePath))
}

func TestSweeper_StorageReport(t *testing.T) {
	f := newSweepFixture(t)
	f.addJob(t, models.StatusDone, time.Minute)
	f.addJob(t, models.StatusDone, time.Minute)
	f.addJob(t, models.StatusError, time.Minute)
	f.addJob(t, models.StatusProcessing, time.Minute)

	report, err := f.sweeper.StorageReport(context.Background())

	require.NoError(t, err)
	require.Equal(t, cleanup.StorageReport{
		UploadsBytes: 4 * (1024 + 2*int64(len("chunk"))),
		Total:        4,
		Processing:   1,
		Completed:    2,
		Errors:       1,
	}, report)
}

func TestSweeper_RunReturnsOnCancel(t *testing.T) {
	f := newSweepFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		f.sweeper.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
