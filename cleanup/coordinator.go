package cleanup

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jupark12/go-transcription-queue/audio"
	"github.com/jupark12/go-transcription-queue/logger"
)

// Error describes a failed removal. It is logged and never returned to callers.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cleanup %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// orphanGracePeriod covers jobs that enter PROCESSING after the active list was read.
const orphanGracePeriod = 10 * time.Minute

// Coordinator removes job files on a best-effort basis.
type Coordinator struct {
	uploadDir string
	log       logger.AppLogger
	now       func() time.Time
}

func NewCoordinator(uploadDir string, log logger.AppLogger) *Coordinator {
	return &Coordinator{
		uploadDir: uploadDir,
		log:       log.With(slog.String("service", "cleanup")),
		now:       time.Now,
	}
}

// DeleteAudioFile removes the original upload.
func (c *Coordinator) DeleteAudioFile(path string) {
	if path == "" {
		return
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		c.log.Info("audio file deleted", slog.String("path", path))
	case os.IsNotExist(err):
		c.log.Warn("audio file already gone", slog.String("path", path))
	default:
		c.report(&Error{Op: "delete file", Path: path, Err: err})
	}
}

// DeleteChunkDirectory removes the chunk directory derived from the original file path.
func (c *Coordinator) DeleteChunkDirectory(originalFilePath string) {
	if originalFilePath == "" {
		return
	}
	dir := audio.ChunkDir(originalFilePath)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		c.report(&Error{Op: "delete chunk directory", Path: dir, Err: err})
		return
	}
	c.log.Info("chunk directory deleted", slog.String("path", dir))
}

func (c *Coordinator) DeleteFileAndChunks(originalFilePath string) {
	c.DeleteAudioFile(originalFilePath)
	c.DeleteChunkDirectory(originalFilePath)
}

// CleanOrphanedChunkDirs removes every chunk directory in the upload dir whose name is not in active
// and that has not been modified within the grace period. It returns the number of directories removed.
func (c *Coordinator) CleanOrphanedChunkDirs(active map[string]struct{}) int {
	entries, err := os.ReadDir(c.uploadDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.report(&Error{Op: "list uploads", Path: c.uploadDir, Err: err})
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !audio.IsChunkDir(entry.Name()) {
			continue
		}
		if _, ok := active[entry.Name()]; ok {
			continue
		}
		dir := filepath.Join(c.uploadDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if c.now().Sub(info.ModTime()) < orphanGracePeriod {
			c.log.Debug("skipping recent chunk directory", slog.String("path", dir))
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			c.report(&Error{Op: "delete orphaned chunk directory", Path: dir, Err: err})
			continue
		}
		c.log.Info("orphaned chunk directory deleted", slog.String("path", dir))
		removed++
	}
	return removed
}

// UploadsDirSize sums the sizes of all regular files under the upload dir.
func (c *Coordinator) UploadsDirSize() int64 {
	var total int64
	err := filepath.WalkDir(c.uploadDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		c.report(&Error{Op: "measure uploads", Path: c.uploadDir, Err: err})
	}
	return total
}

func (c *Coordinator) report(err *Error) {
	c.log.Error("cleanup failed", err, slog.String("op", err.Op), slog.String("path", err.Path))
}
