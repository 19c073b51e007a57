package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
)

const (
	chunkDirSuffix   = "_chunks"
	defaultChunkExt  = ".m4a"
	maxStderrLogSize = 2000
)

// ErrSegmentation is matched by every *SegmentationError.
var ErrSegmentation = errors.New("audio segmentation failed")

// SegmentationError covers a missing source, a failed tool run and an empty output alike.
// Log is diagnostic only and never part of Error().
type SegmentationError struct {
	Message string
	Log     CommandLog
	Err     error
}

func (e *SegmentationError) Error() string {
	return "audio segmentation failed: " + e.Message
}

func (e *SegmentationError) Unwrap() error {
	return e.Err
}

func (e *SegmentationError) Is(target error) bool {
	return target == ErrSegmentation
}

// Segmenter cuts one audio file into ordered, fixed-duration chunks with ffmpeg stream copy.
type Segmenter struct {
	ffmpegPath string
	runner     CommandRunner
	log        logger.AppLogger
}

func NewSegmenter(ffmpegPath string, runner CommandRunner, log logger.AppLogger) *Segmenter {
	if runner == nil {
		runner = NewExecRunner()
	}
	return &Segmenter{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		log:        log.With(slog.String("service", "segmenter")),
	}
}

// Version runs "ffmpeg -version" and returns its first output line. Used as a startup check.
func (s *Segmenter) Version(ctx context.Context) (string, error) {
	out, err := s.runner.Run(ctx, s.ffmpegPath, "-version")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not available at %q: %w", s.ffmpegPath, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out.Stdout), "\n")
	return line, nil
}

// ChunkDir is derived from the source base name only, so it can be found again without job metadata.
func ChunkDir(sourcePath string) string {
	return filepath.Join(filepath.Dir(sourcePath), baseName(sourcePath)+chunkDirSuffix)
}

// IsChunkDir reports whether a directory name follows the chunk directory convention.
func IsChunkDir(name string) bool {
	return strings.HasSuffix(name, chunkDirSuffix) && len(name) > len(chunkDirSuffix)
}

// ExpectedChunks is ceil(duration / maxSegmentSeconds).
func ExpectedChunks(duration time.Duration, maxSegmentSeconds int) int {
	if duration <= 0 || maxSegmentSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(duration.Seconds() / float64(maxSegmentSeconds)))
}

// Split runs ffmpeg once and returns the produced chunks sorted by index.
func (s *Segmenter) Split(ctx context.Context, sourcePath string, maxSegmentSeconds int) ([]models.Chunk, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, &SegmentationError{Message: "source file does not exist", Err: err}
	}

	// chunks left by an interrupted attempt are discarded
	dir := ChunkDir(sourcePath)
	if err := os.RemoveAll(dir); err != nil {
		return nil, &SegmentationError{Message: "cannot reset chunk directory", Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &SegmentationError{Message: "cannot create chunk directory", Err: err}
	}

	base := baseName(sourcePath)
	pattern := filepath.Join(dir, base+"_%03d"+chunkExt(sourcePath))
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", sourcePath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(maxSegmentSeconds),
		"-c", "copy",
		"-reset_timestamps", "1",
		pattern,
	}

	s.log.Debug("splitting audio",
		slog.String("source", sourcePath),
		slog.Int("segment_seconds", maxSegmentSeconds))

	cmdLog, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		s.log.Error("ffmpeg failed", err,
			slog.Int("exit_code", cmdLog.ExitCode),
			slog.String("stderr", tail(cmdLog.Stderr, maxStderrLogSize)))
		return nil, &SegmentationError{
			Message: fmt.Sprintf("media tool exited with code %d", cmdLog.ExitCode),
			Log:     cmdLog,
			Err:     err,
		}
	}

	chunks, err := listChunks(dir, base+"_")
	if err != nil {
		return nil, &SegmentationError{Message: "cannot read chunk directory", Log: cmdLog, Err: err}
	}
	if len(chunks) == 0 {
		return nil, &SegmentationError{Message: "no chunks were produced", Log: cmdLog}
	}

	s.log.Info("audio split", slog.String("source", sourcePath), slog.Int("chunks", len(chunks)))
	return chunks, nil
}

// listChunks relies on zero-padded names so lexicographic order is numeric order.
func listChunks(dir, prefix string) ([]models.Chunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	chunks := make([]models.Chunk, 0, len(names))
	for i, name := range names {
		chunks = append(chunks, models.Chunk{
			Index: i,
			Path:  filepath.Join(dir, name),
			Dir:   dir,
		})
	}
	return chunks, nil
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func chunkExt(sourcePath string) string {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	if ext == "" {
		return defaultChunkExt
	}
	return ext
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
