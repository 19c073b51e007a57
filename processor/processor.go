package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
	"github.com/jupark12/go-transcription-queue/store"
)

// processingError keeps local details such as file paths out of the message stored on the job.
type processingError struct {
	message string
	err     error
}

func (e *processingError) Error() string {
	return e.message
}

func (e *processingError) Unwrap() error {
	return e.err
}

// Processor drives one job through segmentation, sequential transcription and assembly.
type Processor struct {
	store                 store.JobStore
	segmenter             Segmenter
	transcriber           Transcriber
	cleaner               ChunkCleaner
	defaultSegmentSeconds int
	log                   logger.AppLogger
	notify                func(job *models.TranscriptionJob)
	now                   func() time.Time
	readFile              func(name string) ([]byte, error)
}

func NewProcessor(
	st store.JobStore,
	segmenter Segmenter,
	transcriber Transcriber,
	cleaner ChunkCleaner,
	defaultSegmentSeconds int,
	log logger.AppLogger,
) *Processor {
	return &Processor{
		store:                 st,
		segmenter:             segmenter,
		transcriber:           transcriber,
		cleaner:               cleaner,
		defaultSegmentSeconds: defaultSegmentSeconds,
		log:                   log.With(slog.String("service", "processor")),
		notify:                func(*models.TranscriptionJob) {},
		now:                   time.Now,
		readFile:              os.ReadFile,
	}
}

// SetNotifier registers a callback fired after each persisted status change.
func (p *Processor) SetNotifier(fn func(job *models.TranscriptionJob)) {
	if fn == nil {
		fn = func(*models.TranscriptionJob) {}
	}
	p.notify = fn
}

// Process runs the job to DONE or ERROR. The returned error is the processing
// failure already recorded on the job, or a failure to load or persist it.
func (p *Processor) Process(ctx context.Context, jobID string, maxSegmentSeconds int) error {
	if maxSegmentSeconds <= 0 {
		maxSegmentSeconds = p.defaultSegmentSeconds
	}
	log := p.log.With(slog.String("job_id", jobID))

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if err := job.MarkProcessing(); err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	if err := p.store.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to persist processing status: %w", err)
	}
	p.notify(job.Clone())
	log.Info("job processing started", slog.Int("segment_seconds", maxSegmentSeconds))

	text, runErr := p.transcribeAll(ctx, job, maxSegmentSeconds, log)
	if runErr == nil {
		err = job.MarkDone(text, p.now())
	} else {
		log.Error("job failed", runErr)
		err = job.MarkError(runErr.Error(), p.now())
	}
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	p.cleaner.DeleteChunkDirectory(job.FilePath)

	// the outcome is recorded even when ctx was cancelled mid-run
	if err := p.store.Update(context.WithoutCancel(ctx), job); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			log.Warn("job was deleted while processing")
		}
		return fmt.Errorf("failed to persist final status: %w", err)
	}
	p.notify(job.Clone())

	if runErr != nil {
		return runErr
	}
	log.Info("job done", slog.Int("text_length", len(text)))
	return nil
}

// transcribeAll never starts chunk N+1 before chunk N has returned.
func (p *Processor) transcribeAll(ctx context.Context, job *models.TranscriptionJob, maxSegmentSeconds int, log logger.AppLogger) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job processing panicked", fmt.Errorf("panic: %v", r),
				slog.String("stack", string(debug.Stack())))
			err = &processingError{message: "internal error while processing audio"}
		}
	}()

	chunks, err := p.segmenter.Split(ctx, job.FilePath, maxSegmentSeconds)
	if err != nil {
		return "", err
	}

	language := ""
	if job.Language != nil {
		language = *job.Language
	}

	var sb strings.Builder
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("processing was cancelled: %w", err)
		}

		data, err := p.readFile(chunk.Path)
		if err != nil {
			log.Error("failed to read chunk", err, slog.Int("chunk", i+1), slog.String("path", chunk.Path))
			return "", &processingError{message: fmt.Sprintf("failed to read chunk %d of %d", i+1, len(chunks)), err: err}
		}

		started := time.Now()
		part, err := p.transcriber.Transcribe(ctx, data, filepath.Base(chunk.Path), language)
		if err != nil {
			return "", fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		log.Debug("chunk transcribed",
			slog.Int("chunk", i+1),
			slog.Int("of", len(chunks)),
			slog.Duration("took", time.Since(started)))

		sb.WriteString(part)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
