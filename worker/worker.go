package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/queue"
	"golang.org/x/sync/errgroup"
)

// JobProcessor runs one job to completion.
type JobProcessor interface {
	Process(ctx context.Context, jobID string, maxSegmentSeconds int) error
}

// Worker represents a processing node that consumes jobs
type Worker struct {
	ID         string
	processing atomic.Bool
	current    atomic.Value
}

func (w *Worker) Processing() bool {
	return w.processing.Load()
}

// CurrentJob returns the job being processed or an empty string.
func (w *Worker) CurrentJob() string {
	id, _ := w.current.Load().(string)
	return id
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	queue     *queue.JobQueue
	processor JobProcessor
	workers   []*Worker
	log       logger.AppLogger
	group     *errgroup.Group
}

func NewPool(q *queue.JobQueue, processor JobProcessor, size int, log logger.AppLogger) *Pool {
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = &Worker{ID: fmt.Sprintf("worker-%d", i+1)}
	}
	return &Pool{
		queue:     q,
		processor: processor,
		workers:   workers,
		log:       log.With(slog.String("service", "worker_pool")),
	}
}

// Start launches the workers. Cancelling ctx stops them from taking new tasks;
// a job already in progress still runs to completion.
func (p *Pool) Start(ctx context.Context) {
	p.group = &errgroup.Group{}
	for _, w := range p.workers {
		p.group.Go(func() error {
			p.run(ctx, w)
			return nil
		})
	}
	p.log.Info("worker pool started", slog.Int("workers", len(p.workers)))
}

// Stop closes the queue and waits for every worker to return.
func (p *Pool) Stop() error {
	p.queue.Close()
	if p.group == nil {
		return nil
	}
	err := p.group.Wait()
	p.log.Info("worker pool stopped")
	return err
}

// Busy counts workers currently processing a job.
func (p *Pool) Busy() int {
	n := 0
	for _, w := range p.workers {
		if w.Processing() {
			n++
		}
	}
	return n
}

func (p *Pool) Size() int {
	return len(p.workers)
}

func (p *Pool) run(ctx context.Context, w *Worker) {
	log := p.log.With(slog.String("worker", w.ID))
	log.Debug("worker starting")
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping", slog.String("reason", ctx.Err().Error()))
			return
		case task, ok := <-p.queue.Tasks():
			if !ok {
				log.Debug("worker stopping", slog.String("reason", "queue closed"))
				return
			}
			p.handle(context.WithoutCancel(ctx), w, task, log)
		}
	}
}

// handle never lets a panic or error escape the worker.
func (p *Pool) handle(ctx context.Context, w *Worker, task queue.Task, log logger.AppLogger) {
	w.processing.Store(true)
	w.current.Store(task.JobID)
	started := time.Now()
	defer func() {
		w.processing.Store(false)
		w.current.Store("")
		if r := recover(); r != nil {
			log.Error("job processing panicked", fmt.Errorf("panic: %v", r),
				slog.String("job_id", task.JobID),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	log.Info("processing job", slog.String("job_id", task.JobID))
	if err := p.processor.Process(ctx, task.JobID, task.MaxSegmentSeconds); err != nil {
		log.Error("failed to process job", err,
			slog.String("job_id", task.JobID),
			slog.Duration("took", time.Since(started)))
		return
	}
	log.Info("completed job", slog.String("job_id", task.JobID), slog.Duration("took", time.Since(started)))
}
