package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Task asks a worker to process one job.
type Task struct {
	JobID             string
	MaxSegmentSeconds int
}

// JobQueue is a bounded FIFO of job IDs waiting for a worker.
type JobQueue struct {
	mu     sync.RWMutex
	tasks  chan Task
	closed bool
}

// NewJobQueue creates a queue that holds at most capacity pending tasks.
func NewJobQueue(capacity int) *JobQueue {
	return &JobQueue{tasks: make(chan Task, capacity)}
}

// Enqueue waits for free space until ctx ends. A context that ends first yields ErrQueueFull.
func (q *JobQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	default:
	}

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ErrQueueFull
	}
}

// Tasks is drained by workers. It is closed by Close once pending tasks are consumed.
func (q *JobQueue) Tasks() <-chan Task {
	return q.tasks
}

// Close stops accepting tasks. Already queued tasks stay readable.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

func (q *JobQueue) Len() int {
	return len(q.tasks)
}

func (q *JobQueue) Cap() int {
	return cap(q.tasks)
}
