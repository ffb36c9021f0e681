// Package queue defines the contract for enqueuing and consuming sync jobs.
//
// Jobs describe a committed change that still has to reach the mirror store
// and live subscribers. The in-memory implementation is a bounded channel.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/arena/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Kind names what a job propagates.
type Kind string

// Job kinds.
const (
	KindScore             Kind = "score"
	KindScoreDeleted      Kind = "score_deleted"
	KindParticipantScores Kind = "participant_scores"
	KindRankings          Kind = "rankings"
)

// Job is one unit of propagation work.
type Job struct {
	ID            string
	Kind          Kind
	CompetitionID int64
	ParticipantID int64
	JudgeID       int64
	Revision      int64
	Payload       any
	EnqueuedAt    time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job to the queue.
	// Returns false if the queue is full or closed and the job was not enqueued.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns a channel that will receive jobs as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Queued jobs are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs       chan Job
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.jobs = make(chan Job, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	return q
}

// Enqueue adds a job to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if len(q.jobs) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives jobs in enqueue order.
// Use a single consumer per queue to keep that order.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
				metrics.RecordQueueProcessingLatency(float64(time.Since(j.EnqueuedAt).Milliseconds()))
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) observe() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.jobs)
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting jobs.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
