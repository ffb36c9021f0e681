// Package worker runs sync jobs off queues, one goroutine per shard.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Handler performs one job. Errors are logged and counted, never retried here.
type Handler interface {
	Handle(ctx context.Context, j queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j queue.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Source defines how workers receive jobs.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs from one source.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the source closes.
	Run(ctx context.Context)

	// Shutdown waits for the worker to finish.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker over a Source.
type InMemoryWorker struct {
	source  Source
	handler Handler
	name    string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(source Source, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:  source,
		handler: handler,
		name:    "worker",
		done:    make(chan struct{}),
		logger:  logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs in arrival order until the source closes or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "error processing job", logger.Error(err))
			}
		}
	}
}

// Shutdown waits for Run to return. Close the source first so Run can drain.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) (err error) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.ID, r)
		}
		if err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", string(j.Kind))
		}
	}()
	if err := w.handler.Handle(ctx, j); err != nil {
		return fmt.Errorf("job %s (%s, competition %d): %w", j.ID, j.Kind, j.CompetitionID, err)
	}
	return nil
}

// Pool owns one queue and one worker per shard. Jobs of a competition always
// land on the same shard, so they are handled in submission order.
type Pool struct {
	shards  []*queue.InMemoryQueue
	workers []*InMemoryWorker
	handler Handler

	startOnce sync.Once
	stopOnce  sync.Once

	logger logger.Logger
}

// NewPool creates shardCount queues of the given capacity each.
func NewPool(shardCount, capacity int, handler Handler, opts ...Option) *Pool {
	if shardCount < 1 {
		shardCount = runtime.NumCPU()
	}
	p := &Pool{
		shards:  make([]*queue.InMemoryQueue, shardCount),
		workers: make([]*InMemoryWorker, shardCount),
		handler: handler,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.shards {
		p.shards[i] = queue.NewInMemoryQueue(queue.WithCapacity(capacity))
		p.workers[i] = NewInMemoryWorker(p.shards[i], handler,
			append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)...)
	}
	metrics.UpdateWorkerCount(shardCount)
	metrics.UpdateQueueCapacity(capacity * shardCount)
	return p
}

// Start runs every worker. Calling it more than once is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for _, w := range p.workers {
			go w.Run(ctx)
		}
	})
}

func (p *Pool) shard(competitionID int64) *queue.InMemoryQueue {
	if competitionID < 0 {
		competitionID = -competitionID
	}
	return p.shards[competitionID%int64(len(p.shards))]
}

// Submit enqueues j on its competition's shard without blocking.
func (p *Pool) Submit(ctx context.Context, j queue.Job) bool { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	return p.shard(j.CompetitionID).Enqueue(ctx, j)
}

// Len returns the number of queued jobs across shards.
func (p *Pool) Len(ctx context.Context) int {
	n := 0
	for _, q := range p.shards {
		n += q.Len(ctx)
	}
	return n
}

// Shards returns the shard count.
func (p *Pool) Shards() int { return len(p.shards) }

// Shutdown stops intake, lets workers drain their queues and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		for _, q := range p.shards {
			if cerr := q.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()
		for i, w := range p.workers {
			if werr := w.Shutdown(shutdownCtx); werr != nil {
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = werr
			}
		}
	})
	return err
}
