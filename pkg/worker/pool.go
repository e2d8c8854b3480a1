// Package worker provides an asynchronous ingestion pool that feeds message
// batches to the memory manager.
//
// Jobs are sharded by scope: every job for the same scope lands on the same
// worker, so reconciliation within a scope is strictly sequential while
// distinct scopes proceed in parallel. The pool decouples ingestion from the
// API hot path.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sync"

	"github.com/engramlabs/engram/pkg/llm"
	"github.com/engramlabs/engram/pkg/memory"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Messages []llm.Message
	Options  memory.AddOptions
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Manager performs the reconciliation for each job.
	Manager *memory.Manager

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of each worker's buffered job channel
	// (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool processes ingestion jobs asynchronously via scope-sharded workers.
type Pool struct {
	config *Config
	queues []chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Manager == nil {
		return nil, fmt.Errorf("worker pool requires a memory manager")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queues: make([]chan Job, c.NumWorkers),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		wp.queues[i] = make(chan Job, c.QueueSize)
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the scope's queue is full, resulting in
// the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	queue := p.queues[p.shard(job)]

	select {
	case queue <- job:
		p.logger.Debug("job queued",
			"scope", job.Options.Scope.Key(),
			"messages", len(job.Messages),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"scope", job.Options.Scope.Key(),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	for _, queue := range p.queues {
		close(queue)
	}
	p.wg.Wait()
}

// shard routes every job for a scope to the same worker so mutations within
// a scope are applied in submission order.
func (p *Pool) shard(job Job) uint {
	h := fnv.New32a()
	h.Write([]byte(job.Options.Scope.Key()))

	return uint(h.Sum32()) % uint(len(p.queues))
}

// worker is the inner worker thread that continuously pulls jobs off its queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queues[id] {
		p.processJob(job)
	}

	p.logger.Debug("ingestion worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	result, err := p.config.Manager.Add(ctx, job.Messages, job.Options)
	if err != nil {
		p.logger.Error("async reconciliation failed",
			"scope", job.Options.Scope.Key(),
			"error", err,
		)
		return
	}

	p.logger.Info("batch reconciled",
		"scope", job.Options.Scope.Key(),
		"applied", len(result.Mutations),
		"skipped", len(result.Skipped),
	)
}
