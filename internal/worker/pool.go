// ============================================================================
// computeq worker pool - fixed-size kernel executors
// ============================================================================
//
// Package: internal/worker
// File: pool.go
// Purpose: N workers drain the FIFO work queue, run the compute kernel
// for each job, and publish the completion on the job store.
//
// Lifecycle:
//   1. NewPool()  - wire the pool to its store and queue
//   2. Start(n)   - launch n worker goroutines
//   3. Stop()     - close the queue, wake idle workers, wait for all of
//                   them to exit; a job a worker has already popped is
//                   completed before the worker exits
//
// Workers never touch the transport. A panicking kernel is confined to
// the job that triggered it: the worker recovers, publishes
// ERROR_INTERNAL for that ticket, and keeps serving.
//
// ============================================================================

package worker

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"computeq/internal/compute"
	"computeq/internal/jobstore"
	"computeq/internal/metrics"
	"computeq/internal/wire"
	"computeq/pkg/types"
)

var (
	// ErrAlreadyStarted is returned by a second Start on the same pool.
	ErrAlreadyStarted = errors.New("worker pool already started")
)

// kernelFunc runs a submission and returns its terminal state. It exists
// so tests can substitute a misbehaving kernel.
type kernelFunc func(*wire.SubmitRequest) (types.Status, *types.Result)

// Pool is the fixed set of executors.
type Pool struct {
	store   *jobstore.Store
	queue   *jobstore.Queue
	exec    kernelFunc
	metrics *metrics.Collector
	log     logrus.FieldLogger

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
	count   int
}

// NewPool wires a pool to the store it publishes into and the queue it
// drains. Workers are not launched until Start. The collector may be nil.
func NewPool(store *jobstore.Store, queue *jobstore.Queue, collector *metrics.Collector, log logrus.FieldLogger) *Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{
		store:   store,
		queue:   queue,
		exec:    compute.Run,
		metrics: collector,
		log:     log,
	}
}

// Start launches workerCount workers.
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	if workerCount < 1 {
		workerCount = 1
	}
	p.started = true
	p.count = workerCount

	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(id)
		}(i)
	}
	return nil
}

// Stop closes the queue and blocks until every worker has exited. After
// Stop returns the pool is quiesced: no further completions will be
// published.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.queue.Close()
	p.wg.Wait()
}

// WorkerCount returns the number of workers Start launched.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// run is the uniform worker loop: wait for work, execute, publish.
func (p *Pool) run(id int) {
	for {
		job, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.execute(id, job)
	}
}

// execute runs one job's kernel and publishes the completion. A popped
// job always completes, even when the kernel panics.
func (p *Pool) execute(id int, job *jobstore.Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{
				"worker": id,
				"ticket": uint64(job.ID),
				"panic":  r,
			}).Error("kernel panicked, completing job with ERROR_INTERNAL")
			p.store.Complete(job.ID, types.StatusInternal, nil)
		}
	}()
	start := time.Now()
	status, result := p.exec(job.Req)
	p.store.Complete(job.ID, status, result)
	p.metrics.RecordCompleted(time.Since(start).Seconds())
}
