// Package runner is the façade in front of the job store, work queue,
// and worker pool. The router calls exactly two entry points: Submit and
// Get. Blocking submissions run the kernel inline on the calling
// goroutine and never mint a ticket; non-blocking submissions enqueue
// and return one.
package runner

import (
	"time"

	"github.com/sirupsen/logrus"

	"computeq/internal/compute"
	"computeq/internal/jobstore"
	"computeq/internal/metrics"
	"computeq/internal/wire"
	"computeq/internal/worker"
	"computeq/pkg/types"
)

// Config holds the runner's knobs.
type Config struct {
	// Threads is the worker pool size.
	Threads int
}

// Runner owns the store, queue, and pool lifecycle.
type Runner struct {
	store   *jobstore.Store
	queue   *jobstore.Queue
	pool    *worker.Pool
	metrics *metrics.Collector
	log     logrus.FieldLogger
}

// New builds the runner and starts its worker pool. The collector may be
// nil.
func New(cfg Config, collector *metrics.Collector, log logrus.FieldLogger) (*Runner, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	store := jobstore.NewStore()
	queue := jobstore.NewQueue()
	pool := worker.NewPool(store, queue, collector, log)
	if err := pool.Start(cfg.Threads); err != nil {
		return nil, err
	}
	return &Runner{
		store:   store,
		queue:   queue,
		pool:    pool,
		metrics: collector,
		log:     log,
	}, nil
}

// wellFormed reports whether the submission carries exactly one variant
// with a recognised op.
func wellFormed(req *wire.SubmitRequest) bool {
	switch {
	case req.Math != nil && req.Str == nil:
		_, ok := types.RequiredForMath(req.Math.Op)
		return ok
	case req.Str != nil && req.Math == nil:
		_, ok := types.RequiredForStr(req.Str.Op)
		return ok
	}
	return false
}

// Submit handles a submission envelope.
func (r *Runner) Submit(req *wire.SubmitRequest) *wire.SubmitResponse {
	resp := &wire.SubmitResponse{}
	defer func() {
		r.metrics.RecordSubmit(req.Mode, resp.Status)
		r.logFailure("submit", resp.Status)
	}()

	if !wellFormed(req) {
		resp.Status = types.StatusInvalidInput
		return resp
	}

	switch req.Mode {
	case types.Blocking:
		resp.Status, resp.Result = compute.Run(req)
	case types.NonBlocking:
		job := r.store.New(req)
		if !r.queue.Push(job) {
			// Shutdown raced the submission; the pool will never run it.
			r.store.Complete(job.ID, types.StatusInternal, nil)
			resp.Status = types.StatusInternal
			return resp
		}
		t := job.ID
		resp.Status = types.StatusNotFinished
		resp.Ticket = &t
		r.metrics.RecordEnqueue()
		r.metrics.SetPending(r.store.Len())
	default:
		resp.Status = types.StatusInvalidInput
	}
	return resp
}

// Get handles a retrieval envelope. WAIT_UP_TO with a zero timeout takes
// the no-wait path; the two are observationally equivalent.
func (r *Runner) Get(req *wire.GetRequest) *wire.GetResponse {
	var (
		status types.Status
		result *types.Result
	)
	if req.WaitMode == types.WaitUpTo && req.TimeoutMS > 0 {
		status, result = r.store.GetWait(req.Ticket, time.Duration(req.TimeoutMS)*time.Millisecond)
	} else {
		status, result = r.store.GetNoWait(req.Ticket)
	}
	r.metrics.RecordGet(status)
	r.metrics.SetPending(r.store.Len())
	r.logFailure("get", status)
	return &wire.GetResponse{Status: status, Result: result}
}

// logFailure logs a terminal status other than SUCCESS.
func (r *Runner) logFailure(op string, status types.Status) {
	if status.Terminal() && status != types.StatusSuccess {
		r.log.WithFields(logrus.Fields{"op": op, "status": status.String()}).Warn("request failed")
	}
}

// Pending returns the number of live store entries.
func (r *Runner) Pending() int {
	return r.store.Len()
}

// Close stops the pool, waits for it to quiesce, then empties the store.
// Jobs a worker had already popped complete before the pool stops, so no
// completion notification is lost while waiters can still observe it.
func (r *Runner) Close() {
	r.pool.Stop()
	r.store.Drain()
	r.metrics.SetPending(0)
}
