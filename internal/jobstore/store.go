// ============================================================================
// computeq job store - ticketed job registry
// ============================================================================
//
// Package: internal/jobstore
// File: store.go
// Purpose: Owns every asynchronous job from enqueue to single-delivery
// retrieval.
//
// Locking model:
//   - Store lock: guards only the ticket->job map (brief map operations).
//   - Per-job completion channel: workers publish, getters wait. Closing
//     the channel is the broadcast; the result fields are written before
//     the close and read only after observing it.
//   Never more than one of {store, queue, job} locks is held at a time, so
//   a waiter on one job cannot block unrelated submitters.
//
// Single delivery:
//   The first retrieval that observes a terminal status removes the entry
//   under the store lock. A second retrieval of the same ticket finds no
//   entry and reports ERROR_INVALID_INPUT, exactly like an unknown ticket.
//
// ============================================================================

package jobstore

import (
	"sync"
	"sync/atomic"
	"time"

	"computeq/internal/wire"
	"computeq/pkg/types"
)

// Job tracks one non-blocking submission. The request is immutable after
// construction; status and result are written once by Complete.
type Job struct {
	ID  types.Ticket
	Req *wire.SubmitRequest

	mu     sync.Mutex
	status types.Status
	result *types.Result
	done   bool
	doneCh chan struct{}
}

// Done reports whether the job has reached a terminal status.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

// Snapshot returns the published status and result. Valid only after
// Done reports true; before that it returns the NOT_FINISHED state.
func (j *Job) Snapshot() (types.Status, *types.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, j.result
}

// complete publishes the terminal state. The transition happens at most
// once; later calls are ignored.
func (j *Job) complete(status types.Status, result *types.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return
	}
	j.status = status
	j.result = result
	j.done = true
	close(j.doneCh)
}

// Store is the ticket->job registry.
type Store struct {
	mu   sync.Mutex
	jobs map[types.Ticket]*Job
	seq  atomic.Uint64
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{jobs: make(map[types.Ticket]*Job)}
}

// mint builds a process-unique ticket: the high bits carry a UnixNano
// timestamp, the low 16 bits an atomic sequence counter. Two concurrent
// mints always differ in the counter; two mints a full counter-wrap apart
// always differ in the timestamp.
func (s *Store) mint() types.Ticket {
	seq := s.seq.Add(1)
	return types.Ticket(uint64(time.Now().UnixNano())<<16 | seq&0xffff)
}

// New mints a ticket, builds the job in the NOT_FINISHED state, and
// inserts it. The returned job has not been queued for execution yet.
func (s *Store) New(req *wire.SubmitRequest) *Job {
	job := &Job{
		Req:    req,
		status: types.StatusNotFinished,
		doneCh: make(chan struct{}),
	}
	s.mu.Lock()
	for {
		job.ID = s.mint()
		if _, taken := s.jobs[job.ID]; !taken {
			break
		}
	}
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// Complete publishes the terminal state for a ticket. The entry stays in
// the store: removal is the retrieval's job.
func (s *Store) Complete(t types.Ticket, status types.Status, result *types.Result) {
	s.mu.Lock()
	job, ok := s.jobs[t]
	s.mu.Unlock()
	if !ok {
		return
	}
	job.complete(status, result)
}

// GetNoWait looks a ticket up without blocking. Unknown tickets report
// ERROR_INVALID_INPUT; unfinished jobs report NOT_FINISHED and stay in
// the store; finished jobs are consumed.
func (s *Store) GetNoWait(t types.Ticket) (types.Status, *types.Result) {
	s.mu.Lock()
	job, ok := s.jobs[t]
	s.mu.Unlock()
	if !ok {
		return types.StatusInvalidInput, nil
	}
	if !job.Done() {
		return types.StatusNotFinished, nil
	}
	return s.consume(t, job)
}

// GetWait blocks until the job completes or the timeout elapses. The
// deadline is absolute, computed once on entry. Expiry leaves the job in
// the store and reports NOT_FINISHED; completion consumes it.
func (s *Store) GetWait(t types.Ticket, timeout time.Duration) (types.Status, *types.Result) {
	s.mu.Lock()
	job, ok := s.jobs[t]
	s.mu.Unlock()
	if !ok {
		return types.StatusInvalidInput, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-job.doneCh:
		return s.consume(t, job)
	case <-timer.C:
		// The completion may have raced the timer; prefer delivering it.
		if job.Done() {
			return s.consume(t, job)
		}
		return types.StatusNotFinished, nil
	}
}

// consume removes the entry and returns its terminal state. Exactly one
// caller wins when retrievals race; the losers see an unknown ticket.
func (s *Store) consume(t types.Ticket, job *Job) (types.Status, *types.Result) {
	s.mu.Lock()
	cur, ok := s.jobs[t]
	if ok && cur == job {
		delete(s.jobs, t)
	} else {
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return types.StatusInvalidInput, nil
	}
	return job.Snapshot()
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Drain discards every entry. Called on shutdown after the pool has
// quiesced, so no completion notifications are lost.
func (s *Store) Drain() {
	s.mu.Lock()
	s.jobs = make(map[types.Ticket]*Job)
	s.mu.Unlock()
}
