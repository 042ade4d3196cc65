// Package jobqueue provides a thread-safe FIFO admission queue holding at
// most one actively-executing job.
//
// The queue owns a single worker slot: StartIfIdle pops the oldest runnable
// job, marks it active, and launches its execution on a goroutine. It is
// called after every submission and after every job completion, which is the
// sole mechanism driving continuous draining. All list and slot mutations are
// guarded by one mutex; the lock is never held across a job's execution.
package jobqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ykurenkov/chatsync/pkg/core"
	"github.com/ykurenkov/chatsync/pkg/fanout"
)

var seq atomic.Int64

// NextID returns a process-unique, monotonically increasing job id.
func NextID() int64 {
	return seq.Add(1)
}

// Job is the minimal surface a queued unit of work must expose.
// Status accessors must be safe for concurrent use.
type Job interface {
	ID() int64
	Status() core.Status
	SetStatus(core.Status)
}

// Exec runs one dequeued job to completion. The context is cancelled if the
// job is cancelled mid-flight.
type Exec[J Job] func(ctx context.Context, job J) error

// Config assembles a queue. Exec is required.
type Config[J Job] struct {
	Exec Exec[J]

	// RetainFailed keeps failed jobs in the queue with StatusError instead
	// of removing them, so they stay visible for Retry or Cancel.
	RetainFailed bool

	// OnSuccess runs after a job has been removed from the queue, before
	// the next drain.
	OnSuccess func(J)

	// OnFailure runs after a failed job's status has been settled.
	OnFailure func(J, error)

	Logger *slog.Logger
}

type activeSlot[J Job] struct {
	job    J
	cancel context.CancelFunc
}

// Queue is a single-concurrency FIFO job queue.
type Queue[J Job] struct {
	mu      sync.Mutex
	jobs    []J // submission order; the active and errored jobs stay in place
	active  *activeSlot[J]
	cfg     Config[J]
	deleted *fanout.Broadcaster[[]int64]
	log     *slog.Logger
}

// New creates a queue. Panics if cfg.Exec is nil.
func New[J Job](cfg Config[J]) *Queue[J] {
	if cfg.Exec == nil {
		panic("chatsync: jobqueue.New requires an Exec function")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Queue[J]{
		cfg:     cfg,
		deleted: fanout.New[[]int64](),
		log:     log,
	}
}

// Submit appends a job to the tail of the queue and returns its id.
// The caller must follow up with StartIfIdle to drain.
func (q *Queue[J]) Submit(j J) int64 {
	q.mu.Lock()
	j.SetStatus(core.StatusQueued)
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
	return j.ID()
}

// SubmitChecked appends a job unless conflict reports an admission error for
// the active job or any queued job. On rejection nothing is enqueued and the
// conflict error is returned. The check and the append are one atomic step.
func (q *Queue[J]) SubmitChecked(j J, conflict func(other J) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, other := range q.jobs {
		if err := conflict(other); err != nil {
			return err
		}
	}
	j.SetStatus(core.StatusQueued)
	q.jobs = append(q.jobs, j)
	return nil
}

// StartIfIdle pops the oldest runnable job and launches its execution, if no
// job is currently active. Otherwise a no-op.
func (q *Queue[J]) StartIfIdle() {
	q.mu.Lock()
	if q.active != nil {
		q.mu.Unlock()
		return
	}
	var next J
	found := false
	for _, j := range q.jobs {
		if j.Status() == core.StatusQueued {
			next = j
			found = true
			break
		}
	}
	if !found {
		q.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	next.SetStatus(core.StatusActive)
	q.active = &activeSlot[J]{job: next, cancel: cancel}
	q.mu.Unlock()

	go q.run(ctx, next, cancel)
}

func (q *Queue[J]) run(ctx context.Context, j J, cancel context.CancelFunc) {
	defer cancel()

	err := q.cfg.Exec(ctx, j)

	q.mu.Lock()
	if q.active == nil || q.active.job.ID() != j.ID() {
		// Cancelled mid-flight; Cancel already settled the queue state.
		q.mu.Unlock()
		return
	}
	q.active = nil
	switch {
	case err == nil:
		q.removeLocked(j.ID())
	case q.cfg.RetainFailed && !errors.Is(err, context.Canceled):
		j.SetStatus(core.StatusError)
	default:
		q.removeLocked(j.ID())
	}
	q.mu.Unlock()

	if err == nil {
		if q.cfg.OnSuccess != nil {
			q.cfg.OnSuccess(j)
		}
	} else if !errors.Is(err, context.Canceled) {
		q.log.Error("job failed", "job_id", j.ID(), "error", err)
		if q.cfg.OnFailure != nil {
			q.cfg.OnFailure(j, err)
		}
	}

	q.StartIfIdle()
}

// Cancel aborts the active job or removes a queued one. Removed ids are
// broadcast on the deletion stream. Cancelling an unknown id is a no-op.
func (q *Queue[J]) Cancel(id int64) bool {
	q.mu.Lock()
	removed := false
	if q.active != nil && q.active.job.ID() == id {
		q.active.cancel()
		q.active = nil
		removed = q.removeLocked(id)
	} else {
		removed = q.removeLocked(id)
	}
	q.mu.Unlock()

	if removed {
		q.deleted.Publish([]int64{id})
		q.StartIfIdle()
	}
	return removed
}

// CancelAll removes every job matching the predicate, active included, and
// broadcasts all removed ids as a single deletion event. The predicate is
// called under the queue lock and must not call back into the queue.
func (q *Queue[J]) CancelAll(match func(J) bool) []int64 {
	q.mu.Lock()
	var ids []int64
	kept := make([]J, 0, len(q.jobs))
	for _, j := range q.jobs {
		if !match(j) {
			kept = append(kept, j)
			continue
		}
		if q.active != nil && q.active.job.ID() == j.ID() {
			q.active.cancel()
			q.active = nil
		}
		ids = append(ids, j.ID())
	}
	q.jobs = kept
	q.mu.Unlock()

	if len(ids) > 0 {
		q.deleted.Publish(ids)
		q.StartIfIdle()
	}
	return ids
}

// Retry resets an errored job back to StatusQueued without moving it, so it
// keeps its position in the drain order, then drains.
func (q *Queue[J]) Retry(id int64) bool {
	q.mu.Lock()
	ok := false
	for _, j := range q.jobs {
		if j.ID() == id && j.Status() == core.StatusError {
			j.SetStatus(core.StatusQueued)
			ok = true
			break
		}
	}
	q.mu.Unlock()

	if ok {
		q.StartIfIdle()
	}
	return ok
}

// HasPending reports whether the active job or any queued job matches.
func (q *Queue[J]) HasPending(match func(J) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if match(j) {
			return true
		}
	}
	return false
}

// Get returns the job with the given id.
func (q *Queue[J]) Get(id int64) (J, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.ID() == id {
			return j, true
		}
	}
	var zero J
	return zero, false
}

// Find returns a snapshot of all jobs matching the predicate, in
// submission order.
func (q *Queue[J]) Find(match func(J) bool) []J {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []J
	for _, j := range q.jobs {
		if match(j) {
			out = append(out, j)
		}
	}
	return out
}

// Active returns the currently executing job, if any.
func (q *Queue[J]) Active() (J, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil {
		var zero J
		return zero, false
	}
	return q.active.job, true
}

// Len returns the number of jobs in the queue, the active one included.
func (q *Queue[J]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Deleted is the stream of ids removed by Cancel and CancelAll.
func (q *Queue[J]) Deleted() *fanout.Broadcaster[[]int64] {
	return q.deleted
}

// removeLocked deletes a job from the list preserving order.
// Caller must hold q.mu.
func (q *Queue[J]) removeLocked(id int64) bool {
	for i, j := range q.jobs {
		if j.ID() == id {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return true
		}
	}
	return false
}
