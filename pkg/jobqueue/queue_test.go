package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykurenkov/chatsync/pkg/core"
)

type testJob struct {
	id     int64
	status atomic.Int32
}

func newTestJob() *testJob {
	return &testJob{id: NextID()}
}

func (j *testJob) ID() int64               { return j.id }
func (j *testJob) Status() core.Status     { return core.Status(j.status.Load()) }
func (j *testJob) SetStatus(s core.Status) { j.status.Store(int32(s)) }

// harness drives a queue with a gated exec: every job reports its start on
// the starts channel and then blocks until the test feeds an outcome on
// proceed (or the job is cancelled).
type harness struct {
	q       *Queue[*testJob]
	starts  chan int64
	proceed chan error
}

func newHarness(t *testing.T, retainFailed bool) *harness {
	t.Helper()
	h := &harness{
		starts:  make(chan int64, 16),
		proceed: make(chan error),
	}
	h.q = New(Config[*testJob]{
		RetainFailed: retainFailed,
		Exec: func(ctx context.Context, j *testJob) error {
			h.starts <- j.ID()
			select {
			case err := <-h.proceed:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return h
}

func (h *harness) expectStart(t *testing.T, id int64) {
	t.Helper()
	select {
	case got := <-h.starts:
		require.Equal(t, id, got, "wrong job started")
	case <-time.After(2 * time.Second):
		t.Fatalf("job %d never started", id)
	}
}

func (h *harness) expectNoStart(t *testing.T) {
	t.Helper()
	select {
	case got := <-h.starts:
		t.Fatalf("unexpected start of job %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) finish(t *testing.T, err error) {
	t.Helper()
	select {
	case h.proceed <- err:
	case <-time.After(2 * time.Second):
		t.Fatal("no job was waiting for an outcome")
	}
}

func activeCount(q *Queue[*testJob]) int {
	n := 0
	for _, j := range q.Find(func(*testJob) bool { return true }) {
		if j.Status() == core.StatusActive {
			n++
		}
	}
	return n
}

func TestQueue_FIFODrainOrder(t *testing.T) {
	h := newHarness(t, false)
	j1, j2, j3 := newTestJob(), newTestJob(), newTestJob()

	h.q.Submit(j1)
	h.q.Submit(j2)
	h.q.Submit(j3)
	h.q.StartIfIdle()

	h.expectStart(t, j1.id)
	assert.LessOrEqual(t, activeCount(h.q), 1)
	h.finish(t, nil)

	h.expectStart(t, j2.id)
	assert.LessOrEqual(t, activeCount(h.q), 1)
	h.finish(t, nil)

	h.expectStart(t, j3.id)
	h.finish(t, nil)

	require.Eventually(t, func() bool { return h.q.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_AtMostOneActive(t *testing.T) {
	h := newHarness(t, false)
	for i := 0; i < 5; i++ {
		h.q.Submit(newTestJob())
		h.q.StartIfIdle()
		h.q.StartIfIdle() // repeated drains must not double-start
	}

	<-h.starts
	assert.Equal(t, 1, activeCount(h.q))
	h.expectNoStart(t)
}

func TestQueue_StartIfIdleOnEmptyQueue(t *testing.T) {
	h := newHarness(t, false)
	h.q.StartIfIdle()
	h.expectNoStart(t)
}

func TestQueue_SubmitChecked_RejectsConflict(t *testing.T) {
	h := newHarness(t, false)
	j1 := newTestJob()
	h.q.Submit(j1)

	sentinel := errors.New("conflict")
	err := h.q.SubmitChecked(newTestJob(), func(other *testJob) error {
		if other.ID() == j1.id {
			return sentinel
		}
		return nil
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, h.q.Len(), "rejected submission must not enqueue")

	require.NoError(t, h.q.SubmitChecked(newTestJob(), func(*testJob) error { return nil }))
	assert.Equal(t, 2, h.q.Len())
}

func TestQueue_CancelActiveFreesSlot(t *testing.T) {
	h := newHarness(t, false)
	j1, j2 := newTestJob(), newTestJob()
	h.q.Submit(j1)
	h.q.Submit(j2)
	h.q.StartIfIdle()
	h.expectStart(t, j1.id)

	deleted := h.q.Deleted().Subscribe()
	defer h.q.Deleted().Unsubscribe(deleted)

	require.True(t, h.q.Cancel(j1.id))

	// The next queued job must start without any further trigger.
	h.expectStart(t, j2.id)
	assert.Equal(t, []int64{j1.id}, <-deleted)
	h.finish(t, nil)
}

func TestQueue_CancelQueuedJob(t *testing.T) {
	h := newHarness(t, false)
	j1, j2 := newTestJob(), newTestJob()
	h.q.Submit(j1)
	h.q.Submit(j2)
	h.q.StartIfIdle()
	h.expectStart(t, j1.id)

	require.True(t, h.q.Cancel(j2.id))
	assert.Equal(t, 1, h.q.Len())

	h.finish(t, nil)
	h.expectNoStart(t)
}

func TestQueue_CancelUnknownIDIsNoOp(t *testing.T) {
	h := newHarness(t, false)
	assert.False(t, h.q.Cancel(99999))
}

func TestQueue_CancelAll_SingleDeletionEvent(t *testing.T) {
	h := newHarness(t, false)
	j1, j2, j3 := newTestJob(), newTestJob(), newTestJob()
	h.q.Submit(j1)
	h.q.Submit(j2)
	h.q.Submit(j3)
	h.q.StartIfIdle()
	h.expectStart(t, j1.id)

	deleted := h.q.Deleted().Subscribe()
	defer h.q.Deleted().Unsubscribe(deleted)

	// Remove the active job and one queued job, keep j2.
	ids := h.q.CancelAll(func(j *testJob) bool { return j.ID() != j2.id })
	assert.ElementsMatch(t, []int64{j1.id, j3.id}, ids)

	select {
	case event := <-deleted:
		assert.ElementsMatch(t, []int64{j1.id, j3.id}, event)
	case <-time.After(2 * time.Second):
		t.Fatal("no deletion event")
	}

	// j2 survives and becomes active.
	h.expectStart(t, j2.id)
	h.finish(t, nil)
}

func TestQueue_FailedJobDroppedWithoutRetain(t *testing.T) {
	h := newHarness(t, false)
	j1, j2 := newTestJob(), newTestJob()
	h.q.Submit(j1)
	h.q.Submit(j2)
	h.q.StartIfIdle()

	h.expectStart(t, j1.id)
	h.finish(t, errors.New("boom"))

	// Failure drops the job and drains to the next one.
	h.expectStart(t, j2.id)
	assert.Equal(t, 1, h.q.Len())
	h.finish(t, nil)
}

func TestQueue_RetainFailed_KeepsErroredJob(t *testing.T) {
	h := newHarness(t, true)
	j1 := newTestJob()
	h.q.Submit(j1)
	h.q.StartIfIdle()

	h.expectStart(t, j1.id)
	h.finish(t, errors.New("boom"))

	require.Eventually(t, func() bool { return j1.Status() == core.StatusError }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.q.Len())

	// Errored jobs are skipped by the drain.
	h.q.StartIfIdle()
	h.expectNoStart(t)
}

func TestQueue_RetryPreservesPosition(t *testing.T) {
	h := newHarness(t, true)
	j1 := newTestJob()
	h.q.Submit(j1)
	h.q.StartIfIdle()
	h.expectStart(t, j1.id)
	h.finish(t, errors.New("boom"))
	require.Eventually(t, func() bool { return j1.Status() == core.StatusError }, 2*time.Second, 10*time.Millisecond)

	// j2 drains past the errored j1.
	j2 := newTestJob()
	h.q.Submit(j2)
	h.q.StartIfIdle()
	h.expectStart(t, j2.id)

	// Retry while j2 runs, then add j3 behind everything.
	j3 := newTestJob()
	h.q.Submit(j3)
	require.True(t, h.q.Retry(j1.id))
	assert.Equal(t, core.StatusQueued, j1.Status())

	// j1 kept its head position, so it runs before j3.
	h.finish(t, nil)
	h.expectStart(t, j1.id)
	h.finish(t, nil)
	h.expectStart(t, j3.id)
	h.finish(t, nil)
}

func TestQueue_RetryOnlyAppliesToErroredJobs(t *testing.T) {
	h := newHarness(t, true)
	j1 := newTestJob()
	h.q.Submit(j1)
	assert.False(t, h.q.Retry(j1.id), "queued job is not retryable")
}

func TestQueue_HasPendingAndGet(t *testing.T) {
	h := newHarness(t, false)
	j1 := newTestJob()
	h.q.Submit(j1)

	assert.True(t, h.q.HasPending(func(j *testJob) bool { return j.ID() == j1.id }))
	assert.False(t, h.q.HasPending(func(j *testJob) bool { return j.ID() == -1 }))

	got, ok := h.q.Get(j1.id)
	require.True(t, ok)
	assert.Same(t, j1, got)

	_, ok = h.q.Get(-1)
	assert.False(t, ok)
}

func TestNextID_Monotonic(t *testing.T) {
	a := NextID()
	b := NextID()
	assert.Greater(t, b, a)
}
