package upload

import (
	"sync"
	"sync/atomic"

	"github.com/ykurenkov/chatsync/pkg/core"
)

// Job is one admitted upload. Snapshot accessors are safe to call from any
// goroutine; mutation happens only on the queue's worker.
type Job struct {
	id         int64
	accountID  int64
	dest       core.Destination
	file       core.FileRef
	autoCommit bool

	status   atomic.Int32
	progress atomic.Int32

	// epoch guards progress reports: cancellation bumps it, and reports
	// captured under an older epoch are ignored. This replaces the weak
	// callback the progress path would otherwise need.
	epoch atomic.Int64

	mu     sync.Mutex
	errMsg string
	result *core.UploadResult
}

func (j *Job) ID() int64                     { return j.id }
func (j *Job) AccountID() int64              { return j.accountID }
func (j *Job) Destination() core.Destination { return j.dest }
func (j *Job) File() core.FileRef            { return j.file }
func (j *Job) AutoCommit() bool              { return j.autoCommit }

func (j *Job) Status() core.Status {
	return core.Status(j.status.Load())
}

func (j *Job) SetStatus(s core.Status) {
	j.status.Store(int32(s))
}

// Progress returns the last reported transfer percentage, 0-100.
func (j *Job) Progress() int {
	return int(j.progress.Load())
}

// ErrorMessage returns the sanitized failure message for errored jobs.
func (j *Job) ErrorMessage() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errMsg
}

func (j *Job) setErrorMessage(msg string) {
	j.mu.Lock()
	j.errMsg = msg
	j.mu.Unlock()
}

// advanceProgress raises the stored percentage, never lowering it, so that
// sampled values are monotonic for the job's lifetime.
func (j *Job) advanceProgress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	for {
		cur := j.progress.Load()
		if int32(pct) <= cur {
			return
		}
		if j.progress.CompareAndSwap(cur, int32(pct)) {
			return
		}
	}
}

func (j *Job) stashResult(r *core.UploadResult) {
	j.mu.Lock()
	j.result = r
	j.mu.Unlock()
}

func (j *Job) takeResult() *core.UploadResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := j.result
	j.result = nil
	return r
}
