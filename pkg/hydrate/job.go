package hydrate

import (
	"sync/atomic"

	"github.com/ykurenkov/chatsync/pkg/core"
)

// batchJob is one admitted hydration unit: either a batch of update
// fragments or a set of deletion notices. Fields other than status are
// written only by the single worker that owns the job once popped.
type batchJob struct {
	id             int64
	accountID      int64
	fragments      []core.UpdateFragment
	ignoreIfExists bool
	deletedIDs     []int // set only for deletion-notice jobs

	status atomic.Int32
}

func (j *batchJob) ID() int64 { return j.id }

func (j *batchJob) Status() core.Status {
	return core.Status(j.status.Load())
}

func (j *batchJob) SetStatus(s core.Status) {
	j.status.Store(int32(s))
}

// contains reports whether the job carries the given message id,
// the basis for duplicate-submission rejection.
func (j *batchJob) contains(messageID int) bool {
	for _, f := range j.fragments {
		if f.MessageID() == messageID {
			return true
		}
	}
	return false
}
