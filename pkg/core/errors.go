package core

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrEmptyBatch      = errors.New("chatsync: empty update batch")
	ErrBatchTooLarge   = errors.New("chatsync: update batch exceeds size limit")
	ErrBlankFragment   = errors.New("chatsync: fragment carries neither full nor backup shape")
	ErrInvalidFileRef  = errors.New("chatsync: invalid file reference")
	ErrFilePathTooLong = errors.New("chatsync: file path too long")
)

// QueueContainsError is returned at submission time when a hydration job
// would duplicate a message id that is already queued or active.
// Callers typically treat it as "already being handled" and move on.
type QueueContainsError struct {
	MessageID int
}

func (e *QueueContainsError) Error() string {
	return fmt.Sprintf("chatsync: queue already contains message %d", e.MessageID)
}

// IsQueueContains reports whether err is a duplicate-submission rejection.
func IsQueueContains(err error) bool {
	var qe *QueueContainsError
	return errors.As(err, &qe)
}

// UnsupportedDestinationError is returned at dispatch time when no upload
// strategy is registered for a destination's method/media combination.
// It indicates a programming error, not a recoverable runtime condition.
type UnsupportedDestinationError struct {
	Method Method
	Media  MediaKind
}

func (e *UnsupportedDestinationError) Error() string {
	return fmt.Sprintf("chatsync: no upload strategy for %s/%s", e.Method, e.Media)
}
