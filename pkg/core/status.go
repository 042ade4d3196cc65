package core

// Status represents the current state of a queued job.
//
// Successful completion removes the job from its queue instead of
// transitioning to a terminal status, so there is no "done" value.
type Status int32

const (
	StatusQueued Status = iota
	StatusActive
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
