package upload

import (
	"context"

	"github.com/ykurenkov/chatsync/pkg/core"
)

// Uploader is the per-destination-kind strategy performing the actual
// transfer. session is the previously cached server session token, or ""
// if none applies. progress receives the transfer percentage and must be
// cheap; the pipeline samples the value independently.
type Uploader interface {
	Upload(ctx context.Context, job *Job, session string, progress func(pct int)) (*core.UploadResult, error)
}

// StrategyKey identifies one entry of the fixed dispatch table.
// Media is MediaNone except for composite message/wall destinations.
type StrategyKey struct {
	Method core.Method
	Media  core.MediaKind
}

// StrategyTable maps destinations to uploaders. The table is closed at
// construction time: a destination with no entry fails at dispatch with an
// UnsupportedDestinationError, never silently.
type StrategyTable map[StrategyKey]Uploader

// resolve picks the strategy for a destination: exact method/media entry
// first, then the method-wide fallback.
func (t StrategyTable) resolve(d core.Destination) (Uploader, error) {
	if u, ok := t[StrategyKey{Method: d.Method, Media: d.Media}]; ok {
		return u, nil
	}
	if u, ok := t[StrategyKey{Method: d.Method}]; ok {
		return u, nil
	}
	return nil, &core.UnsupportedDestinationError{Method: d.Method, Media: d.Media}
}
