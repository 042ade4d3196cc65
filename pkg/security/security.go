// Package security provides validation, sanitization, and limits for the chatsync module.
package security

import (
	"strings"
	"unicode/utf8"

	"github.com/ykurenkov/chatsync/pkg/core"
)

// Limits
const (
	// MaxBatchFragments is the maximum number of update fragments per
	// hydration job. Long-poll batches in practice stay far below this.
	MaxBatchFragments = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxFilePathLength is the maximum length for upload file paths
	MaxFilePathLength = 4096
)

// ValidateBatch validates a batch of update fragments before admission.
func ValidateBatch(fragments []core.UpdateFragment) error {
	if len(fragments) == 0 {
		return core.ErrEmptyBatch
	}
	if len(fragments) > MaxBatchFragments {
		return core.ErrBatchTooLarge
	}
	for _, f := range fragments {
		if f.Full == nil && f.Backup == nil {
			return core.ErrBlankFragment
		}
	}
	return nil
}

// ValidateFileRef validates an upload file reference.
func ValidateFileRef(ref core.FileRef) error {
	if ref.Path == "" {
		return core.ErrInvalidFileRef
	}
	if len(ref.Path) > MaxFilePathLength {
		return core.ErrFilePathTooLong
	}
	if strings.ContainsRune(ref.Path, 0) {
		return core.ErrInvalidFileRef
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages before they
// are stored on a job or surfaced to the user.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	out := sanitized.String()
	if len(out) > MaxErrorMessageLength {
		out = out[:MaxErrorMessageLength]
		// Avoid splitting a multi-byte rune at the cut point
		for len(out) > 0 && !utf8.ValidString(out) {
			out = out[:len(out)-1]
		}
	}
	return out
}
