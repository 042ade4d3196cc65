package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ykurenkov/chatsync/pkg/core"
)

func TestValidateBatch(t *testing.T) {
	assert.ErrorIs(t, ValidateBatch(nil), core.ErrEmptyBatch)

	blank := []core.UpdateFragment{{}}
	assert.ErrorIs(t, ValidateBatch(blank), core.ErrBlankFragment)

	ok := []core.UpdateFragment{{Backup: &core.BackupFragment{MessageID: 1}}}
	assert.NoError(t, ValidateBatch(ok))

	huge := make([]core.UpdateFragment, MaxBatchFragments+1)
	for i := range huge {
		huge[i] = core.UpdateFragment{Backup: &core.BackupFragment{MessageID: i + 1}}
	}
	assert.ErrorIs(t, ValidateBatch(huge), core.ErrBatchTooLarge)
}

func TestValidateFileRef(t *testing.T) {
	assert.ErrorIs(t, ValidateFileRef(core.FileRef{}), core.ErrInvalidFileRef)
	assert.ErrorIs(t, ValidateFileRef(core.FileRef{Path: "a\x00b"}), core.ErrInvalidFileRef)
	assert.ErrorIs(t, ValidateFileRef(core.FileRef{Path: strings.Repeat("x", MaxFilePathLength+1)}), core.ErrFilePathTooLong)
	assert.NoError(t, ValidateFileRef(core.FileRef{Path: "/tmp/photo.jpg", Name: "photo.jpg", Size: 1}))
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
	assert.Equal(t, "plain message", SanitizeErrorMessage("plain message"))
	assert.Equal(t, "ab", SanitizeErrorMessage("a\x00b"))
	assert.Equal(t, "line1\nline2", SanitizeErrorMessage("line1\nline2"))

	long := strings.Repeat("x", MaxErrorMessageLength+100)
	assert.Len(t, SanitizeErrorMessage(long), MaxErrorMessageLength)
}
