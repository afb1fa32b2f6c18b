package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allSentinels() []error {
	return []error{
		ErrAuthentication,
		ErrNotFound,
		ErrBatchCommitConflict,
		ErrDecryptionFailed,
		ErrOversizedItem,
		ErrSetupRequired,
		ErrSyncDisabled,
		ErrSyncInProgress,
	}
}

func TestSentinelErrors_ImplementErrorInterface(t *testing.T) {
	for _, err := range allSentinels() {
		assert.NotEmpty(t, err.Error(), "sentinel error should have non-empty message")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := allSentinels()
	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinel errors should be distinct: %q vs %q", sentinels[i], sentinels[j])
		}
	}
}

func TestSentinelErrors_SurviveWrapping(t *testing.T) {
	for _, err := range allSentinels() {
		wrapped := fmt.Errorf("fetching manifest: %w", err)
		assert.True(t, errors.Is(wrapped, err), "wrapped %q should match with errors.Is", err)
	}
}

func TestSentinelErrors_ExpectedMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrAuthentication, "remote authentication failed"},
		{ErrNotFound, "remote object not found"},
		{ErrDecryptionFailed, "decryption failed: wrong passphrase or corrupted data"},
		{ErrSyncInProgress, "sync already in progress"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
