package errors

import "errors"

// Remote store errors.
var (
	ErrAuthentication      = errors.New("remote authentication failed")
	ErrNotFound            = errors.New("remote object not found")
	ErrBatchCommitConflict = errors.New("batch commit rejected")
)

// Content errors.
var (
	ErrDecryptionFailed = errors.New("decryption failed: wrong passphrase or corrupted data")
	ErrOversizedItem    = errors.New("item exceeds maximum sync size")
)

// Orchestrator errors.
var (
	ErrSetupRequired  = errors.New("sync setup required")
	ErrSyncDisabled   = errors.New("sync is disabled")
	ErrSyncInProgress = errors.New("sync already in progress")
)
