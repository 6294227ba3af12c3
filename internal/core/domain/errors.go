package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoData indicates a run produced nothing to upload.
	ErrNoData = errors.New("no data collected")

	// Ledger Errors.

	// ErrBackendUnavailable indicates the ledger backend could not be reached.
	// Classification degrades to NEW for the affected owner.
	ErrBackendUnavailable = errors.New("ledger backend unavailable")

	// Upload Errors.

	// ErrUploadFailed indicates the ingestion endpoint rejected a batch or
	// could not be reached. The checkpoint for the batch is retained.
	ErrUploadFailed = errors.New("upload failed")

	// ErrTransientNetwork indicates a connection or timeout failure.
	// It is only recovered through the checkpoint resume path.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrNotificationFailed indicates the notification endpoint refused a message.
	ErrNotificationFailed = errors.New("notification failed")

	// Checkpoint Errors.

	// ErrCheckpointVersion indicates a checkpoint written with an unknown
	// serialization version. Such files are rejected, never guessed at.
	ErrCheckpointVersion = errors.New("unsupported checkpoint version")

	// ErrCheckpointCorrupt indicates a checkpoint that fails its integrity checks.
	ErrCheckpointCorrupt = errors.New("corrupt checkpoint")
)

// BackendUnavailableError reports a ledger access failure with the backend
// and operation that failed.
type BackendUnavailableError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("ledger %s: %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBackendUnavailable.
func (e *BackendUnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// TransientNetworkError is a connection or timeout failure.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransientNetworkError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransientNetwork.
func (e *TransientNetworkError) Is(target error) bool {
	return target == ErrTransientNetwork
}

// UploadError reports the chunk of a batch that could not be delivered.
// StatusCode is zero when the request never got a response; Err then holds
// a *TransientNetworkError, or the local failure that stopped the request
// from being built.
type UploadError struct {
	BatchID    string
	Chunk      int
	Total      int
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s chunk %d/%d: status %d: %s",
			e.BatchID, e.Chunk, e.Total, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upload %s chunk %d/%d: %v", e.BatchID, e.Chunk, e.Total, e.Err)
}

// Unwrap returns the underlying cause, if any.
func (e *UploadError) Unwrap() error { return e.Err }

// Is reports whether target is ErrUploadFailed.
func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed
}

// IsTransient reports whether err was caused by a connection or timeout failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}
