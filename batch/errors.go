package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchAborted is matched by every *AbortedError.
	ErrBatchAborted   = errors.New("batch: aborted on error")
	ErrCancelled      = errors.New("batch: cancelled")
	ErrRunInProgress  = errors.New("batch: run in progress")
	ErrNothingToRetry = errors.New("batch: no failed operations to retry")
)

// ItemError is recorded on every operation of a chunk whose confirming
// action failed.
type ItemError struct {
	OpID  string
	Chunk int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("batch: operation %s (chunk %d) failed: %v", e.OpID, e.Chunk, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// AbortedError is returned when StopOnError is set and a chunk failed.
// Operations after the failed chunk stay pending.
type AbortedError struct {
	Chunk int
	Err   error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("batch: aborted at chunk %d: %v", e.Chunk, e.Err)
}

func (e *AbortedError) Unwrap() []error { return []error{ErrBatchAborted, e.Err} }
