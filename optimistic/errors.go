package optimistic

import (
	"errors"
	"fmt"
)

var (
	// ErrConfirmationFailed is matched by every *ConfirmationError.
	ErrConfirmationFailed = errors.New("optimistic: confirmation failed")
	ErrUnknownID          = errors.New("optimistic: unknown id")
	ErrIndexOutOfRange    = errors.New("optimistic: index out of range")
)

// Op names a mutating operation.
type Op string

const (
	OpAdd         Op = "add"
	OpUpdate      Op = "update"
	OpRemove      Op = "remove"
	OpReorder     Op = "reorder"
	OpBatchAdd    Op = "batchAdd"
	OpBatchRemove Op = "batchRemove"
	OpBatchUpdate Op = "batchUpdate"
)

// ConfirmationError is returned when a confirming action failed. By the time
// the caller sees it the list has been restored to its pre-mutation state.
type ConfirmationError struct {
	Op  Op
	Err error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("optimistic: %s rolled back: %v", e.Op, e.Err)
}

func (e *ConfirmationError) Unwrap() []error { return []error{ErrConfirmationFailed, e.Err} }
