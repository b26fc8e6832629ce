// ABOUTME: Structured error kinds returned by the task engines and the service layer
// ABOUTME: Transports map kinds to status codes; messages stay free of localization

package task

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnauthenticated   Kind = "unauthenticated"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindStorage           Kind = "storage"
)

// ErrUnauthenticated is returned when the caller presented no usable credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// ValidationError reports malformed input such as an empty title or a bad date.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError reports that no task with the given id exists.
type NotFoundError struct {
	TaskID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %d not found", e.TaskID)
}

// ForbiddenReason distinguishes the two ways a write can be refused.
type ForbiddenReason string

const (
	ReasonNotOwner ForbiddenReason = "not_owner"
	ReasonTerminal ForbiddenReason = "terminal"
)

// ForbiddenError reports an authenticated caller that may not touch the task,
// either because it belongs to someone else or because it is completed.
type ForbiddenError struct {
	TaskID int64
	Reason ForbiddenReason
}

func (e *ForbiddenError) Error() string {
	switch e.Reason {
	case ReasonTerminal:
		return fmt.Sprintf("task %d is completed and can no longer be changed", e.TaskID)
	default:
		return fmt.Sprintf("access to task %d denied", e.TaskID)
	}
}

// InvalidTransitionError reports a well-formed state that cannot follow the current one.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot set state from %s to %s", e.From, e.To)
}

// StorageError wraps a persistence failure. Callers may retry the whole operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Unknown errors are reported as storage failures.
func KindOf(err error) Kind {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		forbidden  *ForbiddenError
		transition *InvalidTransitionError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &forbidden):
		return KindForbidden
	case errors.As(err, &transition):
		return KindInvalidTransition
	default:
		return KindStorage
	}
}
