package crawler

import (
	"errors"
	"fmt"
)

// Op names the upstream capability that failed.
type Op string

// Upstream operations.
const (
	OpSearch   Op = "search"
	OpDetail   Op = "detail"
	OpComments Op = "comments"
)

// Error classes matched with errors.Is.
var (
	ErrUpstreamSearch  = errors.New("upstream search failed")
	ErrUpstreamDetail  = errors.New("upstream detail failed")
	ErrUpstreamComment = errors.New("upstream comments failed")
	ErrDelivery        = errors.New("event delivery failed")
	ErrUnhandled       = errors.New("unhandled run failure")
)

// UpstreamError reports a failed upstream call together with the message the
// upstream returned, if any.
type UpstreamError struct {
	Op      Op
	Message string
	Err     error
}

// NewUpstreamError builds an UpstreamError.
func NewUpstreamError(op Op, message string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Message: message, Err: err}
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return string(e.Op) + ": upstream call failed"
	}
}

// Unwrap returns the underlying transport error.
func (e *UpstreamError) Unwrap() error { return e.Err }

// Is maps the operation to its error class.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamSearch:
		return e.Op == OpSearch
	case ErrUpstreamDetail:
		return e.Op == OpDetail
	case ErrUpstreamComment:
		return e.Op == OpComments
	default:
		return false
	}
}

// PanicError wraps a value recovered at the orchestrator boundary.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Is matches ErrUnhandled.
func (e *PanicError) Is(target error) bool { return target == ErrUnhandled }
