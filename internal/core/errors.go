package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrActionNotPending   = errors.New("action is not awaiting confirmation")
	ErrFeedbackAlreadySet = errors.New("feedback already recorded for this message")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrRecorderBusy       = errors.New("a recording is already in progress")
	ErrConcurrentUpdate   = errors.New("record changed while it was being updated")
)

// RoutingError means classification or answer generation failed.
type RoutingError struct {
	Stage string
	Err   error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed during %s: %v", e.Stage, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// UnsupportedActionError is returned for an action tag with no registered handler.
type UnsupportedActionError struct {
	ActionType string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action type %q", e.ActionType)
}

// ActionExecutionError wraps a handler failure. It is never retried.
type ActionExecutionError struct {
	ActionType string
	Err        error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.ActionType, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// SchedulingComputationError rejects malformed recurrence parameters.
type SchedulingComputationError struct {
	Field  string
	Reason string
}

func (e *SchedulingComputationError) Error() string {
	return fmt.Sprintf("invalid schedule: %s %s", e.Field, e.Reason)
}

// DeliveryFailure means a scheduled answer was produced but not delivered.
type DeliveryFailure struct {
	Method string
	Err    error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Method, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

// TranscriptionError keeps the clip duration so callers can still report it.
type TranscriptionError struct {
	Duration time.Duration
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// RecoverableError reports an optimistic change that was rolled back.
type RecoverableError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("%s rolled back: %s", e.Op, e.Reason)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// InvalidInputError rejects a request before any state changes.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }
