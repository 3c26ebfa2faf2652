package engine

import (
	"errors"
	"fmt"
)

// RuntimeError describes a failure the engine isolated or halted on.
//
// Runtime errors are never returned from the public operations: they reach
// the Logger, slog and diagnostic signals, and Err() for the fatal ones.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// DispatchID identifies the affected dispatch, when there is one.
	DispatchID string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeHandlerFailed indicates a Handler sequence ended with an error
	// or panicked. Only that dispatch is affected.
	ErrCodeHandlerFailed RuntimeErrorCode = "HANDLER_FAILED"

	// ErrCodeReducerFailed indicates the Reducer panicked. Folding halts.
	ErrCodeReducerFailed RuntimeErrorCode = "REDUCER_FAILED"

	// ErrCodeEffectRejected indicates an Effect observer had no room.
	ErrCodeEffectRejected RuntimeErrorCode = "EFFECT_REJECTED"

	// ErrCodeEngineStopped indicates the engine context has ended.
	ErrCodeEngineStopped RuntimeErrorCode = "ENGINE_STOPPED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.DispatchID != "" {
		msg += fmt.Sprintf(" (dispatch=%s)", e.DispatchID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsHandlerError reports whether err is a Handler failure.
func IsHandlerError(err error) bool { return hasCode(err, ErrCodeHandlerFailed) }

// IsReducerError reports whether err is a Reducer failure.
func IsReducerError(err error) bool { return hasCode(err, ErrCodeReducerFailed) }

// IsEffectRejected reports whether err is an Effect rejection.
func IsEffectRejected(err error) bool { return hasCode(err, ErrCodeEffectRejected) }

// IsStopped reports whether err comes from a stopped engine.
func IsStopped(err error) bool { return hasCode(err, ErrCodeEngineStopped) }

// NewHandlerError wraps the error a Handler sequence ended with.
func NewHandlerError(dispatchID, action string, err error) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeHandlerFailed,
		Message:    fmt.Sprintf("handler for %s failed", action),
		DispatchID: dispatchID,
		Err:        err,
	}
}

// NewReducerError records a Reducer panic.
func NewReducerError(mutation string, recovered any) *RuntimeError {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return &RuntimeError{
		Code:    ErrCodeReducerFailed,
		Message: fmt.Sprintf("reducer panicked on %s", mutation),
		Err:     err,
	}
}

// NewEffectRejectedError records an Effect an observer could not take.
func NewEffectRejectedError(effect string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeEffectRejected,
		Message: fmt.Sprintf("effect %s rejected", effect),
		Err:     err,
	}
}

// NewStoppedError reports work refused because the engine context ended.
func NewStoppedError(cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeEngineStopped,
		Message: "engine stopped",
		Err:     cause,
	}
}
