// Package domain defines core types, interfaces, and errors for the order handlers.
package domain

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates a missing or invalid target or handler setting.
// It is raised before any remote call is made.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Message
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

// ValidationError indicates invalid request input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TransportError wraps a network, auth or throttling failure on a remote call.
type TransportError struct {
	Op        string // remote operation, e.g. "DescribeStatement"
	Err       error
	Retryable bool
	Throttled bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatementFailedError means the engine reported the statement as FAILED or
// ABORTED. It is terminal; only a resubmission can change the result.
type StatementFailedError struct {
	ID      string
	Status  StatementStatus
	Message string
}

func (e *StatementFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("statement %s %s", e.ID, e.Status)
	}
	return fmt.Sprintf("statement %s %s: %s", e.ID, e.Status, e.Message)
}

// PollTimeoutError means the poll budget ran out before the statement reached a
// terminal status. The statement may still complete on the engine.
type PollTimeoutError struct {
	ID         string
	Attempts   int
	LastStatus StatementStatus
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("statement %s still %s after %d polls", e.ID, e.LastStatus, e.Attempts)
}

// CancelledError means polling stopped because the caller's context ended.
// The remote statement is left running.
type CancelledError struct {
	ID  string
	Err error
}

func (e *CancelledError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("request cancelled: %v", e.Err)
	}
	return fmt.Sprintf("polling statement %s cancelled: %v", e.ID, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// StepError attributes a failure to one step of a multi-statement run.
type StepError struct {
	Index       int
	Name        string
	StatementID string
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ErrConfiguration creates a ConfigurationError with a formatted message.
func ErrConfiguration(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err carries a transport failure worth retrying.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}
