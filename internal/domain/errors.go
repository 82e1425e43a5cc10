package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// ErrorKind classifies conversion failures for retry and reporting decisions.
type ErrorKind string

const (
	// ErrInput marks invalid caller input. Never retried.
	ErrInput ErrorKind = "input"
	// ErrCapability marks a missing or unusable external tool.
	ErrCapability ErrorKind = "capability"
	// ErrExternal marks an external tool that ran but failed.
	ErrExternal ErrorKind = "external"
	// ErrFilesystem marks path, permission, or disk failures.
	ErrFilesystem ErrorKind = "filesystem"
	// ErrCancelled marks a user-cancelled job. Not a failure.
	ErrCancelled ErrorKind = "cancelled"
	// ErrInternal marks invariant violations. Always fatal.
	ErrInternal ErrorKind = "internal"
)

// ConvertError is a kind-tagged error carrying a user-facing message and
// ordered troubleshooting guidance alongside the wrapped cause.
type ConvertError struct {
	Kind            ErrorKind `json:"kind"`
	Op              string    `json:"op"`
	Message         string    `json:"message"`
	Troubleshooting []string  `json:"troubleshooting,omitempty"`
	Err             error     `json:"-"`
}

// Error formats the failure for logs and the UI error channel.
func (e *ConvertError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ConvertError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a tagged conversion error.
func NewError(kind ErrorKind, op, message string, err error) *ConvertError {
	return &ConvertError{Kind: kind, Op: op, Message: message, Err: err}
}

// WithSteps attaches troubleshooting guidance and returns the same error.
func (e *ConvertError) WithSteps(steps ...string) *ConvertError {
	e.Troubleshooting = steps
	return e
}

// KindOf extracts the error kind, defaulting unknown errors to external.
func KindOf(err error) ErrorKind {
	var cerr *ConvertError
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ErrExternal
}

// IsRetryable reports whether a job-level retry may help.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrInput, ErrInternal, ErrCancelled:
		return false
	default:
		return true
	}
}

// ClassifyFilesystem wraps an OS error with specific corrective guidance
// derived from the underlying error code.
func ClassifyFilesystem(op, path string, err error) *ConvertError {
	cerr := NewError(ErrFilesystem, op, fmt.Sprintf("filesystem operation failed for %s", path), err)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cerr.Message = fmt.Sprintf("path does not exist: %s", path)
		cerr.Troubleshooting = []string{"Verify the folder exists and has not been moved or deleted."}
	case errors.Is(err, fs.ErrPermission):
		cerr.Message = fmt.Sprintf("permission denied: %s", path)
		cerr.Troubleshooting = []string{"Choose a folder you have write access to, or adjust its permissions."}
	case errors.Is(err, syscall.ENOSPC):
		cerr.Message = "disk is full"
		cerr.Troubleshooting = []string{"Free up disk space or choose an output folder on another drive."}
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		cerr.Message = "too many open files"
		cerr.Troubleshooting = []string{"Close other applications and retry the conversion."}
	}
	return cerr
}
