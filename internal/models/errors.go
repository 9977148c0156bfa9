package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies capture failures so callers can decide how to react
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindBusy                ErrorKind = "busy"
	KindPermissionDenied    ErrorKind = "permission_denied"
	KindStrategyUnavailable ErrorKind = "strategy_unavailable"
	KindCompletionTimeout   ErrorKind = "completion_timeout"
	KindFileError           ErrorKind = "file_error"
	KindMergeFailure        ErrorKind = "merge_failure"
	KindInvalidState        ErrorKind = "invalid_state"
	KindUnsupported         ErrorKind = "unsupported"
	KindCapture             ErrorKind = "capture_error"
)

// Sentinels for errors.Is matching against a CaptureError's kind
var (
	ErrValidation          = &CaptureError{Kind: KindValidation}
	ErrBusy                = &CaptureError{Kind: KindBusy}
	ErrPermissionDenied    = &CaptureError{Kind: KindPermissionDenied}
	ErrStrategyUnavailable = &CaptureError{Kind: KindStrategyUnavailable}
	ErrCompletionTimeout   = &CaptureError{Kind: KindCompletionTimeout}
	ErrFile                = &CaptureError{Kind: KindFileError}
	ErrMergeFailure        = &CaptureError{Kind: KindMergeFailure}
	ErrInvalidState        = &CaptureError{Kind: KindInvalidState}
	ErrUnsupported         = &CaptureError{Kind: KindUnsupported}
	ErrCapture             = &CaptureError{Kind: KindCapture}
)

// CaptureError is the error type returned across component boundaries
type CaptureError struct {
	Kind    ErrorKind
	Message string
	// Path is the best-known partial artifact location, if any
	Path string
	// Issues holds validation problems for KindValidation
	Issues []string
	Err    error
}

// NewError creates a CaptureError of the given kind
func NewError(kind ErrorKind, format string, args ...any) *CaptureError {
	return &CaptureError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a CaptureError of the given kind around err
func WrapError(kind ErrorKind, err error, format string, args ...any) *CaptureError {
	return &CaptureError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithPath returns the error annotated with a partial artifact path
func (e *CaptureError) WithPath(path string) *CaptureError {
	e.Path = path
	return e
}

func (e *CaptureError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (partial artifact: %s)", msg, e.Path)
	}
	return msg
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is matches any CaptureError of the same kind
func (e *CaptureError) Is(target error) bool {
	var t *CaptureError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the ErrorKind of err, or KindCapture for foreign errors
func KindOf(err error) ErrorKind {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindCapture
}

// PathOf returns the partial artifact path carried by err, if any
func PathOf(err error) string {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Path
	}
	return ""
}

// Remediation returns user guidance for error kinds that need manual action
func Remediation(kind ErrorKind) string {
	switch kind {
	case KindPermissionDenied:
		return "Grant screen recording permission in the system privacy settings, then restart the recording."
	case KindCompletionTimeout:
		return "The capture agent did not confirm the file; the temporary artifact was kept for manual recovery."
	case KindFileError:
		return "The recording could not be moved to the destination; it remains at the temporary location."
	case KindMergeFailure:
		return "Audio tracks could not be merged; both source files were kept."
	}
	return ""
}
