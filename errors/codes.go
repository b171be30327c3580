package errors

import (
	"context"
	"errors"
)

// ErrorCode classifies an upload failure.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Lifecycle errors.

	// CodeClosed indicates the stream or pipeline no longer accepts data.
	CodeClosed ErrorCode = "CLOSED"

	// CodeCanceled indicates the caller canceled the upload.
	CodeCanceled ErrorCode = "CANCELED"

	// Infrastructure errors.

	// CodeNotFound indicates the bucket or upload session does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeForbidden indicates the credentials lack permission for the operation.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeStore indicates the object store rejected or failed a request.
	CodeStore ErrorCode = "STORE_ERROR"

	// Generic errors.

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// CodeOf classifies err. For an AbortError the primary cause decides the code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var ae *AbortError
	if errors.As(err, &ae) {
		return CodeOf(ae.Cause)
	}

	switch {
	case errors.Is(err, ErrInvalidConfig):
		return CodeInvalidConfig
	case IsInvalidInput(err), errors.Is(err, ErrTooManyParts):
		return CodeInvalidInput
	case IsClosed(err):
		return CodeClosed
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrBucketNotFound), errors.Is(err, ErrNoSuchUpload):
		return CodeNotFound
	case errors.Is(err, ErrAccessDenied):
		return CodeForbidden
	}

	var e *Error
	if errors.As(err, &e) {
		return CodeStore
	}
	return CodeUnknown
}
