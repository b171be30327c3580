// Package errors provides error types and handling for streaming uploads.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a failed upload operation with context about the target object.
// It wraps the underlying store or SDK error with additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "write", "uploadPart", "completeSession")
	Op string

	// Bucket is the bucket name (if applicable)
	Bucket string

	// Key is the object key (if applicable)
	Key string

	// Err is the underlying error from the store or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3io.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3io.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3io.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3io.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// AbortError reports a session that failed and whose abort also failed.
// Cause is the primary failure; AbortErr is attached so that neither is lost.
type AbortError struct {
	Cause    error
	AbortErr error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%v (abort failed: %v)", e.Cause, e.AbortErr)
}

// Unwrap exposes both errors to errors.Is and errors.As.
func (e *AbortError) Unwrap() []error {
	return []error{e.Cause, e.AbortErr}
}

// WithAbort combines a primary failure with the result of aborting the session.
// It returns cause unchanged when the abort succeeded.
func WithAbort(cause, abortErr error) error {
	if abortErr == nil {
		return cause
	}
	return &AbortError{Cause: cause, AbortErr: abortErr}
}

// Sentinel errors for common upload failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrClosed indicates a write or flush on a stream that has been closed
	ErrClosed = errors.New("s3io: stream closed")

	// ErrPipelineClosed indicates that the upload pipeline accepts no further parts
	ErrPipelineClosed = errors.New("s3io: pipeline closed")

	// ErrCanceled indicates that the upload was canceled by the caller
	ErrCanceled = errors.New("s3io: upload canceled")

	// ErrInvalidConfig indicates that the writer or client configuration is unusable
	ErrInvalidConfig = errors.New("s3io: invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("s3io: invalid input")

	// ErrInvalidBucketName indicates that the bucket name is invalid
	ErrInvalidBucketName = errors.New("s3io: invalid bucket name")

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = errors.New("s3io: invalid object key")

	// ErrTooManyParts indicates that the stream exceeded the store's part count limit
	ErrTooManyParts = errors.New("s3io: too many parts")

	// ErrBucketNotFound indicates that the target bucket does not exist
	ErrBucketNotFound = errors.New("s3io: bucket not found")

	// ErrNoSuchUpload indicates that the store no longer knows the upload session
	ErrNoSuchUpload = errors.New("s3io: no such upload")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("s3io: access denied")

	// ErrEntityTooSmall indicates that a non-final part was below the minimum part size
	ErrEntityTooSmall = errors.New("s3io: part too small")

	// ErrChecksumMismatch indicates that the store rejected a part or object digest
	ErrChecksumMismatch = errors.New("s3io: checksum mismatch")

	// ErrTimeout indicates that the operation timed out
	ErrTimeout = errors.New("s3io: operation timeout")
)

// IsClosed reports whether err was caused by using a closed stream or pipeline.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrPipelineClosed)
}

// IsInvalidConfig reports whether err indicates an unusable configuration.
func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsInvalidInput checks if an error indicates invalid input.
// Bucket and key validation failures count as invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidBucketName) ||
		errors.Is(err, ErrInvalidObjectKey)
}

// IsAbortFailed reports whether err carries a failed session abort.
func IsAbortFailed(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}
