// Package errors provides error types and handling for storage operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a storage operation error with context about the
// operation that failed. It wraps the underlying SDK error with
// additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "upload", "rename", "deleteKeys")
	Op string

	// Bucket is the bucket name (if applicable)
	Bucket string

	// Key is the object key (if applicable)
	Key string

	// Err is the underlying error from the SDK or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3zen.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3zen.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3zen.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3zen.%s: %v", e.Op, e.Err)
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

// Sentinel errors for the engine's failure taxonomy.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidPath indicates a path was rejected by the sanitizer or
	// validator. Never retried; no remote call is made.
	ErrInvalidPath = errors.New("s3zen: invalid path")

	// ErrNotInitialized indicates the engine was used before the client
	// was configured. A programmer error, never retried.
	ErrNotInitialized = errors.New("s3zen: client not initialized")

	// ErrNotFound indicates the object or bucket does not exist.
	ErrNotFound = errors.New("s3zen: not found")

	// ErrAccessDenied indicates the credentials lack permission.
	ErrAccessDenied = errors.New("s3zen: access denied")

	// ErrSizeExceeded indicates a source above the absolute size cap.
	// Rejected pre-flight; no remote call is made.
	ErrSizeExceeded = errors.New("s3zen: file size exceeded")

	// ErrRetryExhausted indicates a transient failure that survived all
	// retry attempts. The original error is in the chain.
	ErrRetryExhausted = errors.New("s3zen: retries exhausted")

	// ErrCancelled indicates the task was cancelled by the caller.
	ErrCancelled = errors.New("s3zen: cancelled")

	// ErrConflictPending indicates a duplicate-name conflict awaiting a
	// resolution decision.
	ErrConflictPending = errors.New("s3zen: conflict resolution pending")

	// ErrShareExpiryOutOfRange indicates a share link expiry outside the
	// allowed range.
	ErrShareExpiryOutOfRange = errors.New("s3zen: share expiry out of range")
)

// IsInvalidPath checks if an error indicates a rejected path.
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}

// IsNotFound checks if an error indicates a missing object or bucket.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied checks if an error indicates denied access.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsCancelled checks if an error indicates caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// UserMessage maps an engine error to human-readable text suitable for
// display. Bulk operations report counts separately; this covers
// single-operation failures.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPath):
		return "The file or folder name contains characters that are not allowed."
	case errors.Is(err, ErrNotInitialized):
		return "The storage connection is not configured yet."
	case errors.Is(err, ErrNotFound):
		return "The requested file no longer exists in the bucket."
	case errors.Is(err, ErrAccessDenied):
		return "Your credentials do not permit this operation."
	case errors.Is(err, ErrSizeExceeded):
		return "The file is larger than the maximum allowed size."
	case errors.Is(err, ErrRetryExhausted):
		return "The storage service kept failing; please try again later."
	case errors.Is(err, ErrCancelled):
		return "The operation was cancelled."
	default:
		return "The operation failed: " + err.Error()
	}
}
