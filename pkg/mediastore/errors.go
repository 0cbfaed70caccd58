package mediastore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Sentinel errors for media store operations.
var (
	// ErrObjectNotFound indicates the referenced object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrKeyNotAllowed indicates the requested key matches none of the
	// configured upload patterns.
	ErrKeyNotAllowed = errors.New("key not allowed")

	// ErrAccessDenied indicates insufficient bucket permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrStoreUnavailable indicates the storage service is unavailable.
	ErrStoreUnavailable = errors.New("media store unavailable")
)

// StoreError wraps S3 failures with operation context.
type StoreError struct {
	// Op is the operation that failed (e.g., "UploadURL", "Verify").
	Op string

	// Bucket is the bucket name.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("mediastore %s: %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("mediastore %s: %s: %v", e.Op, e.Bucket, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// wrapError converts S3 errors to store errors with sentinel mapping.
func (s *Store) wrapError(op, key string, err error) error {
	wrapped := &StoreError{
		Op:     op,
		Bucket: s.cfg.Bucket,
		Key:    key,
		Err:    err,
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		wrapped.Err = ErrObjectNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = ErrObjectNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = ErrAccessDenied
		case "ServiceUnavailable", "InternalError", "SlowDown":
			wrapped.Err = ErrStoreUnavailable
		}
		return wrapped
	}

	// Fallback: HeadObject surfaces missing objects as a bare 404 in
	// some SDK paths.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NotFound") || strings.Contains(msg, "404"):
		wrapped.Err = ErrObjectNotFound
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "403"):
		wrapped.Err = ErrAccessDenied
	case strings.Contains(msg, "ServiceUnavailable") || strings.Contains(msg, "503"):
		wrapped.Err = ErrStoreUnavailable
	}

	return wrapped
}
