// Package store implements the object store adapter: staged NDJSON objects
// with attached metadata, listed by prefix.
//
// This file defines sentinel errors and error wrappers for classifying
// object store failures. Failures are returned, never panicked; callers use
// errors.Is to decide between write-aside (retry-worthy) and escalation.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for object store failure classification.
var (
	// ErrUnavailable indicates a transient failure (network, 5xx, throttling).
	// Retry-worthy: the batch is written aside and retried next tick.
	ErrUnavailable = errors.New("object store unavailable")

	// ErrPermission indicates a credential or authorization failure.
	ErrPermission = errors.New("permission denied")

	// ErrNotFound indicates the object or bucket does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrMalformed indicates the store rejected the object name or metadata.
	ErrMalformed = errors.New("malformed object name or metadata")

	// ErrDiskFull indicates local storage is out of space (simulation backend).
	ErrDiskFull = errors.New("no space left on device")
)

// StorageError wraps an underlying error with classification.
// The original error stays in the chain for errors.As inspection.
type StorageError struct {
	// Kind is the sentinel error for classification.
	Kind error
	// Op is the operation that failed ("upload", "list", "delete", "status").
	Op string
	// Name is the object name or prefix involved, if any.
	Name string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for chain traversal.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapError classifies and wraps an operation error. Returns nil for nil.
func wrapError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{
		Kind: classify(err),
		Op:   op,
		Name: name,
		Err:  err,
	}
}

// Retryable reports whether the error is worth retrying on a later tick.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// classify determines the sentinel for an error based on typed checks and
// provider message patterns.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrUnavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "no such file", "does not exist", "not found", "enoent", "404", "nosuchkey", "notfound", "nosuchbucket"):
		return ErrNotFound

	case containsAny(msg, "accessdenied", "forbidden", "403", "permission denied", "unauthorized", "401",
		"nocredentialproviders", "could not find default credentials", "invalidaccesskeyid",
		"signaturedoesnotmatch", "expiredtoken"):
		return ErrPermission

	case containsAny(msg, "invalid object name", "invalidargument", "invalid metadata", "metadata header",
		"keytoolong", "invalid character", "400"):
		return ErrMalformed

	case containsAny(msg, "no space left", "disk full", "enospc", "quota exceeded"):
		return ErrDiskFull

	default:
		// Network failures, 5xx, throttling, timeouts: transient.
		return ErrUnavailable
	}
}

// containsAny checks whether msg contains any of the substrings.
func containsAny(msg string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
