package token

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store when no token is stored under a key
	ErrNotFound = errors.New("token: not found")

	// ErrMissingCredentials is returned when a context has no username
	ErrMissingCredentials = errors.New("token: username and password required")

	// ErrEmptyToken is returned when the login endpoint answers without a token
	ErrEmptyToken = errors.New("token: login returned an empty token")
)

// Store is a second-level token store shared between processes.
// Keys are opaque hashes; tokens are stored as issued.
type Store interface {
	// Get returns the token and its remaining lifetime, or ErrNotFound
	Get(ctx context.Context, key string) (string, time.Duration, error)

	// Set stores the token for ttl
	Set(ctx context.Context, key, token string, ttl time.Duration) error

	// Delete removes the token. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// StoreError wraps a failure of the backing store.
type StoreError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewStoreError creates a new store error
func NewStoreError(message string, retryable bool) *StoreError {
	return &StoreError{
		Message:   message,
		Retryable: retryable,
	}
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Underlying != nil {
		return e.Message + ": " + e.Underlying.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Underlying
}

// WithError adds an underlying error
func (e *StoreError) WithError(err error) *StoreError {
	e.Underlying = err
	return e
}

// IsRetryable returns whether the error is retryable
func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}
