package domain

import (
	"errors"
	"fmt"
)

// ValidationError is a local, recoverable rejection of form input.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	// ErrAllZero rejects a submission whose four values are all zero.
	ErrAllZero = &ValidationError{Code: "all_zero", Message: "enter at least one non-zero value"}
	// ErrNegativeCount rejects negative DM or sales counts.
	ErrNegativeCount = &ValidationError{Code: "negative_count", Message: "DM and sales counts cannot be negative"}
)

// ErrNotReady is matched by every NotReadyError.
var ErrNotReady = errors.New("dashboard is not ready")

// ConfigError reports a missing or malformed store configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError reports a failed identity acquisition.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// SubscriptionError reports a failed live collection stream. The
// subscription is not re-established automatically.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string {
	return "live updates stopped: " + e.Err.Error() + " (reload to reconnect)"
}
func (e *SubscriptionError) Unwrap() error { return e.Err }

// PersistenceError reports a failed create or delete request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("could not %s record: %v", e.Op, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

// NotReadyError is returned when an operation is attempted before the
// session is subscribed.
type NotReadyError struct {
	State string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s (session is %s)", ErrNotReady.Error(), e.State)
}
func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }
