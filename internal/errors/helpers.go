package errors

import (
	"fmt"
	"time"
)

// NewConfigError creates a configuration error for a specific key
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key)
}

// NewSpawnError wraps a subprocess spawn failure
func NewSpawnError(binaryPath string, err error) *AppError {
	return Wrap(err, ErrCodeProcessSpawn, "failed to spawn bridge process").
		WithContext("binary_path", binaryPath)
}

// NewTimeoutError creates a correlation timeout error
func NewTimeoutError(requestID int64, timeout time.Duration) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("no response within %s", timeout)).
		WithContext("request_id", requestID)
}

// NewNotConnectedError creates an error for commands issued while disconnected
func NewNotConnectedError(state string) *AppError {
	return New(ErrCodeNotConnected, "bridge is not connected").
		WithContext("state", state)
}

// NewDatabaseError creates a store error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}
