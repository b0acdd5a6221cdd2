package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vultuk/whatsapp-translator/internal/constants"
	apperrors "github.com/vultuk/whatsapp-translator/internal/errors"
)

// retryableDBOperation executes a database operation with retry logic
// for transient SQLite contention.
func retryableDBOperation(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error

	maxAttempts := constants.DefaultDatabaseRetryAttempts
	initialBackoff := time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableDBError(err) {
			return apperrors.NewDatabaseError(operationName, err)
		}

		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if backoff > time.Duration(constants.DefaultMaxBackoffMs)*time.Millisecond {
			backoff = time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	// Contention outlasted the schedule; the caller may try again later.
	return apperrors.WrapRetryable(lastErr, apperrors.ErrCodeDatabaseQuery,
		fmt.Sprintf("%s failed after %d attempts", operationName, maxAttempts))
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"database is locked",
		"database table is locked",
		"busy",
		"timeout",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
