package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"allyboard/internal/constants"
)

var (
	retryAttempts  = constants.DefaultDatabaseRetryAttempts
	initialBackoff = time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond
	maxBackoff     = time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond
)

// retryable runs operation until it succeeds, fails with a non-transient
// error, or the attempts run out. Backoff grows linearly per attempt.
func retryable(ctx context.Context, operationName string, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableDBError(err) {
			return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
		}
		if attempt == retryAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, retryAttempts, lastErr)
}

func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "disk I/O error")
}
