package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/lehigh-university-libraries/figurebench/internal/providers"
)

var (
	// ErrValidation marks a command rejected before reaching the gateway.
	// The session state is unchanged.
	ErrValidation = errors.New("invalid command")
	ErrCancelled  = errors.New("operation cancelled")
	ErrTimeout    = errors.New("operation timed out")
)

// CancelledMessage is recorded in LastError when the user cancels.
const CancelledMessage = "Operation cancelled by user"

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether re-triggering the same command may succeed.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, providers.ErrNotConfigured),
		errors.Is(err, providers.ErrUnsupported):
		return false
	}
	return true
}

func (s *Session) classify(err error) error {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrCancelled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s: %w", ErrTimeout, s.timeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}
