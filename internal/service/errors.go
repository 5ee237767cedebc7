package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
)

var ErrLockContended = errors.New("lock held by another checkout")

const (
	OutcomeCommitted    = "committed"
	OutcomeOutOfStock   = "out_of_stock"
	OutcomeUnavailable  = "unavailable"
	OutcomeTimeout      = "timeout"
	OutcomeRejected     = "rejected"
	OutcomeCommitFailed = "commit_failed"
	OutcomeError        = "error"
)

// interrupted turns an expired or cancelled context into a retryable error
// that still matches context.DeadlineExceeded or context.Canceled.
func interrupted(stage string, err error) error {
	return &domain.UnavailableError{Err: fmt.Errorf("%s interrupted: %w", stage, err)}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, domain.ErrReservedButOrderFailed):
		return OutcomeCommitFailed
	case errors.Is(err, domain.ErrOutOfStock):
		return OutcomeOutOfStock
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, domain.ErrTemporarilyUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrNotFound):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
