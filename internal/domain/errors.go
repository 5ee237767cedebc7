package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced by the checkout pipeline. Typed errors below match
// their kind through errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrBadRequest             = errors.New("bad request")
	ErrOutOfStock             = errors.New("out of stock")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrStorageFault           = errors.New("storage fault")
	ErrReservedButOrderFailed = errors.New("reservation succeeded but order was not persisted")
)

// NotFoundf builds an error of kind ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// BadRequestf builds an error of kind ErrBadRequest.
func BadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// OutOfStockError is returned when the conditional decrement for a product
// did not match.
type OutOfStockError struct {
	ProductID int64
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d: out of stock for quantity %d", e.ProductID, e.Requested)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// UnavailableError signals admission control: the lock for a product could
// not be taken in time. Safe to retry after RetryAfter.
type UnavailableError struct {
	ProductID  int64
	RetryAfter time.Duration
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("product %d: temporarily unavailable: %v", e.ProductID, e.Err)
	}
	return fmt.Sprintf("product %d: temporarily unavailable", e.ProductID)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrTemporarilyUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// StorageError is an infrastructure fault at a given pipeline stage.
type StorageError struct {
	Stage     string
	CartID    string
	ProductID int64
	Err       error
}

func (e *StorageError) Error() string {
	if e.ProductID != 0 {
		return fmt.Sprintf("%s failed for cart %s product %d: %v", e.Stage, e.CartID, e.ProductID, e.Err)
	}
	return fmt.Sprintf("%s failed for cart %s: %v", e.Stage, e.CartID, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFault
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ReservedButOrderFailedError means every reservation was made but the order
// could not be persisted. The reservations are left in place for
// reconciliation and must not be retried blindly.
type ReservedButOrderFailedError struct {
	OrderID      string
	CartID       string
	Reservations []StockLine
	Err          error
}

func (e *ReservedButOrderFailedError) Error() string {
	return fmt.Sprintf("order %s for cart %s: %d reservations held but order not persisted: %v",
		e.OrderID, e.CartID, len(e.Reservations), e.Err)
}

func (e *ReservedButOrderFailedError) Is(target error) bool {
	return target == ErrReservedButOrderFailed
}

func (e *ReservedButOrderFailedError) Unwrap() error {
	return e.Err
}
