package http

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
)

// handleError converts a pipeline error into an HTTP response.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		httpStatus int
		code       string
		message    = err.Error()
		details    string
	)

	switch {
	case errors.Is(err, domain.ErrBadRequest):
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, domain.ErrOutOfStock):
		httpStatus = http.StatusConflict
		code = "out_of_stock"
	case errors.Is(err, domain.ErrTemporarilyUnavailable) && errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	case errors.Is(err, domain.ErrTemporarilyUnavailable):
		httpStatus = http.StatusServiceUnavailable
		code = "temporarily_unavailable"
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
	case errors.Is(err, domain.ErrReservedButOrderFailed):
		httpStatus = http.StatusInternalServerError
		code = "order_commit_failed"
		message = "order was not recorded, reserved stock is held for reconciliation"
		var failed *domain.ReservedButOrderFailedError
		if errors.As(err, &failed) {
			details = "order_id=" + failed.OrderID
		}
	default:
		httpStatus = http.StatusInternalServerError
		code = "internal_error"
	}

	if httpStatus >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", err)
		if code == "internal_error" {
			message = "internal server error"
		}
	}

	respondJSON(w, httpStatus, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func retryAfterSeconds(err error) int {
	var unavailable *domain.UnavailableError
	if !errors.As(err, &unavailable) || unavailable.RetryAfter <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(unavailable.RetryAfter.Seconds())))
}
