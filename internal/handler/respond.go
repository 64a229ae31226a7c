package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/urbancart/api/internal/domain/auth"
	"github.com/urbancart/api/internal/domain/inventory"
	"github.com/urbancart/api/internal/domain/order"
	"github.com/urbancart/api/internal/domain/payment"
	"github.com/urbancart/api/internal/domain/product"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondErrorMsg(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Code: status, Message: msg})
}

// respondError maps a domain error to an HTTP status and the uniform error
// body, keeping the specific reason (which product, how many available, which
// code failure) in the message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *inventory.InsufficientStockError
		unavailable  *inventory.UnavailableError
		badQty       *order.InvalidQuantityError
		badTransit   *order.InvalidTransitionError
		rateLimited  *payment.RateLimitedError
	)

	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, payment.ErrNotFound):
		respondErrorMsg(w, http.StatusNotFound, err.Error())

	case errors.Is(err, auth.ErrTokenNotFound):
		respondErrorMsg(w, http.StatusUnauthorized, "invalid token")

	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, payment.ErrInvalidCode),
		errors.Is(err, payment.ErrCodeExpired),
		errors.Is(err, payment.ErrNoCodeIssued),
		errors.As(err, &badQty):
		respondErrorMsg(w, http.StatusBadRequest, err.Error())

	case errors.As(err, &insufficient),
		errors.As(err, &unavailable),
		errors.As(err, &badTransit),
		errors.Is(err, inventory.ErrNegativeStock),
		errors.Is(err, payment.ErrCodeAlreadyUsed),
		errors.Is(err, payment.ErrAlreadyPaid):
		respondErrorMsg(w, http.StatusConflict, err.Error())

	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateLimited.RetryAfter.Seconds()))))
		respondErrorMsg(w, http.StatusTooManyRequests, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondErrorMsg(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody reads a JSON request body into dst, answering 400 itself on
// malformed input. The bool reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		respondErrorMsg(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
