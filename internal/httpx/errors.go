package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/ledger"
	"github.com/StepIgor/otus-final/internal/library"
	"github.com/StepIgor/otus-final/internal/orders"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidInput        = "invalid_input"
	codeUserRequired        = "user_id_required"
	codeIdempotencyRequired = "idempotency_key_required"
	codeInvalidAmount       = "invalid_amount"
	codeOrderNotFound       = "order_not_found"
	codeInvalidTransition   = "invalid_transition"
	codeOrderInFlight       = "order_in_flight"
	codeDuplicateOrder      = "duplicate_order"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps domain sentinels to responses. Anything unknown is a 500.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, "order not found")
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusConflict, codeInvalidTransition, err.Error())
	case errors.Is(err, orders.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, codeDuplicateOrder, "order already exists")
	case errors.Is(err, orders.ErrOrderInFlight):
		writeError(w, http.StatusConflict, codeOrderInFlight, "order request is still being processed, retry")
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, codeInvalidAmount, err.Error())
	case errors.Is(err, orders.ErrInvalidInput), errors.Is(err, ledger.ErrInvalidInput), errors.Is(err, library.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid json")
		return false
	}
	return true
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(headerUserID)
	if id == "" {
		writeError(w, http.StatusBadRequest, codeUserRequired, headerUserID+" header is required")
		return "", false
	}
	return id, true
}
