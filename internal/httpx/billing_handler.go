package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/ledger"
)

type LedgerService interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Entries(ctx context.Context, userID string) ([]ledger.Entry, error)
	Deposit(ctx context.Context, userID string, amount int64, key string) (ledger.Entry, bool, error)
}

type BillingHandler struct {
	Service LedgerService
	Log     *zap.Logger
}

type balanceResp struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

type depositReq struct {
	Amount int64 `json:"amount"`
}

func (h *BillingHandler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/balance", h.balance)
		r.Get("/transactions", h.transactions)
		r.Post("/deposits", h.deposit)
	})
}

func (h *BillingHandler) balance(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bal, err := h.Service.Balance(ctx, user)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResp{UserID: user, Balance: bal})
}

func (h *BillingHandler) transactions(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	entries, err := h.Service.Entries(ctx, user)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *BillingHandler) deposit(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		writeError(w, http.StatusBadRequest, codeIdempotencyRequired, "Idempotency-Key header is required")
		return
	}
	var req depositReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	e, created, err := h.Service.Deposit(ctx, user, req.Amount, key)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, e)
}
