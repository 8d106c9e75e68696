package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/StepIgor/otus-final/internal/library"
)

type LibraryService interface {
	List(ctx context.Context, userID string) ([]library.Entitlement, error)
}

type LibraryHandler struct {
	Service LibraryService
	Log     *zap.Logger
}

func (h *LibraryHandler) Register(r chi.Router) {
	r.Get("/v1/library/{userId}", h.list)
}

func (h *LibraryHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	owned, err := h.Service.List(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	if owned == nil {
		owned = []library.Entitlement{}
	}
	writeJSON(w, http.StatusOK, owned)
}
