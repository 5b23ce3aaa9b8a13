package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ExpirySweeper expires stale pending payment transactions.
// Satisfied by *service.Sweeper.
type ExpirySweeper interface {
	SweepOnce(ctx context.Context) ([]string, error)
}

// AdminHandler exposes operational endpoints. All routes require the
// ADMIN role; the background sweeper covers the normal path, this is
// for running a sweep on demand.
type AdminHandler struct {
	sweeper ExpirySweeper
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(sweeper ExpirySweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// RegisterRoutes registers admin routes on the given router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/expire", h.ExpirePayments)
}

// ExpirePayments handles POST /admin/payments/expire
func (h *AdminHandler) ExpirePayments(w http.ResponseWriter, r *http.Request) {
	ids, err := h.sweeper.SweepOnce(r.Context())
	if err != nil {
		log.Printf("ERROR: manual expiry sweep: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "expiry sweep failed"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expired":         len(ids),
		"transaction_ids": ids,
	})
}
