package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/networth"
)

// NetWorthHandler implements /api/networth (§6, §4.6).
type NetWorthHandler struct {
	netWorth   *repositories.NetWorthRepository
	snapshotter *networth.Snapshotter
}

// NewNetWorthHandler builds a new NetWorthHandler.
func NewNetWorthHandler(netWorth *repositories.NetWorthRepository, snapshotter *networth.Snapshotter) *NetWorthHandler {
	return &NetWorthHandler{netWorth: netWorth, snapshotter: snapshotter}
}

// RegisterRoutes wires /api/networth.
func (h *NetWorthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/current", h.handleCurrent)
	r.Get("/history", h.handleHistory)
	r.Get("/breakdown", h.handleBreakdown)
	r.Post("/snapshot", h.handleSnapshot)
}

func (h *NetWorthHandler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	snap, err := h.netWorth.Latest(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *NetWorthHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	limit := 90
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	history, err := h.netWorth.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, apperr.Internal("failed to load net worth history", err))
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *NetWorthHandler) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	snap, err := h.netWorth.Latest(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Breakdown)
}

func (h *NetWorthHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.snapshotter.RunForUser(r.Context(), userID)
	snap, err := h.netWorth.Latest(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}
