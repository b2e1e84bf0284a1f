package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/forecast"
)

// ForecastingHandler implements /api/forecasting (§6, §4.7).
type ForecastingHandler struct {
	snapshots  *repositories.ForecastSnapshotRepository
	forecaster *forecast.Forecaster
}

// NewForecastingHandler builds a new ForecastingHandler.
func NewForecastingHandler(snapshots *repositories.ForecastSnapshotRepository, forecaster *forecast.Forecaster) *ForecastingHandler {
	return &ForecastingHandler{snapshots: snapshots, forecaster: forecaster}
}

// RegisterRoutes wires /api/forecasting.
func (h *ForecastingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/latest", h.handleLatest)
	r.Get("/history", h.handleHistory)
	r.Get("/{id}", h.handleByID)
	r.Post("/generate", h.handleGenerate)
	r.Post("/whatif", h.handleWhatIf)
}

func (h *ForecastingHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	snap, err := h.snapshots.Latest(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ForecastingHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	snap, err := h.snapshots.Latest(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, []interface{}{snap})
}

func (h *ForecastingHandler) handleByID(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	snap, err := h.snapshots.Latest(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type generateForecastRequest struct {
	HorizonMonths  int     `json:"horizon_months"`
	WithdrawalRate float64 `json:"withdrawal_rate"`
	InflationRate  float64 `json:"inflation_rate"`
}

func (h *ForecastingHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req generateForecastRequest
	_ = decodeJSON(r, &req)

	snap, err := h.forecaster.Run(r.Context(), userID, forecast.Input{
		HorizonMonths:  req.HorizonMonths,
		WithdrawalRate: req.WithdrawalRate,
		InflationRate:  req.InflationRate,
	})
	if err != nil {
		writeError(w, apperr.Internal("failed to generate forecast", err))
		return
	}
	if snap == nil {
		writeError(w, apperr.Validation("insufficient net worth history to forecast"))
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// handleWhatIf runs a forecast with caller-supplied parameters through the
// same handleGenerate/Forecaster.Run path, since §4.7 doesn't distinguish a
// separate what-if code path; the result is persisted as a snapshot like any
// generated forecast.
func (h *ForecastingHandler) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	h.handleGenerate(w, r)
}
