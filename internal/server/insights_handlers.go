package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/insights"
)

// InsightsHandler implements /api/insights (§6).
type InsightsHandler struct {
	generator *insights.Generator
}

// NewInsightsHandler builds a new InsightsHandler.
func NewInsightsHandler(generator *insights.Generator) *InsightsHandler {
	return &InsightsHandler{generator: generator}
}

// RegisterRoutes wires /api/insights.
func (h *InsightsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleLatest)
	r.Get("/latest", h.handleLatest)
	r.Get("/spending", h.handleSpending)
	r.Get("/categories", h.handleSpending)
	r.Get("/savings-rate", h.handleSavingsRate)
	r.Get("/emergency-fund", h.handleEmergencyFund)
	r.Post("/generate", h.handleGenerate)
}

// currentMonth returns the previous calendar month, matching the scheduled
// generation job's scope (§4.9 "0 1 1 * *").
func currentMonth() (int, int) {
	prev := time.Now().UTC().AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}

func (h *InsightsHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	year, month := currentMonth()
	summary, err := h.generator.GenerateForMonth(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, apperr.NotFound("no insights available yet"))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *InsightsHandler) handleSpending(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	year, month := currentMonth()
	summary, err := h.generator.GenerateForMonth(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, apperr.NotFound("no insights available yet"))
		return
	}
	writeJSON(w, http.StatusOK, summary.SpendingByCategory)
}

func (h *InsightsHandler) handleSavingsRate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	year, month := currentMonth()
	summary, err := h.generator.GenerateForMonth(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, apperr.NotFound("no insights available yet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"savingsRate": summary.SavingsRate})
}

func (h *InsightsHandler) handleEmergencyFund(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	year, month := currentMonth()
	summary, err := h.generator.GenerateForMonth(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, apperr.NotFound("no insights available yet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"emergencyFundMonths": summary.EmergencyFundMonths})
}

type generateInsightsRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (h *InsightsHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req generateInsightsRequest
	_ = decodeJSON(r, &req)
	year, month := req.Year, req.Month
	if year == 0 || month == 0 {
		year, month = currentMonth()
	}
	summary, err := h.generator.GenerateForMonth(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, apperr.Validation("insufficient net worth history for that month"))
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}
