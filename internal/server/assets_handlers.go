package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finhub/internal/amortization"
	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
)

// AssetsHandler implements the /api/assets and /api/insurance routes
// (§6). Insurance policies are stored as ManualAsset rows with
// type == "insurance" rather than a dedicated entity, matching the rest of
// the system's ManualAsset-backed CRUD surface.
type AssetsHandler struct {
	assets  *repositories.ManualAssetRepository
	history *repositories.AssetHistoryRepository
}

// NewAssetsHandler builds a new AssetsHandler.
func NewAssetsHandler(assets *repositories.ManualAssetRepository, history *repositories.AssetHistoryRepository) *AssetsHandler {
	return &AssetsHandler{assets: assets, history: history}
}

// RegisterRoutes wires /api/assets.
func (h *AssetsHandler) RegisterRoutes(r chi.Router) {
	h.registerFor(r, false)
}

// RegisterInsuranceRoutes wires /api/insurance onto the same handler,
// scoped to type == "insurance" rows.
func (h *AssetsHandler) RegisterInsuranceRoutes(r chi.Router) {
	h.registerFor(r, true)
}

func (h *AssetsHandler) registerFor(r chi.Router, insuranceOnly bool) {
	list := h.handleList(insuranceOnly)
	create := h.handleCreate(insuranceOnly)
	r.Get("/", list)
	r.Post("/", create)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/note-payment", h.handleNotePayment)
	r.Get("/{id}/history", h.handleHistory)
	r.Get("/{id}/amortization", h.handleAmortization)
	r.Get("/{id}/payments", h.handlePayments)
}

func (h *AssetsHandler) handleList(insuranceOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		all, err := h.assets.ListActiveByUser(r.Context(), userID)
		if err != nil {
			writeError(w, apperr.Internal("failed to list assets", err))
			return
		}

		out := make([]*domain.ManualAsset, 0, len(all))
		for _, a := range all {
			if (a.Type == "insurance") == insuranceOnly {
				out = append(out, a)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type createAssetRequest struct {
	Type            string   `json:"type"`
	Name            string   `json:"name"`
	CurrentValue    float64  `json:"current_value"`
	ValuationSource string   `json:"valuation_source"`
	Principal       *float64 `json:"principal,omitempty"`
	AnnualRate      *float64 `json:"annual_rate,omitempty"`
	StartDate       *string  `json:"start_date,omitempty"`
	TermMonths      *int     `json:"term_months,omitempty"`
}

func (h *AssetsHandler) handleCreate(insuranceOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		var req createAssetRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, apperr.Validation("invalid request body"))
			return
		}
		if req.Name == "" {
			writeError(w, apperr.Validation("name is required"))
			return
		}
		assetType := req.Type
		if insuranceOnly {
			assetType = "insurance"
		}
		if assetType == "" {
			writeError(w, apperr.Validation("type is required"))
			return
		}

		asset := &domain.ManualAsset{
			UserID:          userID,
			Type:            assetType,
			Name:            req.Name,
			CurrentValue:    req.CurrentValue,
			ValuationSource: req.ValuationSource,
			Principal:       req.Principal,
			AnnualRate:      req.AnnualRate,
			StartDate:       req.StartDate,
			TermMonths:      req.TermMonths,
		}
		created, err := h.assets.Create(r.Context(), asset)
		if err != nil {
			writeError(w, apperr.Internal("failed to create asset", err))
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func (h *AssetsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	var raw map[string]interface{}
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	allowed := repositories.ManualAssetColumns()
	fields := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if !allowed[k] {
			writeError(w, apperr.Validation("No valid fields"))
			return
		}
		fields[k] = v
	}
	if len(fields) == 0 {
		writeError(w, apperr.Validation("No valid fields"))
		return
	}

	updated, err := h.assets.UpdateFields(r.Context(), userID, id, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AssetsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.assets.Delete(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type notePaymentRequest struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// handleNotePayment records a manual amortization payment against a note
// asset and recomputes its schedule-derived balance (§4.2, §6).
func (h *AssetsHandler) handleNotePayment(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	asset, err := h.assets.GetByID(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !asset.IsNote() || !asset.HasCompleteNoteSchedule() {
		writeError(w, apperr.Validation("asset is not a note with a complete amortization schedule"))
		return
	}

	var req notePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	result := amortization.Compute(amortization.Input{
		Principal:     *asset.Principal,
		AnnualRatePct: *asset.AnnualRate,
		TermMonths:    *asset.TermMonths,
		StartDate:     parseDate(*asset.StartDate),
	})

	paymentDate := req.Date
	if paymentDate == "" {
		paymentDate = time.Now().UTC().Format("2006-01-02")
	}
	balanceAfter := result.CurrentBalance - req.Amount
	if err := h.history.RecordNotePayment(r.Context(), &domain.NotePayment{
		AssetID:      id,
		Date:         paymentDate,
		Amount:       req.Amount,
		BalanceAfter: balanceAfter,
	}); err != nil {
		writeError(w, apperr.Internal("failed to record note payment", err))
		return
	}
	if err := h.assets.UpdateCurrentValue(r.Context(), id, balanceAfter); err != nil {
		writeError(w, apperr.Internal("failed to update asset value", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balanceAfter})
}

func (h *AssetsHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := h.history.ValueHistory(r.Context(), id)
	if err != nil {
		writeError(w, apperr.Internal("failed to load value history", err))
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *AssetsHandler) handleAmortization(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")
	asset, err := h.assets.GetByID(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !asset.HasCompleteNoteSchedule() {
		writeError(w, apperr.Validation("asset has no amortization schedule"))
		return
	}
	result := amortization.Compute(amortization.Input{
		Principal:       *asset.Principal,
		AnnualRatePct:   *asset.AnnualRate,
		TermMonths:      *asset.TermMonths,
		StartDate:       parseDate(*asset.StartDate),
		IncludeSchedule: true,
	})
	writeJSON(w, http.StatusOK, result)
}

func (h *AssetsHandler) handlePayments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	payments, err := h.history.NotePayments(r.Context(), id)
	if err != nil {
		writeError(w, apperr.Internal("failed to load note payments", err))
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
