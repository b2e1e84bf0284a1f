package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
)

// AlertsHandler implements /api/alerts (§4.8, §6): alert history, rule CRUD,
// and an on-demand test trigger.
type AlertsHandler struct {
	alerts *repositories.AlertRepository
	engine *alerts.Engine
}

// NewAlertsHandler builds a new AlertsHandler.
func NewAlertsHandler(alertsRepo *repositories.AlertRepository, engine *alerts.Engine) *AlertsHandler {
	return &AlertsHandler{alerts: alertsRepo, engine: engine}
}

// RegisterRoutes wires /api/alerts.
func (h *AlertsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/unread-count", h.handleUnreadCount)
	r.Put("/{id}/read", h.handleMarkRead)
	r.Delete("/{id}", h.handleDelete)
	r.Get("/rules", h.handleListRules)
	r.Post("/rules", h.handleCreateRule)
	r.Post("/test", h.handleTest)
}

func (h *AlertsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"
	severity := r.URL.Query().Get("severity")

	list, err := h.alerts.ListForUser(r.Context(), userID, unreadOnly, severity)
	if err != nil {
		writeError(w, apperr.Internal("failed to list alerts", err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AlertsHandler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	list, err := h.alerts.ListForUser(r.Context(), userID, true, "")
	if err != nil {
		writeError(w, apperr.Internal("failed to count alerts", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(list)})
}

func (h *AlertsHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.alerts.MarkRead(r.Context(), userID, id); err != nil {
		writeError(w, apperr.Internal("failed to mark alert read", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *AlertsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.alerts.Delete(r.Context(), userID, id); err != nil {
		writeError(w, apperr.Internal("failed to delete alert", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AlertsHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	// RulesForEvent matches rule_type exactly (only an empty userID widens
	// the match, to every user), so collect the enabled rules across the rule
	// types the engine understands.
	var all []*domain.AlertRule
	for _, ruleType := range []string{
		string(events.LowBalance), string(events.LargeTransaction), string(events.SyncFailure),
		string(events.NewSubscription), string(events.AssetValueChange),
		string(events.NetWorthMilestone), string(events.Anomaly),
	} {
		rules, err := h.alerts.RulesForEvent(r.Context(), ruleType, userID)
		if err != nil {
			writeError(w, apperr.Internal("failed to list alert rules", err))
			return
		}
		all = append(all, rules...)
	}
	writeJSON(w, http.StatusOK, all)
}

type createRuleRequest struct {
	RuleType   string   `json:"rule_type"`
	Threshold  *float64 `json:"threshold"`
	Filter     string   `json:"filter"`
	Severity   string   `json:"severity"`
	Enabled    bool     `json:"enabled"`
	NotifyPush bool     `json:"notify_push"`
}

func (h *AlertsHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req createRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if req.RuleType == "" {
		writeError(w, apperr.Validation("rule_type is required"))
		return
	}
	rule := &domain.AlertRule{
		UserID:     userID,
		RuleType:   req.RuleType,
		Threshold:  req.Threshold,
		Filter:     req.Filter,
		Severity:   domain.AlertSeverity(req.Severity),
		Enabled:    req.Enabled,
		NotifyPush: req.NotifyPush,
	}
	created, err := h.alerts.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, apperr.Internal("failed to create alert rule", err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type testAlertRequest struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// handleTest synthesizes an events.Event from the request body and pushes
// it through the same evaluation path the scheduled jobs use, letting a
// user verify a rule fires without waiting for the next cron tick.
func (h *AlertsHandler) handleTest(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req testAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if req.Type == "" {
		writeError(w, apperr.Validation("type is required"))
		return
	}

	amount := req.Amount
	ev := events.Event{
		Type:        events.Type(req.Type),
		UserID:      userID,
		Description: req.Description,
		Amount:      &amount,
		Balance:     &amount,
		Timestamp:   time.Now().UTC(),
	}
	if err := h.engine.Evaluate(r.Context(), ev); err != nil {
		writeError(w, apperr.Internal("failed to evaluate test alert", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "evaluated"})
}
