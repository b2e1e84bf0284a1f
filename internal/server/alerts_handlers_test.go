package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
)

func newAlertsTestRouter(t *testing.T, userID string) (*chi.Mux, *repositories.AlertRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	alertRepo := repositories.NewAlertRepository(db, testLogger())
	engine := alerts.NewEngine(alertRepo, alerts.NewPushClient("", "", testLogger()), events.NewManager(testLogger()), testLogger())
	h := NewAlertsHandler(alertRepo, engine)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return withFixedUser(userID, next) })
	r.Route("/alerts", h.RegisterRoutes)
	return r, alertRepo
}

func TestAlertsCreateRuleRejectsEmptyRuleType(t *testing.T) {
	router, _ := newAlertsTestRouter(t, "u1")
	rec := doJSON(t, router, http.MethodPost, "/alerts/rules", createRuleRequest{Enabled: true}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertsCreateRuleThenListRules(t *testing.T) {
	router, _ := newAlertsTestRouter(t, "u1")
	rec := doJSON(t, router, http.MethodPost, "/alerts/rules", createRuleRequest{
		RuleType: "low_balance", Enabled: true, Severity: "high",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/alerts/rules", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []*domain.AlertRule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "low_balance", body.Data[0].RuleType)
}

func TestAlertsTestEndpointEvaluatesAndPersistsHistory(t *testing.T) {
	router, alertRepo := newAlertsTestRouter(t, "u1")

	rec := doJSON(t, router, http.MethodPost, "/alerts/rules", createRuleRequest{
		RuleType: "sync_failure", Enabled: true,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/alerts/test", testAlertRequest{
		Type: "sync_failure", Description: "manual test",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	history, err := alertRepo.ListForUser(context.Background(), "u1", false, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestAlertsUnreadCountReflectsUnreadAlerts(t *testing.T) {
	router, alertRepo := newAlertsTestRouter(t, "u1")
	rec := doJSON(t, router, http.MethodPost, "/alerts/rules", createRuleRequest{RuleType: "sync_failure", Enabled: true}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	doJSON(t, router, http.MethodPost, "/alerts/test", testAlertRequest{Type: "sync_failure", Description: "t1"}, "")
	doJSON(t, router, http.MethodPost, "/alerts/test", testAlertRequest{Type: "sync_failure", Description: "t2"}, "")

	req := httptest.NewRequest(http.MethodGet, "/alerts/unread-count", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data.Count)

	history, err := alertRepo.ListForUser(context.Background(), "u1", false, "")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
