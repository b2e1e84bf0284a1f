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

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/insights"
)

func newInsightsTestRouter(t *testing.T, userID string) (*chi.Mux, *repositories.NetWorthRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	netWorth := repositories.NewNetWorthRepository(db, testLogger())
	generator := insights.New(netWorth, testLogger())
	h := NewInsightsHandler(generator)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return withFixedUser(userID, next) })
	r.Route("/insights", h.RegisterRoutes)
	return r, netWorth
}

func TestInsightsGenerateForExplicitMonthReturnsSummary(t *testing.T) {
	router, netWorth := newInsightsTestRouter(t, "u1")
	require.NoError(t, netWorth.Upsert(context.Background(), &domain.NetWorthSnapshot{
		UserID: "u1", Date: "2026-06-30", TotalAssets: 50000, NetWorth: 50000,
		Breakdown: map[string]float64{"monthlyIncome": 5000, "monthlyExpenses": 3000, "groceries": -600},
	}))

	rec := doJSON(t, router, http.MethodPost, "/insights/generate", generateInsightsRequest{Year: 2026, Month: 6}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data insights.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 40.0, body.Data.SavingsRate)
}

func TestInsightsGenerateRejectsMonthWithNoData(t *testing.T) {
	router, _ := newInsightsTestRouter(t, "u1")
	rec := doJSON(t, router, http.MethodPost, "/insights/generate", generateInsightsRequest{Year: 2020, Month: 1}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsightsSavingsRateEndpointUsesCurrentMonth(t *testing.T) {
	router, _ := newInsightsTestRouter(t, "u1")
	req := httptest.NewRequest(http.MethodGet, "/insights/savings-rate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusOK, w.Code)
}
