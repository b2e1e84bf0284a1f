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
	"github.com/aristath/finhub/internal/forecast"
)

func newForecastingTestRouter(t *testing.T, userID string) (*chi.Mux, *repositories.NetWorthRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	netWorth := repositories.NewNetWorthRepository(db, testLogger())
	manualAssets := repositories.NewManualAssetRepository(db, testLogger())
	snapshots := repositories.NewForecastSnapshotRepository(db, testLogger())
	forecaster := forecast.New(netWorth, manualAssets, snapshots, testLogger())
	h := NewForecastingHandler(snapshots, forecaster)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return withFixedUser(userID, next) })
	r.Route("/forecasting", h.RegisterRoutes)
	return r, netWorth
}

func seedNetWorthHistory(t *testing.T, repo *repositories.NetWorthRepository, userID string, months int) {
	t.Helper()
	ctx := context.Background()
	base := 100000.0
	for i := 0; i < months; i++ {
		base += 1000
		require.NoError(t, repo.Upsert(ctx, &domain.NetWorthSnapshot{
			UserID:      userID,
			Date:        "2026-0" + string(rune('1'+i)) + "-01",
			TotalAssets: base,
			NetWorth:    base,
			Breakdown:   map[string]float64{"monthlyExpenses": 3000},
		}))
	}
}

func TestForecastingGenerateReturnsSnapshotWithEnoughHistory(t *testing.T) {
	router, netWorth := newForecastingTestRouter(t, "u1")
	seedNetWorthHistory(t, netWorth, "u1", 6)

	rec := doJSON(t, router, http.MethodPost, "/forecasting/generate", generateForecastRequest{
		HorizonMonths: 24, WithdrawalRate: 0.04, InflationRate: 0.03,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data domain.ForecastSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 24, body.Data.HorizonMonths)
	assert.Contains(t, body.Data.Summary, "fire_number")
}

func TestForecastingGenerateRejectsInsufficientHistory(t *testing.T) {
	router, netWorth := newForecastingTestRouter(t, "u1")
	seedNetWorthHistory(t, netWorth, "u1", 2)

	rec := doJSON(t, router, http.MethodPost, "/forecasting/generate", generateForecastRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastingLatestReturnsMostRecentSnapshot(t *testing.T) {
	router, netWorth := newForecastingTestRouter(t, "u1")
	seedNetWorthHistory(t, netWorth, "u1", 6)

	rec := doJSON(t, router, http.MethodPost, "/forecasting/generate", generateForecastRequest{}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/forecasting/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data domain.ForecastSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.ID)
}
