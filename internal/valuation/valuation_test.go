package valuation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
	"github.com/aristath/finhub/internal/domain"
)

type fakeSource struct {
	values map[string]float64
	calls  int
}

func (f *fakeSource) Estimate(ctx context.Context, address string) (float64, error) {
	f.calls++
	return f.values[address], nil
}

func TestRunForUserRefreshesOnlyRealEstateAssets(t *testing.T) {
	db := repotest.NewDB(t)
	assets := repositories.NewManualAssetRepository(db, zerolog.Nop())
	ctx := context.Background()

	house, err := assets.Create(ctx, &domain.ManualAsset{
		UserID: "u1", Type: "real_estate", Name: "123 Main St", CurrentValue: 300000, Active: true,
	})
	require.NoError(t, err)
	car, err := assets.Create(ctx, &domain.ManualAsset{
		UserID: "u1", Type: "vehicle", Name: "Truck", CurrentValue: 20000, Active: true,
	})
	require.NoError(t, err)

	source := &fakeSource{values: map[string]float64{"123 Main St": 325000}}
	refresher := New(assets, source, zerolog.Nop())
	refresher.RunForUser(ctx, "u1")

	assert.Equal(t, 1, source.calls)

	updatedHouse, err := assets.GetByID(ctx, "u1", house.ID)
	require.NoError(t, err)
	assert.Equal(t, 325000.0, updatedHouse.CurrentValue)

	updatedCar, err := assets.GetByID(ctx, "u1", car.ID)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, updatedCar.CurrentValue)
}

func TestRunForUserIsNoOpWithNilSource(t *testing.T) {
	db := repotest.NewDB(t)
	assets := repositories.NewManualAssetRepository(db, zerolog.Nop())
	ctx := context.Background()

	_, err := assets.Create(ctx, &domain.ManualAsset{
		UserID: "u1", Type: "real_estate", Name: "123 Main St", CurrentValue: 300000, Active: true,
	})
	require.NoError(t, err)

	refresher := New(assets, nil, zerolog.Nop())
	assert.NotPanics(t, func() { refresher.RunForUser(ctx, "u1") })
}
