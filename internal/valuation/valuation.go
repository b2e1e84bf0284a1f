// Package valuation refreshes ManualAsset current values for asset types
// backed by an external pricing source (currently real_estate), the weekly
// job named in §4.9's table. Property valuation providers are outside this
// spec's boundary, so the provider itself is injected behind PriceSource;
// a disabled provider (no API key configured) makes the job a no-op.
package valuation

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/database/repositories"
)

// PriceSource estimates the current value of an address-identified asset.
type PriceSource interface {
	Estimate(ctx context.Context, address string) (float64, error)
}

// Refresher recomputes ManualAsset.CurrentValue for real_estate assets.
type Refresher struct {
	assets *repositories.ManualAssetRepository
	source PriceSource
	log    zerolog.Logger
}

// New creates a new Refresher. source may be nil, in which case RunForUser
// is a no-op (no property-valuation provider configured).
func New(assets *repositories.ManualAssetRepository, source PriceSource, log zerolog.Logger) *Refresher {
	return &Refresher{assets: assets, source: source, log: log.With().Str("component", "valuation").Logger()}
}

// RunForUser refreshes every real_estate asset's current value for userID.
// Every failure is logged and swallowed, consistent with the other
// per-user scheduled jobs (§4.9, §7).
func (r *Refresher) RunForUser(ctx context.Context, userID string) {
	if r.source == nil {
		return
	}

	assets, err := r.assets.ListActiveByUser(ctx, userID)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("failed to list manual assets for valuation refresh")
		return
	}

	for _, a := range assets {
		if a.Type != "real_estate" {
			continue
		}
		value, err := r.source.Estimate(ctx, a.Name)
		if err != nil {
			r.log.Warn().Err(err).Str("asset_id", a.ID).Msg("property valuation lookup failed")
			continue
		}
		if err := r.assets.UpdateCurrentValue(ctx, a.ID, value); err != nil {
			r.log.Error().Err(err).Str("asset_id", a.ID).Msg("failed to persist refreshed property value")
		}
	}
}
