// Package networth computes and persists per-user net-worth snapshots
// (§4.6): a ledger account pull, manual-asset amortization recompute, and a
// net-worth milestone check.
package networth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/amortization"
	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/internal/events"
	"github.com/aristath/finhub/internal/ledger"
	"github.com/aristath/finhub/pkg/stats"
)

// milestoneStep is the net-worth milestone granularity from §4.6 step 5.
const milestoneStep = 50000.0

// Snapshotter computes and persists one NetWorthSnapshot per run.
type Snapshotter struct {
	ledger       *ledger.Client
	manualAssets *repositories.ManualAssetRepository
	assetHistory *repositories.AssetHistoryRepository
	netWorth     *repositories.NetWorthRepository
	alerts       *alerts.Engine
	log          zerolog.Logger
}

// New creates a new Snapshotter.
func New(
	ledgerClient *ledger.Client,
	manualAssets *repositories.ManualAssetRepository,
	assetHistory *repositories.AssetHistoryRepository,
	netWorth *repositories.NetWorthRepository,
	alertEngine *alerts.Engine,
	log zerolog.Logger,
) *Snapshotter {
	return &Snapshotter{
		ledger:       ledgerClient,
		manualAssets: manualAssets,
		assetHistory: assetHistory,
		netWorth:     netWorth,
		alerts:       alertEngine,
		log:          log.With().Str("component", "networth_snapshotter").Logger(),
	}
}

// RunForUser computes and persists today's snapshot for userID. Every
// failure is logged and swallowed; this never returns an error so it can be
// invoked directly from a per-user scheduler loop (§4.9).
func (s *Snapshotter) RunForUser(ctx context.Context, userID string) {
	today := time.Now().UTC().Format("2006-01-02")
	log := s.log.With().Str("user_id", userID).Logger()

	breakdown := map[string]float64{}
	var totalAssets, totalLiabilities float64

	accounts, err := s.ledger.ListAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list ledger accounts")
	}
	for _, acct := range accounts {
		breakdown[acct.Name] = acct.Balance
		if acct.Type == "liabilities" || acct.Type == "expense" {
			totalLiabilities += math.Abs(acct.Balance)
		} else {
			totalAssets += acct.Balance
		}
	}

	manualAssets, err := s.manualAssets.ListActiveByUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list manual assets")
	}
	for _, asset := range manualAssets {
		value := asset.CurrentValue
		if asset.IsNote() && asset.HasCompleteNoteSchedule() {
			value = s.recomputeNoteValue(ctx, asset, log)
		}
		breakdown[asset.Name] = value
		if asset.Type == "note_payable" {
			totalLiabilities += math.Abs(value)
		} else {
			totalAssets += value
		}
	}

	netWorthValue := totalAssets - totalLiabilities

	prev, err := s.netWorth.PreviousBefore(ctx, userID, today)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		log.Error().Err(err).Msg("failed to load previous snapshot")
	}

	snap := &domain.NetWorthSnapshot{
		UserID:           userID,
		Date:             today,
		TotalAssets:      stats.Round2(totalAssets),
		TotalLiabilities: stats.Round2(totalLiabilities),
		NetWorth:         stats.Round2(netWorthValue),
		Breakdown:        breakdown,
	}
	if err := s.netWorth.Upsert(ctx, snap); err != nil {
		log.Error().Err(err).Msg("failed to persist net worth snapshot")
		return
	}

	if prev != nil {
		s.checkMilestone(ctx, userID, prev.NetWorth, snap.NetWorth, log)
	}
}

func (s *Snapshotter) recomputeNoteValue(ctx context.Context, asset *domain.ManualAsset, log zerolog.Logger) float64 {
	startDate, err := time.Parse("2006-01-02", *asset.StartDate)
	if err != nil {
		log.Warn().Err(err).Str("asset_id", asset.ID).Msg("invalid note start date, using stored value")
		return asset.CurrentValue
	}

	result := amortization.Compute(amortization.Input{
		Principal:     *asset.Principal,
		AnnualRatePct: *asset.AnnualRate,
		TermMonths:    *asset.TermMonths,
		StartDate:     startDate,
		Now:           time.Now().UTC(),
	})

	if err := s.manualAssets.UpdateCurrentValue(ctx, asset.ID, result.CurrentBalance); err != nil {
		log.Error().Err(err).Str("asset_id", asset.ID).Msg("failed to persist recomputed note balance")
	}
	if err := s.assetHistory.RecordValue(ctx, asset.ID, time.Now().UTC().Format("2006-01-02"), result.CurrentBalance, "amortization"); err != nil {
		log.Error().Err(err).Str("asset_id", asset.ID).Msg("failed to record note value history")
	}
	return result.CurrentBalance
}

func (s *Snapshotter) checkMilestone(ctx context.Context, userID string, prevNetWorth, netWorthValue float64, log zerolog.Logger) {
	milestone := math.Floor(netWorthValue/milestoneStep) * milestoneStep
	if !(prevNetWorth < milestone && milestone <= netWorthValue) {
		return
	}

	if err := s.alerts.Evaluate(ctx, events.Event{
		Type:        events.NetWorthMilestone,
		UserID:      userID,
		Description: fmt.Sprintf("Your net worth crossed $%.0f!", milestone),
		Metadata: map[string]interface{}{
			"milestone": milestone,
			"net_worth": netWorthValue,
		},
	}); err != nil {
		log.Error().Err(err).Msg("failed to evaluate net worth milestone alert")
	}
}
