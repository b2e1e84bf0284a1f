// Package subscriptions implements the subscription-detection scheduler
// job named in §4.9's table: merchants the categorizer has already tagged
// as "subscriptions" with at least minOccurrences charges in the merchant
// baseline window become candidates for a new_subscription alert.
package subscriptions

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/events"
)

// minOccurrences is the smallest sample size treated as a recurring charge.
const minOccurrences = 2

// Detector scans a user's recent merchant history for recurring
// subscription-category charges.
type Detector struct {
	merchants *repositories.MerchantRepository
	alerts    *alerts.Engine
	log       zerolog.Logger
}

// New creates a new Detector.
func New(merchants *repositories.MerchantRepository, alertEngine *alerts.Engine, log zerolog.Logger) *Detector {
	return &Detector{merchants: merchants, alerts: alertEngine, log: log.With().Str("component", "subscriptions").Logger()}
}

// Candidate is a subscription-category merchant with enough recent charges
// to alert on. Earlier alerts are not tracked, so a merchant is a candidate
// on every run in which it qualifies.
type Candidate struct {
	Merchant string
	Average  float64
	Count    int
}

// Run scans every merchant the categorizer has classified as
// "subscriptions" and fires a new_subscription alert for each one with at
// least minOccurrences charges and a positive average in the baseline
// window (§4.9's weekly subscription-detection job). The spread and spacing
// of the charges are not checked.
func (d *Detector) Run(ctx context.Context, userID string) {
	merchants, err := d.merchants.ListByCategory(ctx, "subscriptions")
	if err != nil {
		d.log.Error().Err(err).Msg("failed to list subscription-category merchants")
		return
	}
	candidates := d.detect(ctx, merchants)
	d.notify(ctx, userID, candidates)
}

func (d *Detector) detect(ctx context.Context, merchants []string) []Candidate {
	var found []Candidate
	for _, m := range merchants {
		avg, count, err := d.merchants.Baseline(ctx, m)
		if err != nil {
			d.log.Warn().Err(err).Str("merchant", m).Msg("failed to load merchant baseline")
			continue
		}
		if count < minOccurrences || avg <= 0 {
			continue
		}
		found = append(found, Candidate{Merchant: m, Average: avg, Count: count})
	}
	return found
}

func (d *Detector) notify(ctx context.Context, userID string, candidates []Candidate) {
	for _, c := range candidates {
		amount := c.Average
		if err := d.alerts.Evaluate(ctx, events.Event{
			Type:        events.NewSubscription,
			UserID:      userID,
			Description: fmt.Sprintf("Recurring charge detected: %s (avg $%.2f, %d occurrences)", c.Merchant, c.Average, c.Count),
			Amount:      &amount,
		}); err != nil {
			d.log.Error().Err(err).Str("merchant", c.Merchant).Msg("failed to evaluate new subscription alert")
		}
	}
}
