// Package anomaly implements per-transaction anomaly detection (§4.5.2):
// new-merchant and established-merchant-large-amount rules against a
// trailing 90-day baseline.
package anomaly

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/database/repositories"
)

// largeAmountMultiple is the "unusually large" threshold over a merchant's
// trailing average (§4.5.2).
const largeAmountMultiple = 2.5

// newMerchantFloor is the minimum amount for a brand-new merchant to be
// flagged at all (§4.5.2).
const newMerchantFloor = 100

// Txn is one transaction checked for anomalies.
type Txn struct {
	Merchant string
	Amount   float64
	Date     string
}

// Finding describes one fired anomaly.
type Finding struct {
	Merchant string
	Amount   float64
	Message  string
}

// Detector checks a batch of transactions against merchant history.
type Detector struct {
	merchants *repositories.MerchantRepository
	log       zerolog.Logger
}

// New creates a new Detector.
func New(merchants *repositories.MerchantRepository, log zerolog.Logger) *Detector {
	return &Detector{merchants: merchants, log: log.With().Str("component", "anomaly_detector").Logger()}
}

// Check evaluates every txn in the batch and returns the findings that
// fired. Credits/income (amount <= 0) are skipped entirely. Every txn,
// regardless of outcome, is recorded into merchant history; all DB errors
// are swallowed (§4.5.2).
func (d *Detector) Check(ctx context.Context, txns []Txn) []Finding {
	var findings []Finding

	for _, txn := range txns {
		if txn.Amount <= 0 {
			continue
		}

		avg, count, err := d.merchants.Baseline(ctx, txn.Merchant)
		if err != nil {
			d.log.Warn().Err(err).Str("merchant", txn.Merchant).Msg("baseline lookup failed")
		} else {
			switch {
			case count == 0 && txn.Amount > newMerchantFloor:
				findings = append(findings, Finding{
					Merchant: txn.Merchant,
					Amount:   txn.Amount,
					Message:  fmt.Sprintf("New merchant: %s — $%.2f", txn.Merchant, txn.Amount),
				})
			case count > 0 && avg > 0 && txn.Amount > largeAmountMultiple*avg:
				findings = append(findings, Finding{
					Merchant: txn.Merchant,
					Amount:   txn.Amount,
					Message:  fmt.Sprintf("Unusually large: %s $%.2f (avg $%.2f)", txn.Merchant, txn.Amount, avg),
				})
			}
		}

		if err := d.merchants.RecordHistory(ctx, txn.Merchant, txn.Amount, txn.Date); err != nil {
			d.log.Warn().Err(err).Str("merchant", txn.Merchant).Msg("failed to record merchant history")
		}
	}

	return findings
}
