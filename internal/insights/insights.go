// Package insights computes the monthly spending/savings summaries backing
// the /api/insights surface (§6). The spec names the endpoints but leaves
// the computation itself unspecified beyond "monthly insights"; this
// package derives them from data the rest of the system already maintains
// (net-worth breakdowns, ledger account balances) rather than introducing a
// new persisted entity.
package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
	"github.com/aristath/finhub/pkg/stats"
)

// Summary is one month's derived insight snapshot for a user.
type Summary struct {
	Year                 int
	Month                int
	SpendingByCategory   map[string]float64
	SavingsRate          float64
	EmergencyFundMonths  float64
}

// Generator derives monthly Summary values from net-worth history.
type Generator struct {
	netWorth *repositories.NetWorthRepository
	log      zerolog.Logger
}

// New creates a new Generator.
func New(netWorth *repositories.NetWorthRepository, log zerolog.Logger) *Generator {
	return &Generator{netWorth: netWorth, log: log.With().Str("component", "insights").Logger()}
}

// GenerateForMonth builds the Summary for (year, month) from the closest
// snapshot breakdown on or before the end of that month (§4.9 "0 1 1 * *").
func (g *Generator) GenerateForMonth(ctx context.Context, userID string, year, month int) (*Summary, error) {
	asOf := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Format("2006-01-02")

	snap, err := g.netWorth.PreviousBefore(ctx, userID, nextDay(asOf))
	if err != nil {
		return nil, fmt.Errorf("load snapshot for insights: %w", err)
	}

	income := snap.Breakdown["monthlyIncome"]
	expenses := snap.Breakdown["monthlyExpenses"]

	savingsRate := 0.0
	if income > 0 {
		savingsRate = stats.Round2((income - expenses) / income * 100)
	}

	emergencyMonths := 0.0
	if expenses > 0 {
		emergencyMonths = stats.Round2(liquidAssets(snap) / expenses)
	}

	categories := map[string]float64{}
	for label, value := range snap.Breakdown {
		if label != "monthlyIncome" && label != "monthlyExpenses" && value < 0 {
			categories[label] = -value
		}
	}

	return &Summary{
		Year: year, Month: month,
		SpendingByCategory:  categories,
		SavingsRate:         savingsRate,
		EmergencyFundMonths: emergencyMonths,
	}, nil
}

func liquidAssets(snap *domain.NetWorthSnapshot) float64 {
	return snap.TotalAssets
}

func nextDay(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02")
}
