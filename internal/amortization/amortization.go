// Package amortization computes fixed-rate loan/note schedules (§4.2). It
// backs both the manual-asset note valuation path and the /api/assets
// amortization endpoints.
package amortization

import (
	"math"
	"time"

	"github.com/aristath/finhub/pkg/stats"
)

// ScheduleEntry is one row of an amortization schedule.
type ScheduleEntry struct {
	Month     int     `json:"month"`
	Payment   float64 `json:"payment"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Balance   float64 `json:"balance"`
	Date      string  `json:"date"`
}

// Result is the output of Compute.
type Result struct {
	MonthlyPayment    float64         `json:"monthly_payment"`
	CurrentBalance    float64         `json:"current_balance"`
	TotalPaid         float64         `json:"total_paid"`
	TotalInterestPaid float64         `json:"total_interest_paid"`
	PayoffDate        string          `json:"payoff_date"`
	MonthsRemaining   int             `json:"months_remaining"`
	Schedule          []ScheduleEntry `json:"schedule,omitempty"`
}

// Input is the set of parameters accepted by Compute. PaymentsMade is a
// pointer because its absence has a defined meaning (derive from dates)
// distinct from an explicit zero.
type Input struct {
	Principal       float64
	AnnualRatePct   float64
	TermMonths      int
	StartDate       time.Time
	PaymentsMade    *int
	IncludeSchedule bool
	// Now lets callers (tests) pin "today" for paymentsMade derivation;
	// zero value means time.Now().
	Now time.Time
}

// Compute runs the amortization engine described in spec §4.2.
func Compute(in Input) Result {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	r := in.AnnualRatePct / 1200
	monthlyPayment := monthlyPaymentFor(in.Principal, r, in.TermMonths)

	paymentsMade := in.PaymentsMade
	if paymentsMade == nil {
		derived := monthsBetween(in.StartDate, now)
		paymentsMade = &derived
	}
	made := clamp(*paymentsMade, 0, in.TermMonths)

	balance := in.Principal
	totalPaid := 0.0
	totalInterest := 0.0
	currentBalance := in.Principal
	var schedule []ScheduleEntry

	limit := made
	if in.IncludeSchedule {
		limit = in.TermMonths
	}

	for month := 1; month <= limit; month++ {
		if balance <= 0 && in.IncludeSchedule {
			break
		}
		interest := balance * r
		principalPortion := math.Min(monthlyPayment-interest, balance)
		if principalPortion < 0 {
			principalPortion = 0
		}
		balance = math.Max(0, balance-principalPortion)

		if month <= made {
			totalPaid += monthlyPayment
			totalInterest += interest
			currentBalance = balance
		}

		if in.IncludeSchedule {
			entryDate := addMonths(in.StartDate, month)
			schedule = append(schedule, ScheduleEntry{
				Month:     month,
				Payment:   stats.Round2(monthlyPayment),
				Principal: stats.Round2(principalPortion),
				Interest:  stats.Round2(interest),
				Balance:   stats.Round2(balance),
				Date:      entryDate.Format("2006-01-02"),
			})
			if balance <= 0 {
				break
			}
		}
	}
	if made == 0 {
		currentBalance = in.Principal
	}

	payoffDate := addMonths(in.StartDate, in.TermMonths)
	monthsRemaining := in.TermMonths - made
	if monthsRemaining < 0 {
		monthsRemaining = 0
	}

	return Result{
		MonthlyPayment:    stats.Round2(monthlyPayment),
		CurrentBalance:    stats.Round2(currentBalance),
		TotalPaid:         stats.Round2(totalPaid),
		TotalInterestPaid: stats.Round2(totalInterest),
		PayoffDate:        payoffDate.Format("2006-01-02"),
		MonthsRemaining:   monthsRemaining,
		Schedule:          schedule,
	}
}

func monthlyPaymentFor(principal, r float64, termMonths int) float64 {
	if termMonths <= 0 {
		return 0
	}
	if r == 0 {
		return principal / float64(termMonths)
	}
	pow := math.Pow(1+r, float64(termMonths))
	return principal * r * pow / (pow - 1)
}

func monthsBetween(start, now time.Time) int {
	if now.Before(start) {
		return 0
	}
	years := now.Year() - start.Year()
	months := int(now.Month()) - int(start.Month())
	total := years*12 + months
	if now.Day() < start.Day() {
		total--
	}
	if total < 0 {
		total = 0
	}
	return total
}

func addMonths(t time.Time, months int) time.Time {
	return t.AddDate(0, months, 0)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
