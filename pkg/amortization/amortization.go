// Package amortization computes fixed-installment (Price table) payments.
package amortization

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrincipal = errors.New("principal must be greater than zero")
	ErrInvalidPeriods   = errors.New("periods must be greater than zero")
	ErrInvalidRate      = errors.New("rate must not be negative")
)

type Result struct {
	MonthlyPayment float64 `json:"monthly_payment"`
	TotalAmount    float64 `json:"total_amount"`
	TotalInterest  float64 `json:"total_interest"`
}

// Amortize returns the fixed installment for principal at ratePercent per period over periods.
// The installment is rounded to cents and the total is that installment times periods, so
// MonthlyPayment*periods equals TotalAmount. A zero rate totals the principal exactly and the
// installments may drift from it by less than half a cent each.
func Amortize(principal, ratePercent float64, periods int) (Result, error) {
	if principal <= 0 || math.IsNaN(principal) || math.IsInf(principal, 0) {
		return Result{}, ErrInvalidPrincipal
	}
	if periods <= 0 {
		return Result{}, ErrInvalidPeriods
	}
	if ratePercent < 0 || math.IsNaN(ratePercent) || math.IsInf(ratePercent, 0) {
		return Result{}, ErrInvalidRate
	}

	n := float64(periods)
	p := decimal.NewFromFloat(principal)

	if ratePercent == 0 {
		return Result{
			MonthlyPayment: Round2(principal / n),
			TotalAmount:    p.Round(2).InexactFloat64(),
		}, nil
	}

	r := ratePercent / 100
	growth := math.Pow(1+r, n)
	monthly := decimal.NewFromFloat(principal * r * growth / (growth - 1)).Round(2)
	total := monthly.Mul(decimal.NewFromInt(int64(periods)))

	return Result{
		MonthlyPayment: monthly.InexactFloat64(),
		TotalAmount:    total.InexactFloat64(),
		TotalInterest:  total.Sub(p).Round(2).InexactFloat64(),
	}, nil
}

// SplitCents divides total minor units into periods installments. Every installment but the
// last is total/periods rounded down; the last one carries the remainder.
func SplitCents(total int64, periods int) (each, last int64) {
	if periods <= 0 {
		return 0, 0
	}
	each = total / int64(periods)
	last = total - each*int64(periods-1)
	return each, last
}

// Round2 rounds half away from zero on the shortest decimal form of v, so 1.005 becomes 1.01.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Cents converts a currency amount to integer minor units.
func Cents(v float64) int64 {
	return decimal.NewFromFloat(v).Round(2).Shift(2).IntPart()
}
