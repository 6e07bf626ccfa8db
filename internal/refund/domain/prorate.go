package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Prorate returns the unused share of amount for a subscription that lasts
// totalDays and was delivered at deliveredAt. Used days count whole days.
func Prorate(totalDays int, deliveredAt, now time.Time, amount decimal.Decimal) Proration {
	p := Proration{TotalDays: totalDays}
	if totalDays <= 0 {
		return p
	}

	used := int(math.Floor(float64(now.Sub(deliveredAt)) / float64(day)))
	if used < 0 {
		used = 0
	}
	if used > totalDays {
		used = totalDays
	}
	p.UsedDays = used
	p.RemainingDays = totalDays - used

	switch {
	case used <= 0:
		p.Type = TypeFull
		p.Amount = amount.Round(2)
		p.Eligible = p.Amount.IsPositive()
	case p.RemainingDays <= 0:
		p.Type = TypePartialProrated
		p.Amount = decimal.Zero
	default:
		p.Type = TypePartialProrated
		p.Amount = decimal.NewFromInt(int64(p.RemainingDays)).
			Mul(amount).
			Div(decimal.NewFromInt(int64(totalDays))).
			Round(2)
		p.Eligible = p.Amount.IsPositive()
	}
	return p
}
