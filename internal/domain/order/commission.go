package order

import (
	"github.com/shopspring/decimal"

	"github.com/fbccsz/yshpics/internal/domain/seller"
)

// CommissionPolicy computes the platform fee for an order.
type CommissionPolicy struct {
	Rate    decimal.Decimal
	Minimum decimal.Decimal
}

// DefaultCommissionPolicy takes 10% with a 0.50 floor.
func DefaultCommissionPolicy() CommissionPolicy {
	return CommissionPolicy{
		Rate:    decimal.RequireFromString("0.10"),
		Minimum: decimal.RequireFromString("0.50"),
	}
}

// Commission returns the fee owed on total by a seller on tier. Only starter
// sellers pay, and a fee below Minimum is dropped since the processor
// rejects trivial splits.
func (p CommissionPolicy) Commission(total decimal.Decimal, tier seller.CommissionTier) decimal.Decimal {
	if tier != seller.TierStarter {
		return decimal.Zero
	}
	c := total.Mul(p.Rate).Round(2)
	if !c.IsPositive() || c.LessThan(p.Minimum) {
		return decimal.Zero
	}
	if c.GreaterThan(total) {
		return total
	}
	return c
}
