package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fbccsz/yshpics/internal/domain/seller"
)

func TestCommissionPolicy(t *testing.T) {
	p := DefaultCommissionPolicy()

	tests := []struct {
		name  string
		total string
		tier  seller.CommissionTier
		want  string
	}{
		{"starter above minimum", "45.00", seller.TierStarter, "4.50"},
		{"starter below minimum", "3.00", seller.TierStarter, "0"},
		{"starter at minimum", "5.00", seller.TierStarter, "0.50"},
		{"starter rounds to cents", "12.35", seller.TierStarter, "1.24"},
		{"pro never pays", "45.00", seller.TierPro, "0"},
		{"zero total", "0", seller.TierStarter, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Commission(decimal.RequireFromString(tt.total), tt.tier)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestCommissionPolicy_ClampedToTotal(t *testing.T) {
	p := CommissionPolicy{
		Rate:    decimal.RequireFromString("1.5"),
		Minimum: decimal.Zero,
	}
	got := p.Commission(decimal.RequireFromString("10.00"), seller.TierStarter)
	assert.True(t, got.Equal(decimal.RequireFromString("10.00")))
}
