package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAsset() Asset {
	return Asset{
		ID:          42,
		LowResPath:  "public/42.jpg",
		HighResPath: "private/42.jpg",
		LowPrice:    decimal.NewNullDecimal(decimal.RequireFromString("5.00")),
	}
}

func TestParseTier(t *testing.T) {
	for in, want := range map[string]Tier{
		"low":    TierLow,
		"LOW":    TierLow,
		"baixa":  TierLow,
		"high":   TierHigh,
		" alta ": TierHigh,
	} {
		got, err := ParseTier(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTier("medium")
	var tierErr *InvalidTierError
	require.ErrorAs(t, err, &tierErr)
	assert.Equal(t, "medium", tierErr.Value)
}

func TestTier_Price(t *testing.T) {
	a := newTestAsset()

	assert.True(t, TierLow.Price(a).Equal(decimal.RequireFromString("5.00")))
	// HighPrice is unset.
	assert.True(t, TierHigh.Price(a).IsZero())
}

func TestTier_PathAndArchiveName(t *testing.T) {
	a := newTestAsset()

	assert.Equal(t, "public/42.jpg", TierLow.Path(a))
	assert.Equal(t, "private/42.jpg", TierHigh.Path(a))
	assert.Equal(t, "web_42.jpg", TierLow.ArchiveName(a))
	assert.Equal(t, "original_42.jpg", TierHigh.ArchiveName(a))
}
