// Package catalog holds the sellable photo assets and the albums they belong to.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an album or asset does not exist.
var ErrNotFound = fmt.Errorf("not found")

// Tier selects which rendition of an asset a buyer purchases.
type Tier string

const (
	// TierLow is the web-resolution rendition.
	TierLow Tier = "low"
	// TierHigh is the original, full-resolution rendition.
	TierHigh Tier = "high"
)

// InvalidTierError indicates an unrecognized tier value.
type InvalidTierError struct {
	Value string
}

func (e *InvalidTierError) Error() string {
	return fmt.Sprintf("invalid tier %q", e.Value)
}

// ParseTier parses a tier name. The legacy names "baixa" and "alta" are
// accepted as aliases.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "baixa":
		return TierLow, nil
	case "high", "alta":
		return TierHigh, nil
	default:
		return "", &InvalidTierError{Value: s}
	}
}

// Price returns the price of the tier's rendition of a.
// An unset price is zero.
func (t Tier) Price(a Asset) decimal.Decimal {
	var p decimal.NullDecimal
	switch t {
	case TierHigh:
		p = a.HighPrice
	default:
		p = a.LowPrice
	}
	if !p.Valid {
		return decimal.Zero
	}
	return p.Decimal
}

// Path returns the stored path of the tier's rendition of a.
func (t Tier) Path(a Asset) string {
	if t == TierHigh {
		return a.HighResPath
	}
	return a.LowResPath
}

// ArchiveName returns the entry name used for a in a download bundle.
func (t Tier) ArchiveName(a Asset) string {
	if t == TierHigh {
		return fmt.Sprintf("original_%d.jpg", a.ID)
	}
	return fmt.Sprintf("web_%d.jpg", a.ID)
}

// Album groups the assets a seller publishes for one event.
type Album struct {
	ID        int64
	SellerID  int64
	Title     string
	Hash      string
	EventDate *time.Time
	CreatedAt time.Time
	Assets    []Asset
}

// Asset is a sellable photo with a low- and high-resolution rendition.
type Asset struct {
	ID          int64
	AlbumID     int64
	SellerID    int64
	LowResPath  string
	HighResPath string
	LowPrice    decimal.NullDecimal
	HighPrice   decimal.NullDecimal
}

// Repository defines read access to the catalog.
type Repository interface {
	// GetAssets returns the assets matching ids, with SellerID resolved
	// through the owning album. Unknown ids are omitted.
	GetAssets(ctx context.Context, ids []int64) ([]Asset, error)
	GetAlbumByHash(ctx context.Context, hash string) (*Album, error)
}
