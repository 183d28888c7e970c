// Package seller models the photographers who sell through the platform.
package seller

import (
	"context"
	"fmt"
	"time"
)

// ErrNotFound is returned when a seller does not exist.
var ErrNotFound = fmt.Errorf("seller not found")

// CommissionTier is the seller's plan. It decides whether the platform
// takes a commission on the seller's sales.
type CommissionTier string

const (
	TierStarter CommissionTier = "starter"
	TierPro     CommissionTier = "pro"
)

// ParseCommissionTier validates a plan name.
func ParseCommissionTier(s string) (CommissionTier, error) {
	switch t := CommissionTier(s); t {
	case TierStarter, TierPro:
		return t, nil
	default:
		return "", fmt.Errorf("invalid commission tier %q", s)
	}
}

// Seller is a photographer account.
type Seller struct {
	ID    int64
	Name  string
	Email string
	Tier  CommissionTier
	// Credential is the seller's access token at the payment processor.
	// Empty means the seller cannot receive payments yet.
	Credential string
	CreatedAt  time.Time
}

// CanReceive reports whether the seller has a processor credential.
func (s *Seller) CanReceive() bool {
	return s.Credential != ""
}

// Repository defines persistence operations for sellers.
type Repository interface {
	Get(ctx context.Context, id int64) (*Seller, error)
	SetCredential(ctx context.Context, id int64, credential string) error
	SetTier(ctx context.Context, id int64, tier CommissionTier) error
}
