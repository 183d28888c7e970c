// Package buyer models the people purchasing photos. Buyers are identified
// by email and have no credentials.
package buyer

import (
	"context"
	"time"
)

// Buyer is a purchasing customer.
type Buyer struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}

// Repository defines persistence operations for buyers.
type Repository interface {
	// Resolve returns the buyer with the given email, creating it when absent.
	// An existing buyer keeps its id; its name is refreshed.
	Resolve(ctx context.Context, name, email string) (*Buyer, error)
}
