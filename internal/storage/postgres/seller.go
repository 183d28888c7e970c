package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fbccsz/yshpics/internal/domain/buyer"
	"github.com/fbccsz/yshpics/internal/domain/seller"
)

const (
	getSellerSQL = `SELECT id, name, email, tier, processor_credential, created_at FROM sellers WHERE id = $1`

	upsertSellerSQL = `INSERT INTO sellers (name, email, tier, processor_credential)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, tier, processor_credential, created_at`

	setCredentialSQL = `UPDATE sellers SET processor_credential = $2 WHERE id = $1`

	setTierSQL = `UPDATE sellers SET tier = $2 WHERE id = $1`

	resolveBuyerSQL = `INSERT INTO buyers (name, email) VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE buyers.name END
		RETURNING id, name, email, created_at`
)

var (
	_ seller.Repository = (*SellerRepository)(nil)
	_ buyer.Repository  = (*BuyerRepository)(nil)
)

// SellerRepository implements seller.Repository backed by PostgreSQL.
type SellerRepository struct {
	pool *pgxpool.Pool
}

// NewSellerRepository returns a SellerRepository that uses the given pool.
func NewSellerRepository(pool *pgxpool.Pool) *SellerRepository {
	return &SellerRepository{pool: pool}
}

// Get returns a seller by id.
func (r *SellerRepository) Get(ctx context.Context, id int64) (*seller.Seller, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getSellerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting seller %d: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSeller)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, seller.ErrNotFound
		}
		return nil, fmt.Errorf("getting seller %d: %w", id, err)
	}
	return &s, nil
}

// Upsert creates a seller, or returns the existing one with the same email.
// The tier and credential of an existing seller are kept.
func (r *SellerRepository) Upsert(ctx context.Context, s *seller.Seller) error {
	var tier string
	err := conn(ctx, r.pool).QueryRow(ctx, upsertSellerSQL, s.Name, s.Email, string(s.Tier), s.Credential).
		Scan(&s.ID, &tier, &s.Credential, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting seller %q: %w", s.Email, err)
	}
	s.Tier = seller.CommissionTier(tier)
	return nil
}

// SetCredential stores the seller's processor access token.
func (r *SellerRepository) SetCredential(ctx context.Context, id int64, credential string) error {
	return r.update(ctx, setCredentialSQL, id, credential)
}

// SetTier changes the seller's commission tier.
func (r *SellerRepository) SetTier(ctx context.Context, id int64, tier seller.CommissionTier) error {
	return r.update(ctx, setTierSQL, id, string(tier))
}

func (r *SellerRepository) update(ctx context.Context, query string, id int64, value string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("updating seller %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return seller.ErrNotFound
	}
	return nil
}

func scanSeller(row pgx.CollectableRow) (seller.Seller, error) {
	var (
		s    seller.Seller
		tier string
	)
	err := row.Scan(&s.ID, &s.Name, &s.Email, &tier, &s.Credential, &s.CreatedAt)
	s.Tier = seller.CommissionTier(tier)
	return s, err
}

// BuyerRepository implements buyer.Repository backed by PostgreSQL.
type BuyerRepository struct {
	pool *pgxpool.Pool
}

// NewBuyerRepository returns a BuyerRepository that uses the given pool.
func NewBuyerRepository(pool *pgxpool.Pool) *BuyerRepository {
	return &BuyerRepository{pool: pool}
}

// Resolve returns the buyer with email, creating it on first purchase.
func (r *BuyerRepository) Resolve(ctx context.Context, name, email string) (*buyer.Buyer, error) {
	var b buyer.Buyer
	err := conn(ctx, r.pool).QueryRow(ctx, resolveBuyerSQL, name, email).
		Scan(&b.ID, &b.Name, &b.Email, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("resolving buyer %q: %w", email, err)
	}
	return &b, nil
}
