package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/order"
	"github.com/fbccsz/yshpics/internal/txindex"
)

const (
	createOrderSQL = `INSERT INTO orders (id, buyer_id, seller_id, total, commission, status, download_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, asset_id, tier, price_charged)
		VALUES ($1, $2, $3, $4) RETURNING id`

	selectOrderSQL = `SELECT o.id, o.buyer_id, b.name, b.email, o.seller_id, o.total, o.commission, o.status,
		o.charge_transaction_id, o.charge_copy_paste, o.charge_qr_image, o.charge_expires_at,
		o.download_token, o.created_at, o.paid_at
		FROM orders o JOIN buyers b ON b.id = o.buyer_id`

	getOrderSQL = selectOrderSQL + ` WHERE o.id = $1`

	getOrderByTokenSQL = selectOrderSQL + ` WHERE o.download_token = $1`

	getOrderByTransactionSQL = selectOrderSQL + `
		WHERE o.id = (SELECT order_id FROM order_charges WHERE transaction_id = $1)`

	listPaidOrdersSQL = selectOrderSQL + ` WHERE o.status = 'paid' ORDER BY o.paid_at`

	getOrderItemsSQL = `SELECT id, asset_id, tier, price_charged
		FROM order_items WHERE order_id = $1 ORDER BY id`

	saveChargeSQL = `UPDATE orders SET status = 'pending',
		charge_transaction_id = $3, charge_copy_paste = $4, charge_qr_image = $5, charge_expires_at = $6,
		commission = $7
		WHERE id = $1 AND status = ANY($2::text[])`

	recordChargeSQL = `INSERT INTO order_charges (transaction_id, order_id, split_applied)
		VALUES ($1, $2, $3) ON CONFLICT (transaction_id) DO NOTHING`

	transitionSQL = `UPDATE orders SET status = $3::text,
		paid_at = CASE WHEN $3::text = 'paid' THEN $4 ELSE paid_at END
		WHERE id = $1 AND status = ANY($2::text[])`

	summarizeSQL = `SELECT count(*), COALESCE(sum(total), 0), COALESCE(sum(commission), 0)
		FROM orders WHERE status = 'paid' AND ($1::bigint IS NULL OR seller_id = $1)`

	listTransactionIDsSQL = `SELECT transaction_id FROM order_charges`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ txindex.Source   = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its line items. Callers wanting both in
// one transaction run it under Store.WithinTx.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)

	_, err := q.Exec(ctx, createOrderSQL,
		o.ID, o.BuyerID, o.SellerID, o.Total, o.Commission, string(o.Status), o.DownloadToken, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	b := &pgx.Batch{}
	for _, it := range o.Items {
		b.Queue(createOrderItemSQL, o.ID, it.AssetID, string(it.Tier), it.PriceCharged)
	}
	br := q.SendBatch(ctx, b)
	for i := range o.Items {
		if err := br.QueryRow().Scan(&o.Items[i].ID); err != nil {
			_ = br.Close()
			return fmt.Errorf("creating item for order %q: %w", o.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("creating items for order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns an order with its line items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetByDownloadToken returns the order holding token.
func (r *OrderRepository) GetByDownloadToken(ctx context.Context, token string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByTokenSQL, token)
}

// FindByTransactionID returns the order that any recorded charge belongs to.
func (r *OrderRepository) FindByTransactionID(ctx context.Context, transactionID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByTransactionSQL, transactionID)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg string) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	rows, err = q.Query(ctx, getOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", o.ID, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanLineItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", o.ID, err)
	}
	return &o, nil
}

// SaveCharge stores the current charge and moves the order to pending,
// provided its status is one of from.
func (r *OrderRepository) SaveCharge(ctx context.Context, id string, from []order.Status, c order.Charge, commission decimal.Decimal) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, saveChargeSQL,
		id, statusStrings(from), c.TransactionID, c.CopyPasteCode, c.QRCodeImage, c.ExpiresAt, commission,
	)
	if err != nil {
		return false, fmt.Errorf("saving charge of order %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordCharge appends to the order's charge history. Recording the same
// transaction twice is a no-op.
func (r *OrderRepository) RecordCharge(ctx context.Context, id, transactionID string, splitApplied bool) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, recordChargeSQL, transactionID, id, splitApplied); err != nil {
		return fmt.Errorf("recording charge %q: %w", transactionID, err)
	}
	return nil
}

// Transition changes the order status with a single conditional update, so
// of two concurrent writers at most one observes a change.
func (r *OrderRepository) Transition(ctx context.Context, id string, from []order.Status, to order.Status, at time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, transitionSQL, id, statusStrings(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("transitioning order %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Summarize aggregates paid orders.
func (r *OrderRepository) Summarize(ctx context.Context, sellerID *int64) (order.Summary, error) {
	var s order.Summary
	err := conn(ctx, r.pool).QueryRow(ctx, summarizeSQL, sellerID).Scan(&s.PaidOrders, &s.Gross, &s.Commission)
	if err != nil {
		return order.Summary{}, fmt.Errorf("summarizing orders: %w", err)
	}
	return s, nil
}

// ListPaid returns all paid orders without line items, oldest payment first.
func (r *OrderRepository) ListPaid(ctx context.Context) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listPaidOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing paid orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListTransactionIDs implements txindex.Source.
func (r *OrderRepository) ListTransactionIDs(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listTransactionIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing transaction ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func statusStrings(statuses []order.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                   order.Order
		status              string
		txID, code, qrImage *string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.BuyerName, &o.BuyerEmail, &o.SellerID, &o.Total, &o.Commission, &status,
		&txID, &code, &qrImage, &o.Charge.ExpiresAt,
		&o.DownloadToken, &o.CreatedAt, &o.PaidAt,
	)
	o.Status = order.Status(status)
	o.Charge.TransactionID = deref(txID)
	o.Charge.CopyPasteCode = deref(code)
	o.Charge.QRCodeImage = deref(qrImage)
	return o, err
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var (
		it   order.LineItem
		tier string
	)
	err := row.Scan(&it.ID, &it.AssetID, &tier, &it.PriceCharged)
	it.Tier = catalog.Tier(tier)
	return it, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
