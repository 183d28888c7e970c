package order

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
)

// Status is the payment status of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// statuses lists every status in a stable order.
var statuses = []Status{StatusPending, StatusPaid, StatusExpired, StatusCancelled}

// successors is the order state machine. Paid is terminal. Expired and
// cancelled orders return to pending only through charge regeneration; a
// confirmed payment wins over either.
var successors = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusExpired, StatusCancelled},
	StatusExpired:   {StatusPending, StatusPaid},
	StatusCancelled: {StatusPending, StatusPaid},
}

// CanTransition reports whether an order may move from s to next.
func (s Status) CanTransition(next Status) bool {
	return slices.Contains(successors[s], next)
}

// Predecessors returns the statuses an order may move to s from.
func (s Status) Predecessors() []Status {
	var from []Status
	for _, st := range statuses {
		if st.CanTransition(s) {
			from = append(from, st)
		}
	}
	return from
}

// Charge is the processor-side payment descriptor attached to an order.
type Charge struct {
	TransactionID string
	CopyPasteCode string
	QRCodeImage   string
	ExpiresAt     *time.Time
}

// LineItem is one purchased asset rendition with its price at purchase time.
type LineItem struct {
	ID           int64
	AssetID      int64
	Tier         catalog.Tier
	PriceCharged decimal.Decimal
}

// Order is a buyer's purchase from a single seller.
type Order struct {
	ID         string
	BuyerID    int64
	BuyerName  string
	BuyerEmail string
	SellerID   int64
	Total      decimal.Decimal
	Commission decimal.Decimal
	Status     Status
	Charge     Charge
	// DownloadToken unlocks the download bundle once the order is paid.
	DownloadToken string
	CreatedAt     time.Time
	PaidAt        *time.Time
	Items         []LineItem
}

// Summary aggregates paid orders.
type Summary struct {
	PaidOrders int64
	// Gross is the sum of paid order totals.
	Gross decimal.Decimal
	// Commission is the platform's share of Gross.
	Commission decimal.Decimal
	// Net is what sellers keep.
	Net decimal.Decimal
}

// Repository defines persistence operations for orders.
//
// Mutations that change status are conditional: they apply only when the
// stored status is one of from, and report whether they did.
type Repository interface {
	// Create persists the order and its line items.
	Create(ctx context.Context, o *Order) error
	// Get returns the order with its line items and buyer contact.
	Get(ctx context.Context, id string) (*Order, error)
	GetByDownloadToken(ctx context.Context, token string) (*Order, error)
	// FindByTransactionID resolves any charge ever issued for an order,
	// not only the current one.
	FindByTransactionID(ctx context.Context, transactionID string) (*Order, error)
	// SaveCharge stores c as the current charge, sets the commission and
	// moves the order to pending.
	SaveCharge(ctx context.Context, id string, from []Status, c Charge, commission decimal.Decimal) (bool, error)
	// RecordCharge appends a transaction id to the order's charge history.
	RecordCharge(ctx context.Context, id, transactionID string, splitApplied bool) error
	Transition(ctx context.Context, id string, from []Status, to Status, at time.Time) (bool, error)
	// Summarize aggregates paid orders, for one seller or for all when
	// sellerID is nil.
	Summarize(ctx context.Context, sellerID *int64) (Summary, error)
}

// Transactor runs fn in a storage transaction carried by the context.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
