package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fbccsz/yshpics/internal/domain/buyer"
	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/charge"
	"github.com/fbccsz/yshpics/internal/domain/seller"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems          = fmt.Errorf("items required")
	ErrBuyerEmailRequired  = fmt.Errorf("buyer email required")
	ErrZeroTotal           = fmt.Errorf("order total must be greater than zero")
	ErrMixedSellers        = fmt.Errorf("all items must belong to the same seller")
	ErrSellerNotConfigured = fmt.Errorf("seller is not configured to receive payments")
	ErrNotFound            = fmt.Errorf("order not found")
	ErrNotRegenerable      = fmt.Errorf("charge can only be regenerated for expired or cancelled orders")
	ErrGone                = fmt.Errorf("payment window has closed")
	ErrForbidden           = fmt.Errorf("order is not payable")
)

// AssetNotFoundError indicates a requested asset does not exist.
type AssetNotFoundError struct {
	AssetID int64
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset %d not found", e.AssetID)
}

// ChargeFailedError indicates the processor did not produce a charge.
type ChargeFailedError struct {
	OrderID string
	Message string
}

func (e *ChargeFailedError) Error() string {
	return fmt.Sprintf("charge for order %s failed: %s", e.OrderID, e.Message)
}

// ChargeCreator creates processor charges. It reports failures in the result.
type ChargeCreator interface {
	Create(ctx context.Context, req charge.Request) charge.Result
}

// PaymentLookup queries the processor for the authoritative payment state.
type PaymentLookup interface {
	GetPayment(ctx context.Context, credential, paymentID string) (*charge.Payment, error)
}

// TxIndex remembers issued transaction ids. MayContain may return false
// positives but never false negatives.
type TxIndex interface {
	Add(transactionID string)
	MayContain(transactionID string) bool
}

// Config holds order service settings.
type Config struct {
	Commission CommissionPolicy
	// ChargeTTL bounds how long a pending order stays payable when its
	// charge carries no expiration of its own.
	ChargeTTL time.Duration
	// ChargeTimeout bounds a single charge generation call.
	ChargeTimeout time.Duration
	// NotificationURL is where the processor posts payment notifications.
	NotificationURL string
}

// Deps are the collaborators of a Service.
type Deps struct {
	Catalog  catalog.Repository
	Sellers  seller.Repository
	Buyers   buyer.Repository
	Orders   Repository
	Tx       Transactor
	Charges  ChargeCreator
	Payments PaymentLookup
	Index    TxIndex
	Meter    metric.Meter
}

// Service is the order ledger and payment state machine.
type Service struct {
	catalog  catalog.Repository
	sellers  seller.Repository
	buyers   buyer.Repository
	orders   Repository
	tx       Transactor
	charges  ChargeCreator
	payments PaymentLookup
	index    TxIndex
	cfg      Config
	now      func() time.Time

	chargesCreated metric.Int64Counter
	chargesFailed  metric.Int64Counter
	splitFallbacks metric.Int64Counter
	transitions    metric.Int64Counter
}

// NewService creates an order Service.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if cfg.ChargeTTL <= 0 {
		cfg.ChargeTTL = 30 * time.Minute
	}
	s := &Service{
		catalog:  deps.Catalog,
		sellers:  deps.Sellers,
		buyers:   deps.Buyers,
		orders:   deps.Orders,
		tx:       deps.Tx,
		charges:  deps.Charges,
		payments: deps.Payments,
		index:    deps.Index,
		cfg:      cfg,
		now:      time.Now,
	}

	var err error
	if s.chargesCreated, err = deps.Meter.Int64Counter("yshpics.charges.created",
		metric.WithDescription("Charges created at the processor"),
	); err != nil {
		return nil, fmt.Errorf("charges created counter: %w", err)
	}
	if s.chargesFailed, err = deps.Meter.Int64Counter("yshpics.charges.failed",
		metric.WithDescription("Charge generations that produced no charge"),
	); err != nil {
		return nil, fmt.Errorf("charges failed counter: %w", err)
	}
	if s.splitFallbacks, err = deps.Meter.Int64Counter("yshpics.charges.split_fallbacks",
		metric.WithDescription("Charges created without the commission after the split was rejected"),
	); err != nil {
		return nil, fmt.Errorf("split fallbacks counter: %w", err)
	}
	if s.transitions, err = deps.Meter.Int64Counter("yshpics.orders.transitions",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		return nil, fmt.Errorf("transitions counter: %w", err)
	}
	return s, nil
}

// ItemRequest selects one asset rendition.
type ItemRequest struct {
	AssetID int64
	Tier    catalog.Tier
}

// CreateOrderRequest holds the input for a guest checkout.
type CreateOrderRequest struct {
	BuyerName  string
	BuyerEmail string
	Items      []ItemRequest
}

// CreateOrder validates the selection, persists the order with its line
// items, and requests a charge for it.
//
// Validation failures persist nothing. When the charge fails the order is
// kept as cancelled and returned together with a *ChargeFailedError.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	email := strings.TrimSpace(req.BuyerEmail)
	if email == "" {
		return nil, ErrBuyerEmailRequired
	}

	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Tier != catalog.TierLow && item.Tier != catalog.TierHigh {
			return nil, &catalog.InvalidTierError{Value: string(item.Tier)}
		}
		ids = append(ids, item.AssetID)
	}

	fetched, err := s.catalog.GetAssets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get assets: %w", err)
	}
	assets := make(map[int64]catalog.Asset, len(fetched))
	for _, a := range fetched {
		assets[a.ID] = a
	}

	var (
		sellerID int64
		total    = decimal.Zero
		items    = make([]LineItem, 0, len(req.Items))
	)
	for i, item := range req.Items {
		a, ok := assets[item.AssetID]
		if !ok {
			return nil, &AssetNotFoundError{AssetID: item.AssetID}
		}
		if i == 0 {
			sellerID = a.SellerID
		} else if a.SellerID != sellerID {
			return nil, ErrMixedSellers
		}
		price := item.Tier.Price(a).Round(2)
		total = total.Add(price)
		items = append(items, LineItem{
			AssetID:      a.ID,
			Tier:         item.Tier,
			PriceCharged: price,
		})
	}
	if !total.IsPositive() {
		return nil, ErrZeroTotal
	}

	sel, err := s.sellers.Get(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("get seller %d: %w", sellerID, err)
	}
	if !sel.CanReceive() {
		return nil, ErrSellerNotConfigured
	}

	o := &Order{
		ID:            uuid.New().String(),
		BuyerName:     strings.TrimSpace(req.BuyerName),
		BuyerEmail:    email,
		SellerID:      sel.ID,
		Total:         total,
		Commission:    s.cfg.Commission.Commission(total, sel.Tier),
		Status:        StatusPending,
		DownloadToken: uuid.New().String(),
		CreatedAt:     s.now(),
		Items:         items,
	}

	// Buyer, order and line items commit together; the processor call
	// happens after commit so a slow processor holds no transaction open.
	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.buyers.Resolve(ctx, o.BuyerName, o.BuyerEmail)
		if err != nil {
			return fmt.Errorf("resolve buyer: %w", err)
		}
		o.BuyerID = b.ID
		return s.orders.Create(ctx, o)
	}); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	lg.Info("Order created",
		zap.Int64("seller_id", o.SellerID),
		zap.String("total", o.Total.StringFixed(2)),
		zap.String("commission", o.Commission.StringFixed(2)),
	)

	res := s.requestCharge(ctx, o, sel.Credential)
	if !res.Success {
		if _, err := s.transition(ctx, o, StatusCancelled); err != nil {
			return nil, fmt.Errorf("cancel order: %w", err)
		}
		return o, &ChargeFailedError{OrderID: o.ID, Message: res.ErrorMessage}
	}

	// The order is new and pending: the charge is attached, not a transition.
	if _, err := s.saveCharge(ctx, o, res, []Status{StatusPending}); err != nil {
		return nil, err
	}
	return o, nil
}

// RegenerateCharge requests a fresh charge for an expired or cancelled
// order, reusing its stored amount and commission. On success the order is
// pending again; on failure its status is unchanged and a
// *ChargeFailedError is returned alongside the result.
func (s *Service) RegenerateCharge(ctx context.Context, id string) (charge.Result, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return charge.Result{}, err
	}
	if err := s.expireIfLapsed(ctx, o); err != nil {
		return charge.Result{}, err
	}
	if !o.Status.CanTransition(StatusPending) {
		return charge.Result{}, ErrNotRegenerable
	}

	sel, err := s.sellers.Get(ctx, o.SellerID)
	if err != nil {
		return charge.Result{}, fmt.Errorf("get seller %d: %w", o.SellerID, err)
	}

	from := o.Status
	res := s.requestCharge(ctx, o, sel.Credential)
	if !res.Success {
		return res, &ChargeFailedError{OrderID: o.ID, Message: res.ErrorMessage}
	}

	// Only the observed predecessor: a concurrent payment must win.
	ok, err := s.saveCharge(ctx, o, res, []Status{from})
	if err != nil {
		return charge.Result{}, err
	}
	if !ok {
		// Paid by a late notification for an earlier charge meanwhile.
		zctx.From(ctx).Warn("Order changed during charge regeneration",
			zap.String("order_id", o.ID),
			zap.String("transaction_id", res.TransactionID),
		)
		return charge.Result{}, ErrNotRegenerable
	}
	return res, nil
}

// Get returns an order after applying lazy expiry.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfLapsed(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Status returns the current status of an order.
func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// PaymentView returns an order whose charge can be shown to the buyer, or
// a paid order. Expired orders yield ErrGone and cancelled ones ErrForbidden.
func (s *Service) PaymentView(ctx context.Context, id string) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case StatusExpired:
		return nil, ErrGone
	case StatusCancelled:
		return nil, ErrForbidden
	default:
		return o, nil
	}
}

// Summary aggregates paid orders for a seller, or for the whole platform
// when sellerID is nil.
func (s *Service) Summary(ctx context.Context, sellerID *int64) (Summary, error) {
	sum, err := s.orders.Summarize(ctx, sellerID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize orders: %w", err)
	}
	sum.Net = sum.Gross.Sub(sum.Commission)
	return sum, nil
}

// Deadline returns when a pending order stops being payable.
func (s *Service) Deadline(o *Order) time.Time {
	if o.Charge.ExpiresAt != nil {
		return *o.Charge.ExpiresAt
	}
	return o.CreatedAt.Add(s.cfg.ChargeTTL)
}

func (s *Service) requestCharge(ctx context.Context, o *Order, credential string) charge.Result {
	if s.cfg.ChargeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ChargeTimeout)
		defer cancel()
	}
	res := s.charges.Create(ctx, charge.Request{
		Amount:           o.Total,
		BuyerEmail:       o.BuyerEmail,
		BuyerName:        o.BuyerName,
		OrderID:          o.ID,
		SellerCredential: credential,
		Commission:       o.Commission,
		NotificationURL:  s.cfg.NotificationURL,
	})
	if !res.Success {
		s.chargesFailed.Add(ctx, 1)
		return res
	}
	s.chargesCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("split_applied", res.SplitApplied)))
	if o.Commission.IsPositive() && !res.SplitApplied {
		s.splitFallbacks.Add(ctx, 1)
	}
	return res
}

// saveCharge stores a successful charge and moves the order to pending.
// Without a split the recorded commission is zeroed, since nothing will be
// withheld.
func (s *Service) saveCharge(ctx context.Context, o *Order, res charge.Result, from []Status) (bool, error) {
	commission := o.Commission
	if !res.SplitApplied {
		commission = decimal.Zero
	}
	expiresAt := res.ExpiresAt
	c := Charge{
		TransactionID: res.TransactionID,
		CopyPasteCode: res.CopyPasteCode,
		QRCodeImage:   res.QRCodeImage,
		ExpiresAt:     &expiresAt,
	}

	var saved bool
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		saved, err = s.orders.SaveCharge(ctx, o.ID, from, c, commission)
		if err != nil || !saved {
			return err
		}
		return s.orders.RecordCharge(ctx, o.ID, res.TransactionID, res.SplitApplied)
	})
	if err != nil {
		return false, fmt.Errorf("save charge for order %s: %w", o.ID, err)
	}
	if !saved {
		return false, nil
	}

	if s.index != nil {
		s.index.Add(res.TransactionID)
	}
	if o.Status != StatusPending {
		s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(StatusPending))))
	}
	o.Status = StatusPending
	o.Charge = c
	o.Commission = commission
	return true, nil
}

// transition moves o to status to if its stored status is one of the
// predecessors of to. When another writer got there first, o is refreshed
// from storage.
func (s *Service) transition(ctx context.Context, o *Order, to Status) (bool, error) {
	now := s.now()
	ok, err := s.orders.Transition(ctx, o.ID, to.Predecessors(), to, now)
	if err != nil {
		return false, fmt.Errorf("transition order %s to %s: %w", o.ID, to, err)
	}
	if !ok {
		fresh, err := s.orders.Get(ctx, o.ID)
		if err != nil {
			return false, fmt.Errorf("reload order %s: %w", o.ID, err)
		}
		*o = *fresh
		return false, nil
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(to))))
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)
	o.Status = to
	if to == StatusPaid {
		o.PaidAt = &now
	}
	return true, nil
}

// expireIfLapsed moves a pending order past its deadline to expired.
func (s *Service) expireIfLapsed(ctx context.Context, o *Order) error {
	if o.Status != StatusPending || s.now().Before(s.Deadline(o)) {
		return nil
	}
	_, err := s.transition(ctx, o, StatusExpired)
	return err
}
