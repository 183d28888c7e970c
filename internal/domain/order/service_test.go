package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/charge"
	"github.com/fbccsz/yshpics/internal/domain/seller"
)

// --- Helpers ---

var testNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestAsset(id, sellerID int64, low, high string) catalog.Asset {
	a := catalog.Asset{
		ID:          id,
		AlbumID:     1,
		SellerID:    sellerID,
		LowResPath:  "low.jpg",
		HighResPath: "high.jpg",
	}
	if low != "" {
		a.LowPrice = decimal.NewNullDecimal(decimal.RequireFromString(low))
	}
	if high != "" {
		a.HighPrice = decimal.NewNullDecimal(decimal.RequireFromString(high))
	}
	return a
}

type testEnv struct {
	svc      *Service
	orders   *memOrders
	charges  *mockCharges
	payments *mockPayments
	index    *setIndex
	clock    *time.Time
}

func newTestEnv(t *testing.T, results ...charge.Result) *testEnv {
	t.Helper()

	env := &testEnv{
		orders:   newMemOrders(),
		charges:  &mockCharges{results: results},
		payments: &mockPayments{statuses: map[string]charge.Status{}},
		index:    &setIndex{},
	}
	cat := &mockCatalog{assets: map[int64]catalog.Asset{
		1: newTestAsset(1, 10, "15.00", "45.00"),
		2: newTestAsset(2, 10, "1.50", "3.00"),
		3: newTestAsset(3, 20, "10.00", "30.00"),
		4: newTestAsset(4, 10, "", ""),
		5: newTestAsset(5, 30, "10.00", "30.00"),
		6: newTestAsset(6, 40, "10.00", "30.00"),
	}}
	sellers := &mockSellers{byID: map[int64]*seller.Seller{
		10: {ID: 10, Name: "Starter", Tier: seller.TierStarter, Credential: "tok-starter"},
		20: {ID: 20, Name: "Pro", Tier: seller.TierPro, Credential: "tok-pro"},
		30: {ID: 30, Name: "Unconfigured", Tier: seller.TierStarter},
	}}

	svc, err := NewService(Deps{
		Catalog:  cat,
		Sellers:  sellers,
		Buyers:   &mockBuyers{},
		Orders:   env.orders,
		Tx:       passthroughTx{},
		Charges:  env.charges,
		Payments: env.payments,
		Index:    env.index,
		Meter:    noop.NewMeterProvider().Meter("test"),
	}, Config{
		Commission:      DefaultCommissionPolicy(),
		ChargeTTL:       30 * time.Minute,
		ChargeTimeout:   5 * time.Second,
		NotificationURL: "https://yshpics.example/api/webhooks/mercadopago",
	})
	require.NoError(t, err)

	now := testNow
	env.clock = &now
	svc.now = func() time.Time { return *env.clock }
	env.svc = svc
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func okCharge(txID string, split bool) charge.Result {
	return charge.Result{
		Success:       true,
		TransactionID: txID,
		CopyPasteCode: "pix-" + txID,
		QRCodeImage:   "qr-" + txID,
		ExpiresAt:     testNow.Add(30 * time.Minute),
		SplitApplied:  split,
	}
}

func failedCharge(msg string) charge.Result {
	return charge.Result{ErrorMessage: msg}
}

func newTestRequest(items ...ItemRequest) CreateOrderRequest {
	return CreateOrderRequest{
		BuyerName:  "Ana Souza",
		BuyerEmail: "ana@example.com",
		Items:      items,
	}
}

// --- CreateOrder ---

func TestCreateOrder_EmptyItems(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateOrder(context.Background(), newTestRequest())
	require.ErrorIs(t, err, ErrEmptyItems)
	assert.Empty(t, env.orders.orders)
}

func TestCreateOrder_BuyerEmailRequired(t *testing.T) {
	env := newTestEnv(t)

	req := newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierLow})
	req.BuyerEmail = "  "
	_, err := env.svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrBuyerEmailRequired)
}

func TestCreateOrder_UnknownAsset(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateOrder(context.Background(), newTestRequest(
		ItemRequest{AssetID: 1, Tier: catalog.TierLow},
		ItemRequest{AssetID: 99, Tier: catalog.TierLow},
	))

	var nfErr *AssetNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, int64(99), nfErr.AssetID)
	assert.Empty(t, env.orders.orders)
	assert.Empty(t, env.charges.requests)
}

func TestCreateOrder_InvalidTier(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateOrder(context.Background(), newTestRequest(ItemRequest{AssetID: 1, Tier: "medium"}))

	var tierErr *catalog.InvalidTierError
	require.ErrorAs(t, err, &tierErr)
}

func TestCreateOrder_ZeroTotal(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateOrder(context.Background(), newTestRequest(ItemRequest{AssetID: 4, Tier: catalog.TierHigh}))
	require.ErrorIs(t, err, ErrZeroTotal)
	assert.Empty(t, env.orders.orders)
}

func TestCreateOrder_MixedSellers(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateOrder(context.Background(), newTestRequest(
		ItemRequest{AssetID: 1, Tier: catalog.TierLow},
		ItemRequest{AssetID: 3, Tier: catalog.TierLow},
	))
	require.ErrorIs(t, err, ErrMixedSellers)
}

func TestCreateOrder_SellerNotConfigured(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateOrder(context.Background(), newTestRequest(ItemRequest{AssetID: 5, Tier: catalog.TierLow}))
	require.ErrorIs(t, err, ErrSellerNotConfigured)
	assert.Empty(t, env.orders.orders)
}

func TestCreateOrder_StarterCommissionKept(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", true))

	o, err := env.svc.CreateOrder(context.Background(), newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierHigh}))
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(decimal.RequireFromString("45.00")))
	assert.True(t, o.Commission.Equal(decimal.RequireFromString("4.50")), o.Commission.String())
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "tx-1", o.Charge.TransactionID)
	assert.NotEmpty(t, o.DownloadToken)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].PriceCharged.Equal(o.Total))

	require.Len(t, env.charges.requests, 1)
	req := env.charges.requests[0]
	assert.Equal(t, "tok-starter", req.SellerCredential)
	assert.True(t, req.Commission.Equal(decimal.RequireFromString("4.50")))
	assert.Equal(t, o.ID, req.OrderID)

	stored, err := env.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Commission.Equal(decimal.RequireFromString("4.50")))
	assert.True(t, env.index.MayContain("tx-1"))
	assert.True(t, env.orders.splits["tx-1"])
}

func TestCreateOrder_CommissionBelowMinimum(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", false))

	o, err := env.svc.CreateOrder(context.Background(), newTestRequest(ItemRequest{AssetID: 2, Tier: catalog.TierHigh}))
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(decimal.RequireFromString("3.00")))
	assert.True(t, o.Commission.IsZero())
	assert.True(t, env.charges.requests[0].Commission.IsZero())
}

func TestCreateOrder_ProSellerNoCommission(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", false))

	o, err := env.svc.CreateOrder(context.Background(), newTestRequest(ItemRequest{AssetID: 3, Tier: catalog.TierHigh}))
	require.NoError(t, err)
	assert.True(t, o.Commission.IsZero())
}

func TestCreateOrder_SplitFallbackZeroesCommission(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", false))

	o, err := env.svc.CreateOrder(context.Background(), newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierHigh}))
	require.NoError(t, err)

	assert.True(t, env.charges.requests[0].Commission.Equal(decimal.RequireFromString("4.50")))
	assert.True(t, o.Commission.IsZero())
	stored, err := env.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Commission.IsZero())
	assert.False(t, env.orders.splits["tx-1"])
}

func TestCreateOrder_TotalSumsLineItems(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", true))

	o, err := env.svc.CreateOrder(context.Background(), newTestRequest(
		ItemRequest{AssetID: 1, Tier: catalog.TierLow},
		ItemRequest{AssetID: 1, Tier: catalog.TierHigh},
		ItemRequest{AssetID: 2, Tier: catalog.TierLow},
	))
	require.NoError(t, err)

	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.PriceCharged)
	}
	assert.True(t, o.Total.Equal(sum))
	assert.True(t, o.Total.Equal(decimal.RequireFromString("61.50")))
	assert.True(t, o.Commission.Equal(decimal.RequireFromString("6.15")))
	assert.True(t, o.Commission.LessThanOrEqual(o.Total))
}

func TestCreateOrder_ChargeFailedPersistsCancelled(t *testing.T) {
	env := newTestEnv(t, failedCharge("processor rejected charge"))

	o, err := env.svc.CreateOrder(context.Background(), newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierLow}))

	var cfErr *ChargeFailedError
	require.ErrorAs(t, err, &cfErr)
	assert.Equal(t, "processor rejected charge", cfErr.Message)
	require.NotNil(t, o)
	assert.Equal(t, o.ID, cfErr.OrderID)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, StatusCancelled, env.orders.status(o.ID))
}

// --- RegenerateCharge ---

func TestRegenerateCharge_FromCancelled(t *testing.T) {
	env := newTestEnv(t, failedCharge("timeout"), okCharge("tx-2", true))
	ctx := context.Background()

	o, err := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierHigh}))
	require.Error(t, err)

	res, err := env.svc.RegenerateCharge(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "tx-2", res.TransactionID)

	stored, err := env.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, "tx-2", stored.Charge.TransactionID)
	assert.True(t, stored.Commission.Equal(decimal.RequireFromString("4.50")))

	// Stored amount and commission are reused.
	require.Len(t, env.charges.requests, 2)
	assert.True(t, env.charges.requests[1].Amount.Equal(o.Total))
	assert.True(t, env.charges.requests[1].Commission.Equal(decimal.RequireFromString("4.50")))
}

func TestRegenerateCharge_FromLapsedPending(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", true), okCharge("tx-2", true))
	ctx := context.Background()

	o, err := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierLow}))
	require.NoError(t, err)

	env.advance(31 * time.Minute)

	res, err := env.svc.RegenerateCharge(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "tx-2", res.TransactionID)
	assert.Equal(t, StatusPending, env.orders.status(o.ID))
	assert.Equal(t, 1, env.orders.count(StatusExpired))
}

func TestRegenerateCharge_NotAllowedWhilePending(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", true))
	ctx := context.Background()

	o, err := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierLow}))
	require.NoError(t, err)

	_, err = env.svc.RegenerateCharge(ctx, o.ID)
	require.ErrorIs(t, err, ErrNotRegenerable)
	assert.Len(t, env.charges.requests, 1)
}

func TestRegenerateCharge_FailureLeavesStatus(t *testing.T) {
	env := newTestEnv(t, failedCharge("first"), failedCharge("second"))
	ctx := context.Background()

	o, _ := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierLow}))
	require.NotNil(t, o)

	res, err := env.svc.RegenerateCharge(ctx, o.ID)
	var cfErr *ChargeFailedError
	require.ErrorAs(t, err, &cfErr)
	assert.False(t, res.Success)
	assert.Equal(t, "second", res.ErrorMessage)
	assert.Equal(t, StatusCancelled, env.orders.status(o.ID))
}

func TestRegenerateCharge_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.RegenerateCharge(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Lazy expiry ---

func TestStatus_LazyExpiry(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", true))
	ctx := context.Background()

	o, err := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierLow}))
	require.NoError(t, err)

	st, err := env.svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st)

	env.advance(30*time.Minute + time.Second)

	st, err = env.svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, st)
	assert.Equal(t, StatusExpired, env.orders.status(o.ID))
}

func TestPaymentView(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", true))
	ctx := context.Background()

	o, err := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierLow}))
	require.NoError(t, err)

	view, err := env.svc.PaymentView(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pix-tx-1", view.Charge.CopyPasteCode)

	env.advance(time.Hour)
	_, err = env.svc.PaymentView(ctx, o.ID)
	require.ErrorIs(t, err, ErrGone)

	_, err = env.svc.PaymentView(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentView_Cancelled(t *testing.T) {
	env := newTestEnv(t, failedCharge("down"))
	ctx := context.Background()

	o, _ := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierLow}))
	require.NotNil(t, o)

	_, err := env.svc.PaymentView(ctx, o.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

// --- Summary ---

func TestSummary(t *testing.T) {
	env := newTestEnv(t, okCharge("tx-1", true), okCharge("tx-2", false))
	ctx := context.Background()

	o1, err := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 1, Tier: catalog.TierHigh}))
	require.NoError(t, err)
	o2, err := env.svc.CreateOrder(ctx, newTestRequest(ItemRequest{AssetID: 3, Tier: catalog.TierHigh}))
	require.NoError(t, err)

	env.payments.statuses["tx-1"] = charge.StatusApproved
	env.payments.statuses["tx-2"] = charge.StatusApproved
	require.NoError(t, env.svc.HandleNotification(ctx, Notification{Type: "payment", PaymentID: "tx-1"}))
	require.NoError(t, env.svc.HandleNotification(ctx, Notification{Type: "payment", PaymentID: "tx-2"}))

	all, err := env.svc.Summary(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.PaidOrders)
	assert.True(t, all.Gross.Equal(o1.Total.Add(o2.Total)))
	assert.True(t, all.Commission.Equal(decimal.RequireFromString("4.50")))
	assert.True(t, all.Net.Equal(decimal.RequireFromString("70.50")))

	sellerID := int64(20)
	pro, err := env.svc.Summary(ctx, &sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pro.PaidOrders)
	assert.True(t, pro.Commission.IsZero())
	assert.True(t, pro.Net.Equal(decimal.RequireFromString("30.00")))
}
