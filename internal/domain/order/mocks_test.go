package order

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fbccsz/yshpics/internal/domain/buyer"
	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/charge"
	"github.com/fbccsz/yshpics/internal/domain/seller"
)

// --- Mock implementations ---

type mockCatalog struct {
	assets map[int64]catalog.Asset
}

func (m *mockCatalog) GetAssets(_ context.Context, ids []int64) ([]catalog.Asset, error) {
	var out []catalog.Asset
	for _, id := range ids {
		if a, ok := m.assets[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockCatalog) GetAlbumByHash(context.Context, string) (*catalog.Album, error) {
	return nil, catalog.ErrNotFound
}

type mockSellers struct {
	byID map[int64]*seller.Seller
}

func (m *mockSellers) Get(_ context.Context, id int64) (*seller.Seller, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, seller.ErrNotFound
	}
	return s, nil
}

func (m *mockSellers) SetCredential(context.Context, int64, string) error { return nil }

func (m *mockSellers) SetTier(context.Context, int64, seller.CommissionTier) error { return nil }

type mockBuyers struct {
	mu     sync.Mutex
	nextID int64
	byMail map[string]*buyer.Buyer
}

func (m *mockBuyers) Resolve(_ context.Context, name, email string) (*buyer.Buyer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byMail == nil {
		m.byMail = map[string]*buyer.Buyer{}
	}
	if b, ok := m.byMail[email]; ok {
		b.Name = name
		return b, nil
	}
	m.nextID++
	b := &buyer.Buyer{ID: m.nextID, Name: name, Email: email}
	m.byMail[email] = b
	return b, nil
}

// memOrders is an in-memory Repository with the same conditional update
// semantics as the SQL one.
type memOrders struct {
	mu          sync.Mutex
	orders      map[string]*Order
	charges     map[string]string // transaction id -> order id
	splits      map[string]bool
	transitions []Status
	createErr   error
}

func newMemOrders() *memOrders {
	return &memOrders{
		orders:  map[string]*Order{},
		charges: map[string]string{},
		splits:  map[string]bool{},
	}
}

func (m *memOrders) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	cp.Items = slices.Clone(o.Items)
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) get(id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memOrders) GetByDownloadToken(_ context.Context, token string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.DownloadToken == token {
			return m.get(o.ID)
		}
	}
	return nil, ErrNotFound
}

func (m *memOrders) FindByTransactionID(_ context.Context, txID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.charges[txID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.get(id)
}

func (m *memOrders) SaveCharge(_ context.Context, id string, from []Status, c Charge, commission decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || !slices.Contains(from, o.Status) {
		return false, nil
	}
	if o.Status != StatusPending {
		m.transitions = append(m.transitions, StatusPending)
	}
	o.Status = StatusPending
	o.Charge = c
	o.Commission = commission
	return true, nil
}

func (m *memOrders) RecordCharge(_ context.Context, id, txID string, split bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[txID] = id
	m.splits[txID] = split
	return nil
}

func (m *memOrders) Transition(_ context.Context, id string, from []Status, to Status, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || !slices.Contains(from, o.Status) {
		return false, nil
	}
	o.Status = to
	if to == StatusPaid {
		o.PaidAt = &at
	}
	m.transitions = append(m.transitions, to)
	return true, nil
}

func (m *memOrders) Summarize(_ context.Context, sellerID *int64) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := Summary{Gross: decimal.Zero, Commission: decimal.Zero}
	for _, o := range m.orders {
		if o.Status != StatusPaid || (sellerID != nil && o.SellerID != *sellerID) {
			continue
		}
		sum.PaidOrders++
		sum.Gross = sum.Gross.Add(o.Total)
		sum.Commission = sum.Commission.Add(o.Commission)
	}
	return sum, nil
}

func (m *memOrders) status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

func (m *memOrders) count(to Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.transitions {
		if s == to {
			n++
		}
	}
	return n
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockCharges struct {
	mu       sync.Mutex
	requests []charge.Request
	results  []charge.Result
}

func (m *mockCharges) Create(_ context.Context, req charge.Request) charge.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	i := len(m.requests) - 1
	if i >= len(m.results) {
		return charge.Result{ErrorMessage: "unexpected charge"}
	}
	return m.results[i]
}

type mockPayments struct {
	mu       sync.Mutex
	statuses map[string]charge.Status
	err      error
	calls    int
	// credentials records the credential used for each lookup.
	credentials []string
}

func (m *mockPayments) GetPayment(_ context.Context, credential, id string) (*charge.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.credentials = append(m.credentials, credential)
	if m.err != nil {
		return nil, m.err
	}
	return &charge.Payment{ID: id, Status: m.statuses[id]}, nil
}

type setIndex struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (s *setIndex) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = map[string]bool{}
	}
	s.ids[id] = true
}

func (s *setIndex) MayContain(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}
