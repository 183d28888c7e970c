// Package handler exposes the order, payment and download flows over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/charge"
	"github.com/fbccsz/yshpics/internal/domain/download"
	"github.com/fbccsz/yshpics/internal/domain/order"
	"github.com/fbccsz/yshpics/internal/domain/seller"
)

// Orders is the order workflow, implemented by *order.Service.
type Orders interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	RegenerateCharge(ctx context.Context, id string) (charge.Result, error)
	Status(ctx context.Context, id string) (order.Status, error)
	PaymentView(ctx context.Context, id string) (*order.Order, error)
	Summary(ctx context.Context, sellerID *int64) (order.Summary, error)
	Deadline(o *order.Order) time.Time
	HandleNotification(ctx context.Context, n order.Notification) error
}

var _ Orders = (*order.Service)(nil)

// Downloads issues archives for paid orders, implemented by *download.Gate.
type Downloads interface {
	Issue(ctx context.Context, token string) (*download.Bundle, error)
}

// Albums serves public album pages.
type Albums interface {
	GetAlbumByHash(ctx context.Context, hash string) (*catalog.Album, error)
}

// Sessions verifies seller session tokens.
type Sessions interface {
	Verify(token string) (int64, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// PublicBaseURL prefixes download and preview links.
	PublicBaseURL string
	// OwnerEmail identifies the platform owner among sellers.
	OwnerEmail string
	// MaxBodyBytes caps request bodies. Defaults to 64 KiB.
	MaxBodyBytes int64
}

// Deps are the Handler's domain dependencies.
type Deps struct {
	Orders    Orders
	Downloads Downloads
	Albums    Albums
	Sellers   seller.Repository
	Sessions  Sessions
}

// Handler serves the HTTP API.
type Handler struct {
	orders    Orders
	downloads Downloads
	albums    Albums
	sellers   seller.Repository
	sessions  Sessions

	baseURL    string
	ownerEmail string
	maxBody    int64
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &Handler{
		orders:     deps.Orders,
		downloads:  deps.Downloads,
		albums:     deps.Albums,
		sellers:    deps.Sellers,
		sessions:   deps.Sessions,
		baseURL:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		ownerEmail: strings.TrimSpace(cfg.OwnerEmail),
		maxBody:    cfg.MaxBodyBytes,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}/status", h.OrderStatus)
	mux.HandleFunc("GET /api/orders/{id}/payment", h.OrderPayment)
	mux.HandleFunc("POST /api/orders/{id}/charge", h.RegenerateCharge)
	mux.HandleFunc("POST "+WebhookPath, h.PaymentNotification)
	mux.HandleFunc("GET /api/downloads/{token}", h.Download)
	mux.HandleFunc("GET /api/albums/{hash}", h.Album)

	mux.HandleFunc("PUT /api/seller/credential", h.requireSeller(h.SetCredential))
	mux.HandleFunc("GET /api/seller/summary", h.requireSeller(h.SellerSummary))
	mux.HandleFunc("PUT /api/owner/sellers/{id}/tier", h.requireOwner(h.SetTier))
	mux.HandleFunc("GET /api/owner/summary", h.requireOwner(h.OwnerSummary))
}

// WebhookPath receives payment notifications from the processor.
const WebhookPath = "/api/webhooks/mercadopago"

// IsWebhook reports whether r is a processor notification. Those arrive
// in bursts from shared processor addresses and bypass client rate limits.
func IsWebhook(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == WebhookPath
}

func (h *Handler) downloadURL(token string) string {
	return h.baseURL + "/api/downloads/" + token
}

// previewURL points at the public directory as published by the web tier.
func (h *Handler) previewURL(path string) string {
	return h.baseURL + "/static/" + strings.TrimLeft(path, "/")
}
