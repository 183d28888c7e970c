// Package download gates access to purchased full-resolution photos.
package download

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/order"
)

// Sentinel errors for download access.
var (
	// ErrForbidden means no paid order matches the token.
	ErrForbidden = fmt.Errorf("download not available")
	// ErrGone means the order was paid but the download window has closed.
	ErrGone = fmt.Errorf("download window has closed")
)

// Orders resolves orders by download token.
type Orders interface {
	GetByDownloadToken(ctx context.Context, token string) (*order.Order, error)
}

// AssetStore reads stored asset renditions. A missing file is reported with
// an error wrapping fs.ErrNotExist.
type AssetStore interface {
	Read(ctx context.Context, tier catalog.Tier, path string) ([]byte, error)
}

// Config holds download gate settings.
type Config struct {
	// Window is how long after order creation downloads stay available.
	Window time.Duration
	// Concurrency bounds parallel asset reads per bundle.
	Concurrency int
}

// Gate issues download bundles for paid orders.
type Gate struct {
	orders  Orders
	catalog catalog.Repository
	store   AssetStore
	cfg     Config
	now     func() time.Time
}

// NewGate creates a Gate.
func NewGate(orders Orders, cat catalog.Repository, store AssetStore, cfg Config) *Gate {
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Gate{
		orders:  orders,
		catalog: cat,
		store:   store,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Issue returns the bundle for the order holding token.
func (g *Gate) Issue(ctx context.Context, token string) (*Bundle, error) {
	if token == "" {
		return nil, ErrForbidden
	}
	o, err := g.orders.GetByDownloadToken(ctx, token)
	if errors.Is(err, order.ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status != order.StatusPaid {
		return nil, ErrForbidden
	}
	if g.now().After(o.CreatedAt.Add(g.cfg.Window)) {
		return nil, ErrGone
	}

	ids := make([]int64, len(o.Items))
	for i, it := range o.Items {
		ids[i] = it.AssetID
	}
	assets, err := g.catalog.GetAssets(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get assets")
	}
	byID := make(map[int64]catalog.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	b := &Bundle{
		OrderID:     o.ID,
		store:       g.store,
		concurrency: g.cfg.Concurrency,
		modified:    g.now(),
	}
	seen := make(map[string]bool, len(o.Items))
	for _, it := range o.Items {
		a, ok := byID[it.AssetID]
		if !ok {
			continue
		}
		name := it.Tier.ArchiveName(a)
		if seen[name] {
			continue
		}
		seen[name] = true
		b.entries = append(b.entries, entry{name: name, tier: it.Tier, path: it.Tier.Path(a)})
	}
	return b, nil
}

type entry struct {
	name string
	tier catalog.Tier
	path string
}

// Bundle is the set of files a paid order unlocks.
type Bundle struct {
	OrderID string

	entries     []entry
	store       AssetStore
	concurrency int
	modified    time.Time
}

// Filename is the archive name offered to the client.
func (b *Bundle) Filename() string {
	return fmt.Sprintf("yshpics_order_%s.zip", b.OrderID)
}

// Names lists the archive entry names in order.
func (b *Bundle) Names() []string {
	names := make([]string, len(b.entries))
	for i, e := range b.entries {
		names[i] = e.name
	}
	return names
}

// Build reads the files and returns a deflate-compressed ZIP archive.
// Files missing from storage are left out.
func (b *Bundle) Build(ctx context.Context) ([]byte, error) {
	contents := make([][]byte, len(b.entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, e := range b.entries {
		g.Go(func() error {
			data, err := b.store.Read(gctx, e.tier, e.path)
			if errors.Is(err, fs.ErrNotExist) {
				zctx.From(ctx).Warn("Asset missing from storage, skipping",
					zap.String("order_id", b.OrderID),
					zap.String("path", e.path),
				)
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "read %s", e.name)
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, e := range b.entries {
		if contents[i] == nil {
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: b.modified,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create %s", e.name)
		}
		if _, err := w.Write(contents[i]); err != nil {
			return nil, errors.Wrapf(err, "write %s", e.name)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close archive")
	}
	return buf.Bytes(), nil
}
