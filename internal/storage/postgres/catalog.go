package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
)

const (
	selectAssetSQL = `SELECT a.id, a.album_id, al.seller_id, a.low_res_path, a.high_res_path, a.low_price, a.high_price
		FROM assets a JOIN albums al ON al.id = a.album_id`

	getAssetsSQL = selectAssetSQL + ` WHERE a.id = ANY($1) ORDER BY a.id`

	getAlbumAssetsSQL = selectAssetSQL + ` WHERE a.album_id = $1 ORDER BY a.id`

	getAlbumByHashSQL = `SELECT id, seller_id, title, hash, event_date, created_at FROM albums WHERE hash = $1`

	createAlbumSQL = `INSERT INTO albums (seller_id, title, hash, event_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO UPDATE SET title = EXCLUDED.title, event_date = EXCLUDED.event_date
		RETURNING id, created_at`

	createAssetSQL = `INSERT INTO assets (album_id, low_res_path, high_res_path, low_price, high_price)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	deleteAlbumSQL = `DELETE FROM albums WHERE id = $1`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetAssets returns the assets matching any of ids.
func (r *CatalogRepository) GetAssets(ctx context.Context, ids []int64) ([]catalog.Asset, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getAssetsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting assets by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanAsset)
}

// GetAlbumByHash returns an album and its assets by public hash.
func (r *CatalogRepository) GetAlbumByHash(ctx context.Context, hash string) (*catalog.Album, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getAlbumByHashSQL, hash)
	if err != nil {
		return nil, fmt.Errorf("getting album %q: %w", hash, err)
	}
	album, err := pgx.CollectExactlyOneRow(rows, scanAlbum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting album %q: %w", hash, err)
	}

	rows, err = q.Query(ctx, getAlbumAssetsSQL, album.ID)
	if err != nil {
		return nil, fmt.Errorf("getting assets of album %d: %w", album.ID, err)
	}
	album.Assets, err = pgx.CollectRows(rows, scanAsset)
	if err != nil {
		return nil, fmt.Errorf("getting assets of album %d: %w", album.ID, err)
	}
	return &album, nil
}

// CreateAlbum inserts an album, or updates the one with the same hash.
func (r *CatalogRepository) CreateAlbum(ctx context.Context, a *catalog.Album) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createAlbumSQL, a.SellerID, a.Title, a.Hash, a.EventDate).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating album %q: %w", a.Hash, err)
	}
	return nil
}

// CreateAsset inserts an asset into its album.
func (r *CatalogRepository) CreateAsset(ctx context.Context, a *catalog.Asset) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createAssetSQL,
		a.AlbumID, a.LowResPath, a.HighResPath, a.LowPrice, a.HighPrice,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("creating asset in album %d: %w", a.AlbumID, err)
	}
	return nil
}

// DeleteAlbum removes an album and its assets. Line items of past orders
// keep their asset ids.
func (r *CatalogRepository) DeleteAlbum(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteAlbumSQL, id)
	if err != nil {
		return fmt.Errorf("deleting album %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanAlbum(row pgx.CollectableRow) (catalog.Album, error) {
	var a catalog.Album
	err := row.Scan(&a.ID, &a.SellerID, &a.Title, &a.Hash, &a.EventDate, &a.CreatedAt)
	return a, err
}

func scanAsset(row pgx.CollectableRow) (catalog.Asset, error) {
	var a catalog.Asset
	err := row.Scan(&a.ID, &a.AlbumID, &a.SellerID, &a.LowResPath, &a.HighResPath, &a.LowPrice, &a.HighPrice)
	return a, err
}
