package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/seller"
	"github.com/fbccsz/yshpics/internal/storage/assets"
	"github.com/fbccsz/yshpics/internal/storage/postgres"
)

type seedFile struct {
	Sellers []sellerJSON `json:"sellers"`
}

type sellerJSON struct {
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Tier       string      `json:"tier"`
	Credential string      `json:"credential"`
	Albums     []albumJSON `json:"albums"`
}

type albumJSON struct {
	Title     string      `json:"title"`
	Hash      string      `json:"hash"`
	EventDate string      `json:"event_date"`
	Assets    []assetJSON `json:"assets"`
}

type assetJSON struct {
	LowResPath  string              `json:"low_res_path"`
	HighResPath string              `json:"high_res_path"`
	LowPrice    decimal.NullDecimal `json:"low_price"`
	HighPrice   decimal.NullDecimal `json:"high_price"`
	// PreviewFile and OriginalFile are local files copied into the asset
	// directories under the paths above.
	PreviewFile  string `json:"preview_file"`
	OriginalFile string `json:"original_file"`
}

// readSeed parses a seed file, gunzipping it when the name ends in .gz.
func readSeed(path string) (*seedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var seed seedFile
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	for _, s := range seed.Sellers {
		if s.Email == "" {
			return nil, errors.Errorf("seller %q has no email", s.Name)
		}
		for _, a := range s.Albums {
			if a.Hash == "" {
				return nil, errors.Errorf("album %q of %s has no hash", a.Title, s.Email)
			}
		}
	}
	return &seed, nil
}

func seedCmd() *cobra.Command {
	var (
		file       string
		publicDir  string
		privateDir string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sellers, albums and assets from a JSON file",
		Long: `Load sellers, albums and assets from a JSON (or .json.gz) file.

Sellers are matched by email and albums by hash; albums that already exist
are left untouched, so seeding twice is safe. Files named by preview_file and
original_file are copied into the asset directories.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := readSeed(file)
			if err != nil {
				return err
			}
			files, err := assets.Open(publicDir, privateDir)
			if err != nil {
				return errors.Wrap(err, "open asset store")
			}
			defer func() { _ = files.Close() }()

			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := cmd.Context()
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				return errors.Wrap(err, "run migrations")
			}

			s := seeder{
				sellers: postgres.NewSellerRepository(pool),
				catalog: postgres.NewCatalogRepository(pool),
				files:   files,
			}
			if err := postgres.NewStore(pool).WithinTx(ctx, func(ctx context.Context) error {
				return s.seed(ctx, seed)
			}); err != nil {
				return err
			}
			slog.Info("seed completed successfully")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "db/seed/catalog.json", "path to the seed file")
	cmd.Flags().StringVar(&publicDir, "public-dir", "./static", "directory of public previews")
	cmd.Flags().StringVar(&privateDir, "private-dir", "./private", "directory of original photos")
	return cmd
}

type seeder struct {
	sellers *postgres.SellerRepository
	catalog *postgres.CatalogRepository
	files   *assets.Store
}

func (s seeder) seed(ctx context.Context, seed *seedFile) error {
	for _, sj := range seed.Sellers {
		tier := seller.TierStarter
		if sj.Tier != "" {
			t, err := seller.ParseCommissionTier(sj.Tier)
			if err != nil {
				return err
			}
			tier = t
		}
		sel := &seller.Seller{Name: sj.Name, Email: sj.Email, Tier: tier, Credential: sj.Credential}
		if err := s.sellers.Upsert(ctx, sel); err != nil {
			return err
		}
		slog.Info("seller ready", slog.Int64("id", sel.ID), slog.String("email", sel.Email))

		for _, aj := range sj.Albums {
			if err := s.seedAlbum(ctx, sel.ID, aj); err != nil {
				return errors.Wrapf(err, "album %s", aj.Hash)
			}
		}
	}
	return nil
}

func (s seeder) seedAlbum(ctx context.Context, sellerID int64, aj albumJSON) error {
	_, err := s.catalog.GetAlbumByHash(ctx, aj.Hash)
	if err == nil {
		slog.Info("album exists, skipping", slog.String("hash", aj.Hash))
		return nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	album := &catalog.Album{SellerID: sellerID, Title: aj.Title, Hash: aj.Hash}
	if aj.EventDate != "" {
		d, err := time.Parse(time.DateOnly, aj.EventDate)
		if err != nil {
			return errors.Wrap(err, "event date")
		}
		album.EventDate = &d
	}
	if err := s.catalog.CreateAlbum(ctx, album); err != nil {
		return err
	}

	for _, asj := range aj.Assets {
		if err := s.copyFile(catalog.TierLow, asj.PreviewFile, asj.LowResPath); err != nil {
			return err
		}
		if err := s.copyFile(catalog.TierHigh, asj.OriginalFile, asj.HighResPath); err != nil {
			return err
		}
		asset := &catalog.Asset{
			AlbumID:     album.ID,
			LowResPath:  asj.LowResPath,
			HighResPath: asj.HighResPath,
			LowPrice:    asj.LowPrice,
			HighPrice:   asj.HighPrice,
		}
		if err := s.catalog.CreateAsset(ctx, asset); err != nil {
			return err
		}
	}
	slog.Info("album created",
		slog.Int64("id", album.ID),
		slog.String("hash", album.Hash),
		slog.Int("assets", len(aj.Assets)),
	)
	return nil
}

func (s seeder) copyFile(tier catalog.Tier, src, dst string) error {
	if src == "" {
		return nil
	}
	if dst == "" {
		dst = filepath.Base(src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "read %s", src)
	}
	if err := s.files.Write(tier, dst, data); err != nil {
		return errors.Wrapf(err, "store %s", dst)
	}
	return nil
}
