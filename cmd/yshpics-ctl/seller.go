package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/fbccsz/yshpics/internal/domain/seller"
	"github.com/fbccsz/yshpics/internal/identity"
	"github.com/fbccsz/yshpics/internal/storage/postgres"
)

func sessionCmd() *cobra.Command {
	var (
		sellerID int64
		secret   string
	)
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Issue a session token for a seller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret = firstNonEmpty(secret, os.Getenv("YSHPICS_SESSION_SECRET"))
			if len(secret) < 32 {
				return errors.New("session secret must be at least 32 bytes: set --session-secret or YSHPICS_SESSION_SECRET")
			}

			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			s, err := postgres.NewSellerRepository(pool).Get(cmd.Context(), sellerID)
			if err != nil {
				return errors.Wrapf(err, "seller %d", sellerID)
			}
			slog.Info("issuing session", slog.Int64("seller_id", s.ID), slog.String("email", s.Email))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), identity.NewSessions([]byte(secret)).Sign(s.ID))
			return err
		},
	}
	cmd.Flags().Int64Var(&sellerID, "seller-id", 0, "seller to sign in as")
	cmd.Flags().StringVar(&secret, "session-secret", "", "HMAC secret shared with the API server")
	_ = cmd.MarkFlagRequired("seller-id")
	return cmd
}

func setTierCmd() *cobra.Command {
	var (
		sellerID int64
		tier     string
	)
	cmd := &cobra.Command{
		Use:   "set-tier",
		Short: "Move a seller to the starter or pro plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := seller.ParseCommissionTier(tier)
			if err != nil {
				return err
			}
			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.NewSellerRepository(pool).SetTier(cmd.Context(), sellerID, t); err != nil {
				return errors.Wrapf(err, "seller %d", sellerID)
			}
			slog.Info("tier updated", slog.Int64("seller_id", sellerID), slog.String("tier", string(t)))
			return nil
		},
	}
	cmd.Flags().Int64Var(&sellerID, "seller-id", 0, "seller to update")
	cmd.Flags().StringVar(&tier, "tier", "", "commission tier: starter or pro")
	_ = cmd.MarkFlagRequired("seller-id")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}

func setCredentialCmd() *cobra.Command {
	var (
		sellerID   int64
		credential string
	)
	cmd := &cobra.Command{
		Use:   "set-credential",
		Short: "Store a seller's payment processor credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			credential = strings.TrimSpace(credential)
			if credential == "" {
				return errors.New("credential must not be empty")
			}
			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.NewSellerRepository(pool).SetCredential(cmd.Context(), sellerID, credential); err != nil {
				return errors.Wrapf(err, "seller %d", sellerID)
			}
			slog.Info("credential updated", slog.Int64("seller_id", sellerID))
			return nil
		},
	}
	cmd.Flags().Int64Var(&sellerID, "seller-id", 0, "seller to update")
	cmd.Flags().StringVar(&credential, "credential", "", "Mercado Pago access token")
	_ = cmd.MarkFlagRequired("seller-id")
	_ = cmd.MarkFlagRequired("credential")
	return cmd
}

func deleteAlbumCmd() *cobra.Command {
	var hash string
	cmd := &cobra.Command{
		Use:   "delete-album",
		Short: "Remove an album and its assets from the catalog",
		Long: `Remove an album and its assets from the catalog.

Past orders keep their line items; files on disk are left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewCatalogRepository(pool)
			album, err := repo.GetAlbumByHash(cmd.Context(), hash)
			if err != nil {
				return errors.Wrapf(err, "album %s", hash)
			}
			if err := repo.DeleteAlbum(cmd.Context(), album.ID); err != nil {
				return err
			}
			slog.Info("album deleted",
				slog.Int64("id", album.ID),
				slog.String("hash", hash),
				slog.Int("assets", len(album.Assets)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "public hash of the album")
	_ = cmd.MarkFlagRequired("hash")
	return cmd
}
