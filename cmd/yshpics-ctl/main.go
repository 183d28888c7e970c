// Command yshpics-ctl is the operator tool for the yshpics store: schema
// migrations, catalog seeding, seller administration and sales exports.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/fbccsz/yshpics/internal/storage/postgres"
)

var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "yshpics-ctl",
		Short:         "Operate the yshpics photo store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (or YSHPICS_DATABASE_URL / DATABASE_URL env)")

	root.AddCommand(
		migrateCmd(),
		seedCmd(),
		sessionCmd(),
		setTierCmd(),
		setCredentialCmd(),
		deleteAlbumCmd(),
		exportSalesCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// connect opens a pool using the --database-url flag or the environment.
func connect(cmd *cobra.Command) (*pgxpool.Pool, error) {
	flagURL, _ := cmd.Flags().GetString("database-url")
	url := firstNonEmpty(flagURL, os.Getenv("YSHPICS_DATABASE_URL"), os.Getenv("DATABASE_URL"))
	if url == "" {
		return nil, errors.New("database URL is required: set --database-url, YSHPICS_DATABASE_URL or DATABASE_URL")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(cmd.Context(), url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	return pool, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			slog.Info("running migrations")
			if err := postgres.RunMigrations(cmd.Context(), pool); err != nil {
				return errors.Wrap(err, "run migrations")
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}
