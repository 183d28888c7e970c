package main

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/spf13/cobra"

	"github.com/fbccsz/yshpics/internal/domain/order"
	"github.com/fbccsz/yshpics/internal/storage/postgres"
)

var salesHeader = []string{
	"order_id", "paid_at", "seller_id", "buyer_name", "buyer_email",
	"total", "commission", "net", "transaction_id",
}

// writeSalesCSV writes one gzip-compressed CSV row per paid order.
func writeSalesCSV(w io.Writer, orders []order.Order) error {
	gz := pgzip.NewWriter(w)
	cw := csv.NewWriter(gz)

	if err := cw.Write(salesHeader); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, o := range orders {
		paidAt := ""
		if o.PaidAt != nil {
			paidAt = o.PaidAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			o.ID,
			paidAt,
			strconv.FormatInt(o.SellerID, 10),
			o.BuyerName,
			o.BuyerEmail,
			o.Total.StringFixed(2),
			o.Commission.StringFixed(2),
			o.Total.Sub(o.Commission).StringFixed(2),
			o.Charge.TransactionID,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write order %s", o.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip")
	}
	return nil
}

func exportSalesCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-sales",
		Short: "Export paid orders as gzip-compressed CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			orders, err := postgres.NewOrderRepository(pool).ListPaid(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return errors.Wrapf(err, "create %s", out)
			}
			if err := writeSalesCSV(f, orders); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrapf(err, "close %s", out)
			}
			slog.Info("sales exported", slog.String("file", out), slog.Int("orders", len(orders)))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "sales.csv.gz", "output file")
	return cmd
}
