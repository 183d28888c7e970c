package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbccsz/yshpics/internal/domain/order"
)

const seedJSON = `{
  "sellers": [{
    "name": "Ana",
    "email": "ana@example.com",
    "tier": "pro",
    "albums": [{
      "title": "Corrida",
      "hash": "abc123",
      "event_date": "2026-03-01",
      "assets": [{"low_res_path": "a/1.jpg", "high_res_path": "a/1.jpg", "low_price": "5.00", "high_price": "15.00"}]
    }]
  }]
}`

func TestReadSeed(t *testing.T) {
	dir := t.TempDir()

	t.Run("plain", func(t *testing.T) {
		path := filepath.Join(dir, "seed.json")
		require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))

		seed, err := readSeed(path)
		require.NoError(t, err)
		require.Len(t, seed.Sellers, 1)
		s := seed.Sellers[0]
		assert.Equal(t, "ana@example.com", s.Email)
		require.Len(t, s.Albums, 1)
		require.Len(t, s.Albums[0].Assets, 1)
		a := s.Albums[0].Assets[0]
		assert.True(t, a.HighPrice.Valid)
		assert.True(t, decimal.RequireFromString("15").Equal(a.HighPrice.Decimal))
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		gz := pgzip.NewWriter(&buf)
		_, err := gz.Write([]byte(seedJSON))
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		path := filepath.Join(dir, "seed.json.gz")
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

		seed, err := readSeed(path)
		require.NoError(t, err)
		require.Len(t, seed.Sellers, 1)
		assert.Equal(t, "abc123", seed.Sellers[0].Albums[0].Hash)
	})

	t.Run("missing hash", func(t *testing.T) {
		path := filepath.Join(dir, "nohash.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"sellers":[{"email":"a@b.c","albums":[{"title":"x"}]}]}`), 0o600))

		_, err := readSeed(path)
		assert.ErrorContains(t, err, "has no hash")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readSeed(filepath.Join(dir, "nope.json"))
		assert.Error(t, err)
	})
}

func TestWriteSalesCSV(t *testing.T) {
	paidAt := time.Date(2026, 5, 2, 13, 4, 5, 0, time.UTC)
	orders := []order.Order{{
		ID:         "ord-1",
		SellerID:   7,
		BuyerName:  "Bia",
		BuyerEmail: "bia@example.com",
		Total:      decimal.RequireFromString("20"),
		Commission: decimal.RequireFromString("2"),
		PaidAt:     &paidAt,
		Charge:     order.Charge{TransactionID: "998877"},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeSalesCSV(&buf, orders))

	gz, err := pgzip.NewReader(&buf)
	require.NoError(t, err)
	records, err := csv.NewReader(gz).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, salesHeader, records[0])
	assert.Equal(t, []string{
		"ord-1", "2026-05-02T13:04:05Z", "7", "Bia", "bia@example.com",
		"20.00", "2.00", "18.00", "998877",
	}, records[1])
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
