package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/download"
	"github.com/fbccsz/yshpics/internal/domain/order"
	"github.com/fbccsz/yshpics/internal/domain/seller"
	"github.com/fbccsz/yshpics/internal/identity"
)

var errMalformed = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, body func(e *jx.Encoder)) {
	var e jx.Encoder
	body(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// fail maps a domain error to an HTTP error response. Unknown errors are
// logged and reported as 500 without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		tierErr  *catalog.InvalidTierError
		assetErr *order.AssetNotFoundError
	)
	switch {
	case errors.Is(err, errMalformed),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrBuyerEmailRequired),
		errors.As(err, &tierErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &assetErr),
		errors.Is(err, order.ErrZeroTotal),
		errors.Is(err, order.ErrMixedSellers),
		errors.Is(err, order.ErrSellerNotConfigured):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, identity.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, errOwnerOnly),
		errors.Is(err, order.ErrForbidden),
		errors.Is(err, download.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, seller.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNotRegenerable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrGone),
		errors.Is(err, download.ErrGone):
		writeError(w, http.StatusGone, err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody reads the request body into an object decoder callback.
// Unknown fields must be skipped by fn.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		return errMalformed
	}
	return nil
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		return nil, errMalformed
	}
	return data, nil
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func optMoney(e *jx.Encoder, d decimal.NullDecimal) {
	if !d.Valid {
		e.Null()
		return
	}
	money(e, d.Decimal)
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}
