package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/jx"

	"github.com/fbccsz/yshpics/internal/domain/order"
	"github.com/fbccsz/yshpics/internal/domain/seller"
	"github.com/fbccsz/yshpics/internal/identity"
)

// SetCredential handles PUT /api/seller/credential: {"credential": "APP_USR-..."}.
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var credential string
	err := h.decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "credential" {
			return d.Skip()
		}
		v, err := d.Str()
		credential = strings.TrimSpace(v)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if credential == "" {
		writeError(w, http.StatusBadRequest, "credential required")
		return
	}

	id, _ := identity.SellerFromContext(r.Context())
	if err := h.sellers.SetCredential(r.Context(), id, credential); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SellerSummary handles GET /api/seller/summary.
func (h *Handler) SellerSummary(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.SellerFromContext(r.Context())
	h.writeSummary(w, r, &id)
}

// OwnerSummary handles GET /api/owner/summary across all sellers.
func (h *Handler) OwnerSummary(w http.ResponseWriter, r *http.Request) {
	h.writeSummary(w, r, nil)
}

func (h *Handler) writeSummary(w http.ResponseWriter, r *http.Request, sellerID *int64) {
	sum, err := h.orders.Summary(r.Context(), sellerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSummary(e, sum)
	})
}

func encodeSummary(e *jx.Encoder, sum order.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("paid_orders", func(e *jx.Encoder) { e.Int64(sum.PaidOrders) })
		e.Field("gross", func(e *jx.Encoder) { money(e, sum.Gross) })
		e.Field("commission", func(e *jx.Encoder) { money(e, sum.Commission) })
		e.Field("net", func(e *jx.Encoder) { money(e, sum.Net) })
	})
}

// SetTier handles PUT /api/owner/sellers/{id}/tier: {"tier": "pro"}.
func (h *Handler) SetTier(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid seller id")
		return
	}

	var raw string
	err = h.decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "tier" {
			return d.Skip()
		}
		v, err := d.Str()
		raw = v
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	tier, err := seller.ParseCommissionTier(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sellers.SetTier(r.Context(), id, tier); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
