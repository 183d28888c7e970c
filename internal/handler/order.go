package handler

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/order"
)

// CreateOrder handles POST /api/orders:
//
//	{"buyer_name": "...", "buyer_email": "...", "items": [{"asset_id": 1, "tier": "high"}]}
//
// A processor failure still leaves a cancelled order behind, reported as
// 502 together with its id so the buyer can retry the charge.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var (
		req   order.CreateOrderRequest
		tiers []string
	)
	err := h.decodeBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "buyer_name":
			v, err := d.Str()
			req.BuyerName = v
			return err
		case "buyer_email":
			v, err := d.Str()
			req.BuyerEmail = v
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, tier, err := decodeItem(d)
				req.Items = append(req.Items, item)
				tiers = append(tiers, tier)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	for i, raw := range tiers {
		if req.Items[i].Tier, err = catalog.ParseTier(raw); err != nil {
			fail(w, r, err)
			return
		}
	}

	o, err := h.orders.CreateOrder(r.Context(), req)
	var chargeErr *order.ChargeFailedError
	if errors.As(err, &chargeErr) {
		writeJSON(w, http.StatusBadGateway, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusBadGateway) })
				e.Field("message", func(e *jx.Encoder) { e.Str(chargeErr.Message) })
				e.Field("order_id", func(e *jx.Encoder) { e.Str(chargeErr.OrderID) })
			})
		})
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
			e.Field("total", func(e *jx.Encoder) { money(e, o.Total) })
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range o.Items {
						e.Obj(func(e *jx.Encoder) {
							e.Field("asset_id", func(e *jx.Encoder) { e.Int64(it.AssetID) })
							e.Field("tier", func(e *jx.Encoder) { e.Str(string(it.Tier)) })
							e.Field("price", func(e *jx.Encoder) { money(e, it.PriceCharged) })
						})
					}
				})
			})
			e.Field("charge", func(e *jx.Encoder) { encodeCharge(e, o.Charge.TransactionID, o.Charge.CopyPasteCode, o.Charge.QRCodeImage, h.orders.Deadline(o)) })
			e.Field("payment_url", func(e *jx.Encoder) { e.Str(h.baseURL + "/api/orders/" + o.ID + "/payment") })
		})
	})
}

func decodeItem(d *jx.Decoder) (item order.ItemRequest, tier string, err error) {
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "asset_id":
			v, err := d.Int64()
			item.AssetID = v
			return err
		case "tier":
			v, err := d.Str()
			tier = v
			return err
		default:
			return d.Skip()
		}
	})
	return item, tier, err
}

func encodeCharge(e *jx.Encoder, txID, code, qr string, expires time.Time) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("transaction_id", func(e *jx.Encoder) { e.Str(txID) })
		e.Field("copy_paste_code", func(e *jx.Encoder) { e.Str(code) })
		e.Field("qr_code_base64", func(e *jx.Encoder) { e.Str(qr) })
		e.Field("expires_at", func(e *jx.Encoder) { timestamp(e, expires) })
	})
}

// OrderStatus handles GET /api/orders/{id}/status. Payment pages poll it.
func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.orders.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
		})
	})
}

// OrderPayment handles GET /api/orders/{id}/payment. A pending order shows
// its charge; a paid one shows the download link.
func (h *Handler) OrderPayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.PaymentView(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
			e.Field("total", func(e *jx.Encoder) { money(e, o.Total) })
			e.Field("buyer_name", func(e *jx.Encoder) { e.Str(o.BuyerName) })
			if o.Status == order.StatusPaid {
				if o.PaidAt != nil {
					e.Field("paid_at", func(e *jx.Encoder) { timestamp(e, *o.PaidAt) })
				}
				e.Field("download_url", func(e *jx.Encoder) { e.Str(h.downloadURL(o.DownloadToken)) })
				return
			}
			e.Field("charge", func(e *jx.Encoder) {
				encodeCharge(e, o.Charge.TransactionID, o.Charge.CopyPasteCode, o.Charge.QRCodeImage, h.orders.Deadline(o))
			})
		})
	})
}

// RegenerateCharge handles POST /api/orders/{id}/charge.
func (h *Handler) RegenerateCharge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.orders.RegenerateCharge(r.Context(), id)
	var chargeErr *order.ChargeFailedError
	if errors.As(err, &chargeErr) {
		writeError(w, http.StatusBadGateway, chargeErr.Message)
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(id) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(order.StatusPending)) })
			e.Field("split_applied", func(e *jx.Encoder) { e.Bool(res.SplitApplied) })
			e.Field("charge", func(e *jx.Encoder) {
				encodeCharge(e, res.TransactionID, res.CopyPasteCode, res.QRCodeImage, res.ExpiresAt)
			})
		})
	})
}

// PaymentNotification handles POST /api/webhooks/mercadopago:
//
//	{"type": "payment", "data": {"id": "123"}}
//
// Older deliveries carry type and data.id as query parameters instead.
// Only invalid JSON is refused: any other shape is acknowledged, with the
// fields it lacks left empty. 500 asks the processor to retry.
func (h *Handler) PaymentNotification(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	n := order.Notification{
		Type:      r.URL.Query().Get("type"),
		PaymentID: r.URL.Query().Get("data.id"),
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if !jx.Valid(data) {
			fail(w, r, errMalformed)
			return
		}
		if err := decodeNotification(jx.DecodeBytes(data), &n); err != nil {
			fail(w, r, errMalformed)
			return
		}
	}

	if err := h.orders.HandleNotification(r.Context(), n); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("received", func(e *jx.Encoder) { e.Bool(true) })
		})
	})
}

// decodeNotification fills n from a valid JSON document, ignoring values
// of unexpected types.
func decodeNotification(d *jx.Decoder, n *order.Notification) error {
	if d.Next() != jx.Object {
		return d.Skip()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch {
		case key == "type" && d.Next() == jx.String:
			v, err := d.Str()
			n.Type = v
			return err
		case key == "data" && d.Next() == jx.Object:
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "id" {
					return d.Skip()
				}
				v, err := notificationID(d)
				if v != "" {
					n.PaymentID = v
				}
				return err
			})
		default:
			return d.Skip()
		}
	})
}

// notificationID accepts the payment id as a JSON string or number.
func notificationID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		return strings.TrimSpace(s), err
	case jx.Number:
		n, err := d.Num()
		return n.String(), err
	default:
		return "", d.Skip()
	}
}
