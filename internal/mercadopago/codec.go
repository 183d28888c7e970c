package mercadopago

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/fbccsz/yshpics/internal/domain/charge"
)

func encodePaymentRequest(req charge.PaymentRequest) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("transaction_amount", func(e *jx.Encoder) {
			e.Num(jx.Num(req.Amount.StringFixed(2)))
		})
		e.Field("description", func(e *jx.Encoder) { e.Str(req.Description) })
		e.Field("payment_method_id", func(e *jx.Encoder) { e.Str("pix") })
		e.Field("external_reference", func(e *jx.Encoder) { e.Str(req.ExternalReference) })
		if !req.ExpiresAt.IsZero() {
			e.Field("date_of_expiration", func(e *jx.Encoder) { e.Str(formatTime(req.ExpiresAt)) })
		}
		if req.NotificationURL != "" {
			e.Field("notification_url", func(e *jx.Encoder) { e.Str(req.NotificationURL) })
		}
		if req.ApplicationFee.Valid {
			e.Field("application_fee", func(e *jx.Encoder) {
				e.Num(jx.Num(req.ApplicationFee.Decimal.StringFixed(2)))
			})
		}
		e.Field("payer", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("email", func(e *jx.Encoder) { e.Str(req.Payer.Email) })
				e.Field("first_name", func(e *jx.Encoder) { e.Str(req.Payer.FirstName) })
				e.Field("last_name", func(e *jx.Encoder) { e.Str(req.Payer.LastName) })
				e.Field("identification", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("type", func(e *jx.Encoder) { e.Str(req.Payer.TaxID.Type) })
						e.Field("number", func(e *jx.Encoder) { e.Str(req.Payer.TaxID.Number) })
					})
				})
			})
		})
	})
	return e.Bytes()
}

func decodePayment(data []byte) (*charge.Payment, error) {
	var p charge.Payment
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			id, err := decodeID(d)
			if err != nil {
				return errors.Wrap(err, "id")
			}
			p.ID = id
		case "status":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "status")
			}
			p.Status = charge.Status(s)
		case "status_detail":
			return decodeOptStr(d, &p.StatusDetail)
		case "external_reference":
			return decodeOptStr(d, &p.ExternalReference)
		case "date_of_expiration":
			var s string
			if err := decodeOptStr(d, &s); err != nil {
				return err
			}
			if s == "" {
				return nil
			}
			t, err := parseTime(s)
			if err != nil {
				return errors.Wrap(err, "date_of_expiration")
			}
			p.ExpiresAt = t
		case "point_of_interaction":
			return decodePointOfInteraction(d, &p)
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("payment without id")
	}
	return &p, nil
}

func decodePointOfInteraction(d *jx.Decoder, p *charge.Payment) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "transaction_data" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "qr_code":
				return decodeOptStr(d, &p.CopyPasteCode)
			case "qr_code_base64":
				return decodeOptStr(d, &p.QRCodeImage)
			default:
				return d.Skip()
			}
		})
	})
}

// decodeID accepts the numeric ids the API uses as well as string ids.
func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.String:
		return d.Str()
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}

func decodeOptStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

// decodeErrorMessage extracts a readable message from an API error body.
func decodeErrorMessage(data []byte) string {
	var msg, code string
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "message":
			return decodeOptStr(d, &msg)
		case "error":
			return decodeOptStr(d, &code)
		default:
			return d.Skip()
		}
	})
	switch {
	case err != nil || (msg == "" && code == ""):
		if len(data) > 200 {
			data = data[:200]
		}
		return string(data)
	case msg == "":
		return code
	default:
		return msg
	}
}
