package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/fbccsz/yshpics/internal/domain/charge"
)

// NotificationTypePayment is the only notification type acted upon.
const NotificationTypePayment = "payment"

// Notification is a processor webhook delivery. Its content is a hint only:
// the payment state is always re-read from the processor.
type Notification struct {
	Type      string
	PaymentID string
}

// HandleNotification reconciles an order with the processor after a
// webhook delivery. Deliveries for payments no order issued and repeated
// deliveries for paid orders are no-ops. An error means the processor could not be
// consulted and the delivery should be retried.
func (s *Service) HandleNotification(ctx context.Context, n Notification) error {
	lg := zctx.From(ctx).With(zap.String("payment_id", n.PaymentID))

	if n.Type != NotificationTypePayment || n.PaymentID == "" {
		lg.Debug("Ignoring notification", zap.String("type", n.Type))
		return nil
	}
	// The index only knows charges issued by this process, so a miss still
	// goes to storage.
	indexed := s.index == nil || s.index.MayContain(n.PaymentID)

	o, err := s.orders.FindByTransactionID(ctx, n.PaymentID)
	if errors.Is(err, ErrNotFound) {
		lg.Info("No order for notified payment", zap.Bool("indexed", indexed))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find order: %w", err)
	}
	if !indexed {
		lg.Info("Payment missing from transaction index", zap.String("order_id", o.ID))
		s.index.Add(n.PaymentID)
	}
	if o.Status == StatusPaid {
		return nil
	}

	sel, err := s.sellers.Get(ctx, o.SellerID)
	if err != nil {
		return fmt.Errorf("get seller %d: %w", o.SellerID, err)
	}
	p, err := s.payments.GetPayment(ctx, sel.Credential, n.PaymentID)
	if err != nil {
		return fmt.Errorf("query payment %s: %w", n.PaymentID, err)
	}

	lg = lg.With(zap.String("order_id", o.ID), zap.String("status", string(p.Status)))
	switch p.Status {
	case charge.StatusApproved:
		ok, err := s.transition(ctx, o, StatusPaid)
		if err != nil {
			return err
		}
		if !ok {
			lg.Info("Order already settled")
		}
	case charge.StatusCancelled, charge.StatusExpired, charge.StatusRejected:
		// A lapsed earlier charge must not expire a regenerated one.
		if o.Charge.TransactionID != n.PaymentID {
			return nil
		}
		if _, err := s.transition(ctx, o, StatusExpired); err != nil {
			return err
		}
	default:
		lg.Debug("Payment not final")
	}
	return nil
}
