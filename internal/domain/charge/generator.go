package charge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds charge generation settings.
type Config struct {
	// TTL is how long a created charge stays payable.
	TTL time.Duration
	// Description prefixes the charge description shown to the payer.
	Description string
}

// Generator creates charges at the processor. It never returns an error:
// every failure is reported through Result.
type Generator struct {
	processor Processor
	taxIDs    TaxIDSource
	cfg       Config
	tracer    trace.Tracer

	now    func() time.Time
	newKey func() string
}

// NewGenerator creates a Generator.
func NewGenerator(processor Processor, taxIDs TaxIDSource, cfg Config, tp trace.TracerProvider) *Generator {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Description == "" {
		cfg.Description = "Compra de Fotos"
	}
	return &Generator{
		processor: processor,
		taxIDs:    taxIDs,
		cfg:       cfg,
		tracer:    tp.Tracer("github.com/fbccsz/yshpics/internal/domain/charge"),
		now:       time.Now,
		newKey:    uuid.NewString,
	}
}

// Create requests a PIX charge for req.
//
// When req.Commission is positive the first attempt carries it as an
// application fee. If the processor rejects that attempt, the charge is
// retried once without the fee and SplitApplied is false. Transport faults
// are not retried.
func (g *Generator) Create(ctx context.Context, req Request) Result {
	ctx, span := g.tracer.Start(ctx, "charge.Create",
		trace.WithAttributes(
			attribute.String("order.id", req.OrderID),
			attribute.String("charge.amount", req.Amount.StringFixed(2)),
		),
	)
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("order_id", req.OrderID))

	if !req.Amount.IsPositive() {
		return failure("charge amount must be greater than zero")
	}
	if req.SellerCredential == "" {
		return failure("seller is not configured to receive payments")
	}

	first, last := splitName(req.BuyerName)
	payment := PaymentRequest{
		Amount:            req.Amount.Round(2),
		Description:       fmt.Sprintf("%s - Pedido #%s", g.cfg.Description, req.OrderID),
		ExternalReference: req.OrderID,
		ExpiresAt:         g.now().Add(g.cfg.TTL),
		NotificationURL:   req.NotificationURL,
		Payer: Payer{
			Email:     payerEmail(req.BuyerEmail, req.OrderID),
			FirstName: first,
			LastName:  last,
			TaxID:     g.taxIDs.TaxID(),
		},
	}

	split := req.Commission.IsPositive()
	if split {
		payment.ApplicationFee = decimal.NewNullDecimal(req.Commission.Round(2))
	}

	p, err := g.attempt(ctx, req.SellerCredential, payment)
	var rejected *RejectedError
	if split && errors.As(err, &rejected) {
		lg.Warn("Charge with commission rejected, retrying without split", zap.Error(err))
		span.AddEvent("split rejected")

		payment.ApplicationFee = decimal.NullDecimal{}
		split = false
		p, err = g.attempt(ctx, req.SellerCredential, payment)
	}
	if err != nil {
		lg.Error("Charge creation failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "charge failed")
		return failure("%s", err.Error())
	}

	expiresAt := p.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = payment.ExpiresAt
	}
	span.SetAttributes(
		attribute.String("charge.transaction_id", p.ID),
		attribute.Bool("charge.split_applied", split),
	)
	lg.Info("Charge created",
		zap.String("transaction_id", p.ID),
		zap.Bool("split_applied", split),
	)

	return Result{
		Success:       true,
		TransactionID: p.ID,
		CopyPasteCode: p.CopyPasteCode,
		QRCodeImage:   p.QRCodeImage,
		ExpiresAt:     expiresAt,
		SplitApplied:  split,
	}
}

// attempt performs one creation call under a fresh idempotency key.
func (g *Generator) attempt(ctx context.Context, credential string, req PaymentRequest) (*Payment, error) {
	p, err := g.processor.CreatePayment(ctx, credential, req, g.newKey())
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, &RejectedError{Status: p.Status, Message: p.StatusDetail}
	}
	return p, nil
}
