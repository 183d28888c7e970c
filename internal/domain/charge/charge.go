// Package charge creates PIX charges at the payment processor on behalf of a
// seller, optionally withholding a platform commission.
package charge

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the processor-side state of a payment.
type Status string

// Processor payment statuses.
const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusAuthorized Status = "authorized"
	StatusInProcess  Status = "in_process"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusExpired    Status = "expired"
)

// TaxID is a payer's national tax identification.
type TaxID struct {
	Type   string
	Number string
}

// Payer identifies who pays the charge.
type Payer struct {
	Email     string
	FirstName string
	LastName  string
	TaxID     TaxID
}

// PaymentRequest is the processor-facing description of a PIX charge.
type PaymentRequest struct {
	Amount            decimal.Decimal
	Description       string
	ExternalReference string
	ExpiresAt         time.Time
	NotificationURL   string
	// ApplicationFee is withheld from the seller's settlement and routed to
	// the platform. Invalid means no split.
	ApplicationFee decimal.NullDecimal
	Payer          Payer
}

// Payment is the processor's view of a charge.
type Payment struct {
	ID                string
	Status            Status
	StatusDetail      string
	ExternalReference string
	CopyPasteCode     string
	QRCodeImage       string
	ExpiresAt         time.Time
}

// Processor is the external payment processor. Every call is scoped to the
// seller's own credential.
type Processor interface {
	CreatePayment(ctx context.Context, credential string, req PaymentRequest, idempotencyKey string) (*Payment, error)
	GetPayment(ctx context.Context, credential, paymentID string) (*Payment, error)
}

// RejectedError means the processor answered but refused the charge.
// Any other error from a Processor is a transport fault.
type RejectedError struct {
	StatusCode int
	Status     Status
	Message    string
}

func (e *RejectedError) Error() string {
	switch {
	case e.Status != "":
		return fmt.Sprintf("processor rejected charge: status %s: %s", e.Status, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("processor rejected charge: http %d: %s", e.StatusCode, e.Message)
	default:
		return "processor rejected charge: " + e.Message
	}
}

// Request holds the input for creating a charge.
type Request struct {
	Amount           decimal.Decimal
	BuyerEmail       string
	BuyerName        string
	OrderID          string
	SellerCredential string
	// Commission is the platform fee to withhold. Zero disables the split.
	Commission      decimal.Decimal
	NotificationURL string
}

// Result is the normalized outcome of a charge attempt. When Success is
// false only ErrorMessage is set.
type Result struct {
	Success       bool
	TransactionID string
	CopyPasteCode string
	QRCodeImage   string
	ExpiresAt     time.Time
	// SplitApplied reports whether the successful attempt carried the commission.
	SplitApplied bool
	ErrorMessage string
}

func failure(format string, args ...any) Result {
	return Result{ErrorMessage: fmt.Sprintf(format, args...)}
}
