package entity

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// IsActive reports whether the payment occupies its booking's single active slot.
func (s PaymentStatus) IsActive() bool {
	return s == PaymentStatusPending || s == PaymentStatusCompleted
}

type RefundStatus string

const (
	RefundStatusNone    RefundStatus = "none"
	RefundStatusPartial RefundStatus = "partial"
	RefundStatusFull    RefundStatus = "full"
)

// Keys stored in Payment.GatewayMetadata.
const (
	MetaIntentID        = "intent_id"
	MetaFailureReason   = "failure_reason"
	MetaRefundReference = "refund_reference"
	MetaRefundReason    = "refund_reason"
	MetaAmountMismatch  = "amount_mismatch"
)

// GatewayMetadata is opaque gateway data kept alongside a payment.
type GatewayMetadata map[string]string

type Payment struct {
	BaseNoDelete
	BookingID            uuid.UUID       `db:"booking_id"`
	Amount               Money           `db:"amount"`
	Status               PaymentStatus   `db:"payment_status"`
	TransactionReference *string         `db:"transaction_reference"`
	PaidAt               *time.Time      `db:"paid_at"`
	RefundStatus         RefundStatus    `db:"refund_status"`
	RefundAmount         *Money          `db:"refund_amount"`
	PayoutID             *uuid.UUID      `db:"payout_id"`
	GatewayMetadata      GatewayMetadata `db:"gateway_metadata"`
}

func (p *Payment) RefundedAmount() Money {
	if p.RefundAmount == nil {
		return 0
	}
	return *p.RefundAmount
}

// RefundableAmount is what is left of the payment after earlier refunds.
func (p *Payment) RefundableAmount() Money {
	return p.Amount - p.RefundedAmount()
}

func (p *Payment) SetMetadata(key, value string) {
	if p.GatewayMetadata == nil {
		p.GatewayMetadata = GatewayMetadata{}
	}
	p.GatewayMetadata[key] = value
}
