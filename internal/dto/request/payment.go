package request

import "service-marketplace/internal/data/entity"

type CreatePaymentIntentRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
}

type ConfirmPaymentRequest struct {
	GatewayReference string `json:"gateway_reference" validate:"required,max=255"`
}

// RefundRequest refunds the whole remaining amount when Amount is omitted.
type RefundRequest struct {
	PaymentID string        `json:"payment_id" validate:"required,uuid"`
	Amount    *entity.Money `json:"amount,omitempty"`
	Reason    string        `json:"reason" validate:"max=500"`
}
