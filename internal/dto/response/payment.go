package response

import (
	"time"

	"service-marketplace/internal/data/entity"
)

type PaymentResponse struct {
	ID                   string               `json:"id"`
	BookingID            string               `json:"booking_id"`
	Amount               entity.Money         `json:"amount"`
	Status               entity.PaymentStatus `json:"status"`
	TransactionReference *string              `json:"transaction_reference,omitempty"`
	PaidAt               *time.Time           `json:"paid_at,omitempty"`
	RefundStatus         entity.RefundStatus  `json:"refund_status"`
	RefundAmount         *entity.Money        `json:"refund_amount,omitempty"`
	PayoutID             *string              `json:"payout_id,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

type PaymentIntentResponse struct {
	PaymentID    string               `json:"payment_id"`
	ClientSecret string               `json:"client_secret,omitempty"`
	Reference    string               `json:"reference,omitempty"`
	Amount       entity.Money         `json:"amount"`
	Status       entity.PaymentStatus `json:"status"`
}

type RefundResponse struct {
	Payment       *PaymentResponse     `json:"payment"`
	BookingStatus entity.BookingStatus `json:"booking_status"`
	Refunded      entity.Money         `json:"refunded"`
	Reference     string               `json:"reference,omitempty"`
}

func PaymentToResponse(p *entity.Payment) *PaymentResponse {
	resp := &PaymentResponse{
		ID:                   p.ID.String(),
		BookingID:            p.BookingID.String(),
		Amount:               p.Amount,
		Status:               p.Status,
		TransactionReference: p.TransactionReference,
		PaidAt:               p.PaidAt,
		RefundStatus:         p.RefundStatus,
		RefundAmount:         p.RefundAmount,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if p.PayoutID != nil {
		id := p.PayoutID.String()
		resp.PayoutID = &id
	}
	return resp
}
