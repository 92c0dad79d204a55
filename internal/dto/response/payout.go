package response

import (
	"time"

	"service-marketplace/internal/data/entity"
)

type PayoutResponse struct {
	ID            string              `json:"id"`
	ProviderID    string              `json:"provider_id"`
	Amount        entity.Money        `json:"amount"`
	Fees          entity.Money        `json:"fees"`
	NetAmount     entity.Money        `json:"net_amount"`
	Currency      string              `json:"currency"`
	Status        entity.PayoutStatus `json:"status"`
	PayoutMethod  string              `json:"payout_method"`
	ScheduledDate time.Time           `json:"scheduled_date"`
	ProcessedDate *time.Time          `json:"processed_date,omitempty"`
	Reference     *string             `json:"reference,omitempty"`
	FailureReason *string             `json:"failure_reason,omitempty"`
	PaymentCount  int                 `json:"payment_count,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// PayoutResult is one line of a ProcessDue report.
type PayoutResult struct {
	PayoutID  string              `json:"payout_id"`
	Status    entity.PayoutStatus `json:"status"`
	Reference string              `json:"reference,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type ProcessReport struct {
	Processed int            `json:"processed"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Results   []PayoutResult `json:"results"`
}

type ScheduleReport struct {
	Payouts          []*PayoutResponse `json:"payouts"`
	SkippedProviders []string          `json:"skipped_providers,omitempty"`
}

func PayoutToResponse(p *entity.Payout) *PayoutResponse {
	return &PayoutResponse{
		ID:            p.ID.String(),
		ProviderID:    p.ProviderID.String(),
		Amount:        p.Amount,
		Fees:          p.Fees,
		NetAmount:     p.NetAmount,
		Currency:      p.Currency,
		Status:        p.Status,
		PayoutMethod:  p.PayoutMethod,
		ScheduledDate: p.ScheduledDate,
		ProcessedDate: p.ProcessedDate,
		Reference:     p.Reference,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
	}
}
