package entity

import (
	"time"

	"github.com/google/uuid"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

type Payout struct {
	BaseNoDelete
	ProviderID    uuid.UUID    `db:"provider_id"`
	Amount        Money        `db:"amount"`
	Fees          Money        `db:"fees"`
	NetAmount     Money        `db:"net_amount"`
	Currency      string       `db:"currency"`
	Status        PayoutStatus `db:"status"`
	PayoutMethod  string       `db:"payout_method"`
	ScheduledDate time.Time    `db:"scheduled_date"`
	ProcessedDate *time.Time   `db:"processed_date"`
	Reference     *string      `db:"reference"`
	FailureReason *string      `db:"failure_reason"`
}

// PayoutMethod is where a provider receives transfers.
type PayoutMethod struct {
	ProviderID  uuid.UUID `db:"provider_id"`
	Method      string    `db:"method"`
	Destination string    `db:"destination"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
