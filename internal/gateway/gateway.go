// Package gateway hides the external payment provider behind a small interface.
package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDeclined marks a definitive refusal by the provider, as opposed to a
// timeout or transport failure whose outcome is unknown.
var ErrDeclined = errors.New("gateway declined the request")

type IntentRequest struct {
	PaymentID uuid.UUID
	BookingID uuid.UUID
	Amount    int64
	Currency  string
}

type Intent struct {
	Reference    string
	ClientSecret string
}

type RefundRequest struct {
	PaymentReference string
	Amount           int64
	Reason           string
}

type RefundResult struct {
	Reference string
}

type TransferRequest struct {
	PayoutID    uuid.UUID
	Method      string
	Destination string
	Amount      int64
	Currency    string
}

type TransferResult struct {
	Reference string
}

// Gateway is the payment provider. Amounts are in minor currency units.
// Implementations must return promptly once ctx is done.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}

// IsOutcomeUnknown reports whether err leaves the provider-side result undetermined.
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
