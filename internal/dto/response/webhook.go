package response

type WebhookAck struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Outcome   string `json:"outcome"`
	PaymentID string `json:"payment_id,omitempty"`
}
