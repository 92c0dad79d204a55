package entity

import "time"

type WebhookEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	Reference   string    `db:"reference"`
	ProcessedAt time.Time `db:"processed_at"`
}
