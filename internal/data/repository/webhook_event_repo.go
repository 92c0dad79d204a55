package repository

import (
	"context"
	"fmt"

	"service-marketplace/internal/data/entity"
	"service-marketplace/pkg/database"

	"go.uber.org/zap"
)

type WebhookEventRepository interface {
	// MarkProcessed records the event and reports whether it was new.
	MarkProcessed(ctx context.Context, event *entity.WebhookEvent) (bool, error)
}

type webhookEventRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewWebhookEventRepository(db database.Querier, log *zap.Logger) WebhookEventRepository {
	return &webhookEventRepository{
		db:  db,
		log: log.With(zap.String("repository", "webhook_event")),
	}
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, event *entity.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, reference, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query, event.EventID, event.EventType, event.Reference, event.ProcessedAt)
	if err != nil {
		r.log.Error("Failed to record webhook event",
			zap.Error(err),
			zap.String("event_id", event.EventID),
		)
		return false, fmt.Errorf("record webhook event %s: %w", event.EventID, err)
	}

	return result.RowsAffected() == 1, nil
}
