package repository

import (
	"context"
	"errors"
	"fmt"

	"service-marketplace/internal/data/entity"
	"service-marketplace/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PayoutMethodRepository interface {
	FindActiveByProvider(ctx context.Context, providerID uuid.UUID) (*entity.PayoutMethod, error)
}

type payoutMethodRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPayoutMethodRepository(db database.Querier, log *zap.Logger) PayoutMethodRepository {
	return &payoutMethodRepository{
		db:  db,
		log: log.With(zap.String("repository", "payout_method")),
	}
}

func (r *payoutMethodRepository) FindActiveByProvider(ctx context.Context, providerID uuid.UUID) (*entity.PayoutMethod, error) {
	query := `
		SELECT provider_id, method, destination, is_active, created_at, updated_at
		FROM provider_payout_methods
		WHERE provider_id = $1 AND is_active = TRUE
	`

	var m entity.PayoutMethod
	err := r.db.QueryRow(ctx, query, providerID).Scan(
		&m.ProviderID,
		&m.Method,
		&m.Destination,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payout method",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
		)
		return nil, fmt.Errorf("find payout method for provider %s: %w", providerID.String(), err)
	}

	return &m, nil
}
