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

type ServiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Service, error)
}

type serviceRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewServiceRepository(db database.Querier, log *zap.Logger) ServiceRepository {
	return &serviceRepository{
		db:  db,
		log: log.With(zap.String("repository", "service")),
	}
}

func (r *serviceRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Service, error) {
	query := `
		SELECT id, provider_id, name, price, duration_minutes, is_active, created_at, updated_at
		FROM services
		WHERE id = $1
	`

	var s entity.Service
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.ProviderID,
		&s.Name,
		&s.Price,
		&s.DurationMinutes,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find service by ID",
			zap.Error(err),
			zap.String("service_id", id.String()),
		)
		return nil, fmt.Errorf("find service by ID %s: %w", id.String(), err)
	}

	return &s, nil
}
