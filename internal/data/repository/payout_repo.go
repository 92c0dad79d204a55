package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PayoutRepository interface {
	Create(ctx context.Context, payout *entity.Payout) error
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Payout, error)
	ListDueIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	Update(ctx context.Context, payout *entity.Payout) error
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*entity.Payout, error)
	CountByProvider(ctx context.Context, providerID uuid.UUID) (int64, error)
}

type payoutRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPayoutRepository(db database.Querier, log *zap.Logger) PayoutRepository {
	return &payoutRepository{
		db:  db,
		log: log.With(zap.String("repository", "payout")),
	}
}

const payoutColumns = `id, provider_id, amount, fees, net_amount, currency, status, payout_method,
		scheduled_date, processed_date, reference, failure_reason, created_at, updated_at`

func scanPayout(row scanner) (*entity.Payout, error) {
	var p entity.Payout
	err := row.Scan(
		&p.ID,
		&p.ProviderID,
		&p.Amount,
		&p.Fees,
		&p.NetAmount,
		&p.Currency,
		&p.Status,
		&p.PayoutMethod,
		&p.ScheduledDate,
		&p.ProcessedDate,
		&p.Reference,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *payoutRepository) Create(ctx context.Context, payout *entity.Payout) error {
	query := `
		INSERT INTO payouts (id, provider_id, amount, fees, net_amount, currency, status, payout_method,
			scheduled_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		payout.ID,
		payout.ProviderID,
		int64(payout.Amount),
		int64(payout.Fees),
		int64(payout.NetAmount),
		payout.Currency,
		string(payout.Status),
		payout.PayoutMethod,
		payout.ScheduledDate,
		payout.CreatedAt,
		payout.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create payout",
			zap.Error(err),
			zap.String("provider_id", payout.ProviderID.String()),
		)
		return fmt.Errorf("create payout for provider %s: %w", payout.ProviderID.String(), err)
	}

	return nil
}

func (r *payoutRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1 FOR UPDATE`

	payout, err := scanPayout(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to lock payout",
			zap.Error(err),
			zap.String("payout_id", id.String()),
		)
		return nil, fmt.Errorf("lock payout %s: %w", id.String(), err)
	}

	return payout, nil
}

func (r *payoutRepository) ListDueIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM payouts
		WHERE status = 'pending' AND scheduled_date <= $1
		ORDER BY scheduled_date, id
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		r.log.Error("Failed to list due payouts", zap.Error(err))
		return nil, fmt.Errorf("list due payouts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan payout id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due payouts: %w", err)
	}

	return ids, nil
}

func (r *payoutRepository) Update(ctx context.Context, payout *entity.Payout) error {
	query := `
		UPDATE payouts
		SET status = $2, scheduled_date = $3, processed_date = $4, reference = $5,
		    failure_reason = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		payout.ID,
		string(payout.Status),
		payout.ScheduledDate,
		payout.ProcessedDate,
		payout.Reference,
		payout.FailureReason,
		payout.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to update payout",
			zap.Error(err),
			zap.String("payout_id", payout.ID.String()),
		)
		return fmt.Errorf("update payout %s: %w", payout.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payout %s not found", payout.ID.String())
	}

	return nil
}

func (r *payoutRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*entity.Payout, error) {
	query := `SELECT ` + payoutColumns + `
		FROM payouts
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, providerID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list provider payouts",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
		)
		return nil, fmt.Errorf("list payouts for provider %s: %w", providerID.String(), err)
	}
	defer rows.Close()

	var payouts []*entity.Payout
	for rows.Next() {
		payout, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		payouts = append(payouts, payout)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payouts: %w", err)
	}

	return payouts, nil
}

func (r *payoutRepository) CountByProvider(ctx context.Context, providerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payouts WHERE provider_id = $1`, providerID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count provider payouts", zap.Error(err))
		return 0, fmt.Errorf("count payouts for provider %s: %w", providerID.String(), err)
	}
	return count, nil
}
