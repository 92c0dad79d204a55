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

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
	FindByReference(ctx context.Context, reference string) (*entity.Payment, error)
	// FindActiveByBookingIDForUpdate returns the booking's pending or completed payment, locked.
	FindActiveByBookingIDForUpdate(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error)
	Update(ctx context.Context, payment *entity.Payment) error

	// Payout batching. A payment is eligible when it is completed, not yet linked
	// to a payout and was paid no later than paidBefore.
	ListEligibleProviderIDs(ctx context.Context, paidBefore time.Time) ([]uuid.UUID, error)
	ListEligibleByProviderForUpdate(ctx context.Context, providerID uuid.UUID, paidBefore time.Time) ([]*entity.Payment, error)
	// LinkPayout sets payout_id on the given payments that are still unlinked and
	// completed, and returns how many rows it changed.
	LinkPayout(ctx context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) (int64, error)
}

type paymentRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPaymentRepository(db database.Querier, log *zap.Logger) PaymentRepository {
	return &paymentRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment")),
	}
}

const paymentColumns = `p.id, p.booking_id, p.amount, p.payment_status, p.transaction_reference, p.paid_at,
		p.refund_status, p.refund_amount, p.payout_id, p.gateway_metadata, p.created_at, p.updated_at`

func scanPayment(row scanner) (*entity.Payment, error) {
	var p entity.Payment
	err := row.Scan(
		&p.ID,
		&p.BookingID,
		&p.Amount,
		&p.Status,
		&p.TransactionReference,
		&p.PaidAt,
		&p.RefundStatus,
		&p.RefundAmount,
		&p.PayoutID,
		&p.GatewayMetadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func refundAmountArg(p *entity.Payment) *int64 {
	if p.RefundAmount == nil {
		return nil
	}
	v := int64(*p.RefundAmount)
	return &v
}

func metadataArg(p *entity.Payment) entity.GatewayMetadata {
	if p.GatewayMetadata == nil {
		return entity.GatewayMetadata{}
	}
	return p.GatewayMetadata
}

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (id, booking_id, amount, payment_status, transaction_reference, paid_at,
			refund_status, refund_amount, payout_id, gateway_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.BookingID,
		int64(payment.Amount),
		string(payment.Status),
		payment.TransactionReference,
		payment.PaidAt,
		string(payment.RefundStatus),
		refundAmountArg(payment),
		payment.PayoutID,
		metadataArg(payment),
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	if err != nil {
		if database.IsUniqueViolation(err) {
			r.log.Warn("Active payment already exists",
				zap.String("booking_id", payment.BookingID.String()))
		} else {
			r.log.Error("Failed to create payment",
				zap.Error(err),
				zap.String("booking_id", payment.BookingID.String()),
			)
		}
		return fmt.Errorf("create payment for booking %s: %w", payment.BookingID.String(), err)
	}

	return nil
}

func (r *paymentRepository) findOne(ctx context.Context, op, where string, arg any) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments p WHERE ` + where

	payment, err := scanPayment(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to "+op,
			zap.Error(err),
			zap.Any("key", arg),
		)
		return nil, fmt.Errorf("%s %v: %w", op, arg, err)
	}

	return payment, nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	return r.findOne(ctx, "find payment by ID", `p.id = $1`, id)
}

func (r *paymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	return r.findOne(ctx, "lock payment by ID", `p.id = $1 FOR UPDATE`, id)
}

func (r *paymentRepository) FindByReference(ctx context.Context, reference string) (*entity.Payment, error) {
	return r.findOne(ctx, "find payment by reference", `p.transaction_reference = $1`, reference)
}

func (r *paymentRepository) FindActiveByBookingIDForUpdate(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	return r.findOne(ctx, "lock active payment by booking",
		`p.booking_id = $1 AND p.payment_status IN ('pending', 'completed') FOR UPDATE`, bookingID)
}

func (r *paymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments
		SET payment_status = $2, transaction_reference = $3, paid_at = $4, refund_status = $5,
		    refund_amount = $6, gateway_metadata = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		payment.ID,
		string(payment.Status),
		payment.TransactionReference,
		payment.PaidAt,
		string(payment.RefundStatus),
		refundAmountArg(payment),
		metadataArg(payment),
		payment.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to update payment",
			zap.Error(err),
			zap.String("payment_id", payment.ID.String()),
		)
		return fmt.Errorf("update payment %s: %w", payment.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment %s not found", payment.ID.String())
	}

	return nil
}

func (r *paymentRepository) ListEligibleProviderIDs(ctx context.Context, paidBefore time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT b.provider_id
		FROM payments p
		JOIN bookings b ON b.id = p.booking_id
		WHERE p.payment_status = 'completed' AND p.payout_id IS NULL AND p.paid_at <= $1
		ORDER BY b.provider_id
	`

	rows, err := r.db.Query(ctx, query, paidBefore)
	if err != nil {
		r.log.Error("Failed to list providers with eligible payments", zap.Error(err))
		return nil, fmt.Errorf("list eligible providers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan provider id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible providers: %w", err)
	}

	return ids, nil
}

func (r *paymentRepository) ListEligibleByProviderForUpdate(ctx context.Context, providerID uuid.UUID, paidBefore time.Time) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments p
		JOIN bookings b ON b.id = p.booking_id
		WHERE b.provider_id = $1
		  AND p.payment_status = 'completed' AND p.payout_id IS NULL AND p.paid_at <= $2
		ORDER BY p.paid_at, p.id
		FOR UPDATE OF p`

	rows, err := r.db.Query(ctx, query, providerID, paidBefore)
	if err != nil {
		r.log.Error("Failed to lock eligible payments",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
		)
		return nil, fmt.Errorf("lock eligible payments for provider %s: %w", providerID.String(), err)
	}
	defer rows.Close()

	var payments []*entity.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible payments: %w", err)
	}

	return payments, nil
}

func (r *paymentRepository) LinkPayout(ctx context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) (int64, error) {
	query := `
		UPDATE payments
		SET payout_id = $1, updated_at = NOW()
		WHERE id = ANY($2) AND payout_id IS NULL AND payment_status = 'completed'
	`

	result, err := r.db.Exec(ctx, query, payoutID, paymentIDs)
	if err != nil {
		r.log.Error("Failed to link payments to payout",
			zap.Error(err),
			zap.String("payout_id", payoutID.String()),
			zap.Int("payments", len(paymentIDs)),
		)
		return 0, fmt.Errorf("link payments to payout %s: %w", payoutID.String(), err)
	}

	return result.RowsAffected(), nil
}
