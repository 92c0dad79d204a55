package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// BookingFilter narrows List and Count. Nil fields are not filtered on.
type BookingFilter struct {
	CustomerID *uuid.UUID
	ProviderID *uuid.UUID
	Status     *entity.BookingStatus
}

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	List(ctx context.Context, filter BookingFilter, limit, offset int) ([]*entity.Booking, error)
	Count(ctx context.Context, filter BookingFilter) (int64, error)
	Update(ctx context.Context, booking *entity.Booking) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
}

type bookingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewBookingRepository(db database.Querier, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

const bookingColumns = `id, booking_reference, customer_id, provider_id, service_id, booking_date,
		start_time, end_time, status, notes, price, cancellation_reason, created_at, updated_at, deleted_at`

func scanBooking(row scanner) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.BookingReference,
		&b.CustomerID,
		&b.ProviderID,
		&b.ServiceID,
		&b.BookingDate,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.Notes,
		&b.Price,
		&b.CancellationReason,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, booking_reference, customer_id, provider_id, service_id, booking_date,
			start_time, end_time, status, notes, price, cancellation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.BookingReference,
		booking.CustomerID,
		booking.ProviderID,
		booking.ServiceID,
		booking.BookingDate,
		booking.StartTime,
		booking.EndTime,
		string(booking.Status),
		booking.Notes,
		int64(booking.Price),
		booking.CancellationReason,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("booking_reference", booking.BookingReference),
			zap.String("customer_id", booking.CustomerID.String()),
		)
		return fmt.Errorf("create booking %s: %w", booking.BookingReference, err)
	}

	return nil
}

func (r *bookingRepository) findOne(ctx context.Context, id uuid.UUID, lock bool) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE id = $1 AND deleted_at IS NULL`
	if lock {
		query += ` FOR UPDATE`
	}

	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
			zap.Bool("for_update", lock),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.findOne(ctx, id, false)
}

func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.findOne(ctx, id, true)
}

func (f BookingFilter) where() (string, []any) {
	conds := []string{"deleted_at IS NULL"}
	var args []any
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		conds = append(conds, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func (r *bookingRepository) List(ctx context.Context, filter BookingFilter, limit, offset int) ([]*entity.Booking, error) {
	where, args := filter.where()
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s
		FROM bookings
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, bookingColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list bookings", zap.Error(err))
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}

	return bookings, nil
}

func (r *bookingRepository) Count(ctx context.Context, filter BookingFilter) (int64, error) {
	where, args := filter.where()
	query := `SELECT COUNT(*) FROM bookings WHERE ` + where

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		r.log.Error("Failed to count bookings", zap.Error(err))
		return 0, fmt.Errorf("count bookings: %w", err)
	}

	return count, nil
}

func (r *bookingRepository) Update(ctx context.Context, booking *entity.Booking) error {
	query := `
		UPDATE bookings
		SET booking_date = $2, start_time = $3, end_time = $4, status = $5,
		    notes = $6, cancellation_reason = $7, updated_at = $8
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.BookingDate,
		booking.StartTime,
		booking.EndTime,
		string(booking.Status),
		booking.Notes,
		booking.CancellationReason,
		booking.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to update booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
		)
		return fmt.Errorf("update booking %s: %w", booking.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %s not found", booking.ID.String())
	}

	return nil
}

func (r *bookingRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE bookings SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		r.log.Error("Failed to archive booking",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return fmt.Errorf("archive booking %s: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %s not found", id.String())
	}

	r.log.Info("Booking archived", zap.String("booking_id", id.String()))
	return nil
}
