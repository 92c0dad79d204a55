package repository

import (
	"context"
	"fmt"

	"service-marketplace/pkg/database"

	"go.uber.org/zap"
)

// scanner is implemented by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type Repository struct {
	Service      ServiceRepository
	Booking      BookingRepository
	Payment      PaymentRepository
	Payout       PayoutRepository
	PayoutMethod PayoutMethodRepository
	WebhookEvent WebhookEventRepository

	Tx Transactor
}

// Transactor runs fn inside one database transaction. The Repository handed to fn
// is bound to that transaction; fn returning an error rolls everything back.
// Calling WithinTx on a transaction-bound Repository joins the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx *Repository) error) error
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	repo := newRepository(db, log)
	repo.Tx = &pgTransactor{db: db, log: log.With(zap.String("repository", "tx"))}
	return repo
}

func newRepository(q database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		Service:      NewServiceRepository(q, log),
		Booking:      NewBookingRepository(q, log),
		Payment:      NewPaymentRepository(q, log),
		Payout:       NewPayoutRepository(q, log),
		PayoutMethod: NewPayoutMethodRepository(q, log),
		WebhookEvent: NewWebhookEventRepository(q, log),
	}
}

type pgTransactor struct {
	db  database.PgxIface
	log *zap.Logger
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(tx *Repository) error) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(context.WithoutCancel(ctx))

	txRepo := newRepository(tx, t.log)
	txRepo.Tx = joinedTx{repo: txRepo}

	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		t.log.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type joinedTx struct {
	repo *Repository
}

func (j joinedTx) WithinTx(ctx context.Context, fn func(tx *Repository) error) error {
	return fn(j.repo)
}
