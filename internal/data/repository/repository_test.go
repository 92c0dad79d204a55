package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"service-marketplace/internal/data/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestWithinTxCommits(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock, zap.NewNop())
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_events")).
		WithArgs("evt_1", "payment_succeeded", "pay_1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.Tx.WithinTx(context.Background(), func(tx *Repository) error {
		inserted, err := tx.WebhookEvent.MarkProcessed(context.Background(), &entity.WebhookEvent{
			EventID: "evt_1", EventType: "payment_succeeded", Reference: "pay_1", ProcessedAt: now,
		})
		assert.True(t, inserted)
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock, zap.NewNop())
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.Tx.WithinTx(context.Background(), func(tx *Repository) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedWithinTxJoinsOuter(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := repo.Tx.WithinTx(context.Background(), func(outer *Repository) error {
		return outer.Tx.WithinTx(context.Background(), func(inner *Repository) error {
			assert.Same(t, outer, inner)
			return nil
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessedDuplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewWebhookEventRepository(mock, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (event_id) DO NOTHING")).
		WithArgs("evt_1", "payment_succeeded", "pay_1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := repo.MarkProcessed(context.Background(), &entity.WebhookEvent{
		EventID: "evt_1", EventType: "payment_succeeded", Reference: "pay_1", ProcessedAt: time.Now(),
	})

	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingFindByIDNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewBookingRepository(mock, zap.NewNop())
	id := uuid.New()

	mock.ExpectQuery(`FROM bookings\s+WHERE id = \$1 AND deleted_at IS NULL FOR UPDATE`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	booking, err := repo.FindByIDForUpdate(context.Background(), id)

	require.NoError(t, err)
	assert.Nil(t, booking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingCountFiltersByParticipant(t *testing.T) {
	mock := newMock(t)
	repo := NewBookingRepository(mock, zap.NewNop())
	providerID := uuid.New()
	status := entity.BookingStatusPaid

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE deleted_at IS NULL AND provider_id = $1 AND status = $2")).
		WithArgs(providerID, "paid").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))

	count, err := repo.Count(context.Background(), BookingFilter{ProviderID: &providerID, Status: &status})

	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingUpdateMissingRow(t *testing.T) {
	mock := newMock(t)
	repo := NewBookingRepository(mock, zap.NewNop())
	booking := &entity.Booking{Base: entity.Base{ID: uuid.New()}, Status: entity.BookingStatusCancelled}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings")).
		WithArgs(booking.ID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "cancelled",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), booking)

	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkPayoutReportsRowsAffected(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock, zap.NewNop())
	payoutID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ANY($2) AND payout_id IS NULL AND payment_status = 'completed'")).
		WithArgs(payoutID, ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.LinkPayout(context.Background(), payoutID, ids)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEligibleProviderIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock, zap.NewNop())
	cutoff := time.Now().Add(-24 * time.Hour)
	p1, p2 := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("p.payout_id IS NULL AND p.paid_at <= $1")).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"provider_id"}).AddRow(p1).AddRow(p2))

	ids, err := repo.ListEligibleProviderIDs(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p1, p2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDuePayoutIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewPayoutRepository(mock, zap.NewNop())
	now := time.Now()
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'pending' AND scheduled_date <= $1")).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))

	ids, err := repo.ListDueIDs(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDuePayoutIDsQueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewPayoutRepository(mock, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM payouts")).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.ListDueIDs(context.Background(), time.Now())

	assert.ErrorContains(t, err, "list due payouts")
}

func TestPayoutMethodMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewPayoutMethodRepository(mock, zap.NewNop())
	providerID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM provider_payout_methods")).
		WithArgs(providerID).
		WillReturnError(pgx.ErrNoRows)

	method, err := repo.FindActiveByProvider(context.Background(), providerID)

	require.NoError(t, err)
	assert.Nil(t, method)
}
