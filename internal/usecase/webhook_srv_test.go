package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/internal/dto/request"
	"service-marketplace/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pendingIntent returns a confirmed booking with a pending payment that has a gateway reference.
func (h *harness) pendingIntent(t *testing.T) (bookingID, paymentID uuid.UUID, reference string) {
	t.Helper()
	bookingID = h.confirmedBooking(t)
	intent, err := h.svc.Payment.CreatePaymentIntent(context.Background(), h.customer,
		&request.CreatePaymentIntentRequest{BookingID: bookingID.String()})
	require.NoError(t, err)
	return bookingID, uuid.MustParse(intent.PaymentID), intent.Reference
}

func succeeded(id, reference string, amount entity.Money) webhookBody {
	event := webhookBody{ID: id, Type: EventPaymentSucceeded}
	event.Data.Reference = reference
	event.Data.Amount = &amount
	return event
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	bookingID, paymentID, ref := h.pendingIntent(t)

	body, _ := h.signedEvent(t, succeeded("evt_1", ref, 10000))

	for _, sig := range []string{"", "deadbeef", h.gw.Sign([]byte("other body"))} {
		_, err := h.svc.Webhook.HandleEvent(context.Background(), body, sig)
		assert.ErrorIs(t, err, apperror.InvalidSignature)
	}

	assert.Equal(t, entity.PaymentStatusPending, h.store.payment(paymentID).Status)
	assert.Equal(t, entity.BookingStatusConfirmed, h.store.booking(bookingID).Status)
	assert.Zero(t, h.store.eventCount())
}

func TestWebhookSucceededIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bookingID, paymentID, ref := h.pendingIntent(t)
	body, sig := h.signedEvent(t, succeeded("evt_1", ref, 10000))

	ack, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, ack.Outcome)
	assert.Equal(t, paymentID.String(), ack.PaymentID)

	first := h.store.payment(paymentID)
	firstBooking := h.store.booking(bookingID)
	assert.Equal(t, entity.PaymentStatusCompleted, first.Status)
	assert.Equal(t, entity.BookingStatusPaid, firstBooking.Status)

	h.clock.Advance(time.Hour)
	ack, err = h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, ack.Outcome)

	assert.Equal(t, first, h.store.payment(paymentID))
	assert.Equal(t, firstBooking, h.store.booking(bookingID))
	assert.Equal(t, 1, h.store.eventCount())
}

func TestWebhookConcurrentDeliveries(t *testing.T) {
	h := newHarness(t)
	_, paymentID, ref := h.pendingIntent(t)
	body, sig := h.signedEvent(t, succeeded("evt_race", ref, 10000))

	const deliveries = 6
	var (
		wg       sync.WaitGroup
		outcomes = make([]string, deliveries)
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ack, err := h.svc.Webhook.HandleEvent(context.Background(), body, sig)
			if assert.NoError(t, err) {
				outcomes[i] = ack.Outcome
			}
		}(i)
	}
	wg.Wait()

	var applied int
	for _, o := range outcomes {
		if o == OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, entity.PaymentStatusCompleted, h.store.payment(paymentID).Status)
}

func TestWebhookWithoutIDDedupesOnBody(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _, ref := h.pendingIntent(t)
	body, sig := h.signedEvent(t, succeeded("", ref, 10000))

	ack, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, ack.Outcome)
	assert.Equal(t, idempotencyKey("", body), ack.EventID)
	assert.Len(t, ack.EventID, len("body:")+64)

	ack, err = h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, ack.Outcome)
}

func TestWebhookFailureAfterSuccessIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bookingID, paymentID, ref := h.pendingIntent(t)

	body, sig := h.signedEvent(t, succeeded("evt_ok", ref, 10000))
	_, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)

	failed := webhookBody{ID: "evt_fail", Type: EventPaymentFailed}
	failed.Data.Reference = ref
	failed.Data.Reason = "bank timeout"
	body, sig = h.signedEvent(t, failed)

	ack, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, ack.Outcome)
	assert.Equal(t, entity.PaymentStatusCompleted, h.store.payment(paymentID).Status)
	assert.Equal(t, entity.BookingStatusPaid, h.store.booking(bookingID).Status)
}

func TestWebhookFailedMarksPendingPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bookingID, paymentID, ref := h.pendingIntent(t)

	failed := webhookBody{ID: "evt_fail", Type: EventPaymentFailed}
	failed.Data.Reference = ref
	failed.Data.Reason = "insufficient funds"
	body, sig := h.signedEvent(t, failed)

	ack, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, ack.Outcome)

	p := h.store.payment(paymentID)
	assert.Equal(t, entity.PaymentStatusFailed, p.Status)
	assert.Equal(t, "insufficient funds", p.GatewayMetadata[entity.MetaFailureReason])
	assert.Equal(t, entity.BookingStatusConfirmed, h.store.booking(bookingID).Status)
	assert.Contains(t, h.pub.Keys(), "payment.failed")
}

func TestWebhookLateSuccessRevivesFailedPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bookingID, paymentID, ref := h.pendingIntent(t)

	failed := webhookBody{ID: "evt_fail", Type: EventPaymentFailed}
	failed.Data.Reference = ref
	body, sig := h.signedEvent(t, failed)
	_, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)

	body, sig = h.signedEvent(t, succeeded("evt_ok", ref, 10000))
	ack, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, ack.Outcome)
	assert.Equal(t, entity.PaymentStatusCompleted, h.store.payment(paymentID).Status)
	assert.Equal(t, entity.BookingStatusPaid, h.store.booking(bookingID).Status)
}

func TestWebhookLateSuccessIgnoredWhenAnotherPaymentActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bookingID, oldPaymentID, oldRef := h.pendingIntent(t)

	failed := webhookBody{ID: "evt_fail", Type: EventPaymentFailed}
	failed.Data.Reference = oldRef
	body, sig := h.signedEvent(t, failed)
	_, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)

	retry, err := h.svc.Payment.CreatePaymentIntent(ctx, h.customer,
		&request.CreatePaymentIntentRequest{BookingID: bookingID.String()})
	require.NoError(t, err)

	body, sig = h.signedEvent(t, succeeded("evt_old_ok", oldRef, 10000))
	ack, err := h.svc.Webhook.HandleEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, ack.Outcome)

	assert.Equal(t, entity.PaymentStatusFailed, h.store.payment(oldPaymentID).Status)
	assert.Equal(t, entity.PaymentStatusPending, h.store.payment(uuid.MustParse(retry.PaymentID)).Status)
}

func TestWebhookAmountMismatchIsNotApplied(t *testing.T) {
	h := newHarness(t)
	bookingID, paymentID, ref := h.pendingIntent(t)
	body, sig := h.signedEvent(t, succeeded("evt_short", ref, 100))

	ack, err := h.svc.Webhook.HandleEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, ack.Outcome)

	p := h.store.payment(paymentID)
	assert.Equal(t, entity.PaymentStatusPending, p.Status)
	assert.Equal(t, "1.00", p.GatewayMetadata[entity.MetaAmountMismatch])
	assert.Equal(t, entity.BookingStatusConfirmed, h.store.booking(bookingID).Status)
}

func TestWebhookResolvesByBooking(t *testing.T) {
	h := newHarness(t)
	bookingID, paymentID, _ := h.pendingIntent(t)

	event := webhookBody{ID: "evt_by_booking", Type: EventPaymentSucceeded}
	event.Data.Reference = "pay_unrelated"
	event.Data.Metadata.BookingID = bookingID.String()
	body, sig := h.signedEvent(t, event)

	ack, err := h.svc.Webhook.HandleEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, ack.Outcome)
	assert.Equal(t, paymentID.String(), ack.PaymentID)
	assert.Equal(t, entity.PaymentStatusCompleted, h.store.payment(paymentID).Status)
}

func TestWebhookUnknownPaymentIsRetryable(t *testing.T) {
	h := newHarness(t)
	body, sig := h.signedEvent(t, succeeded("evt_early", "order_not_yet_stored", 10000))

	_, err := h.svc.Webhook.HandleEvent(context.Background(), body, sig)
	assert.ErrorIs(t, err, apperror.NotFound)
	assert.Zero(t, h.store.eventCount(), "the event must not be marked processed")
}

func TestWebhookUnknownTypeAcknowledged(t *testing.T) {
	h := newHarness(t)
	body, sig := h.signedEvent(t, webhookBody{ID: "evt_x", Type: "refund_processed"})

	ack, err := h.svc.Webhook.HandleEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, ack.Outcome)
	assert.Zero(t, h.store.eventCount())
}

func TestWebhookMalformedBody(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"type":`)

	_, err := h.svc.Webhook.HandleEvent(context.Background(), body, h.gw.Sign(body))
	assert.ErrorIs(t, err, apperror.ValidationError)
}

type mapKeyCache struct {
	mu   sync.Mutex
	keys map[string]time.Duration
}

func (c *mapKeyCache) Seen(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok, nil
}

func (c *mapKeyCache) Remember(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = ttl
	return nil
}

func TestWebhookCacheShortCircuitsDuplicates(t *testing.T) {
	h := newHarness(t)
	keys := &mapKeyCache{keys: map[string]time.Duration{}}
	h.svc.Webhook = NewWebhookService(h.store.repository(), h.gw, keys, h.clock.Now, newEventEmitter(h.pub, zapNop()), zapNop())
	_, _, ref := h.pendingIntent(t)

	body, sig := h.signedEvent(t, succeeded("evt_cached", ref, 10000))
	_, err := h.svc.Webhook.HandleEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, processedKeyTTL, keys.keys["evt_cached"])

	ack, err := h.svc.Webhook.HandleEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, ack.Outcome)
}
