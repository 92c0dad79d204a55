package usecase

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/internal/data/repository"
	"service-marketplace/internal/dto/response"
	"service-marketplace/internal/gateway"
	"service-marketplace/pkg/apperror"
	"service-marketplace/pkg/cache"
	"service-marketplace/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
)

// Webhook outcomes reported back to the gateway.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeMismatch  = "amount_mismatch"
)

const processedKeyTTL = 24 * time.Hour

type WebhookService interface {
	HandleEvent(ctx context.Context, body []byte, signature string) (*response.WebhookAck, error)
}

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Reference string        `json:"reference"`
		Amount    *entity.Money `json:"amount"`
		Metadata  struct {
			BookingID string `json:"bookingId"`
			PaymentID string `json:"paymentId"`
		} `json:"metadata"`
		Reason string `json:"reason"`
	} `json:"data"`
}

type webhookService struct {
	repo    *repository.Repository
	gateway gateway.Gateway
	cache   cache.KeyCache
	now     func() time.Time
	events  *eventEmitter
	log     *zap.Logger
}

func NewWebhookService(
	repo *repository.Repository,
	gw gateway.Gateway,
	keys cache.KeyCache,
	now func() time.Time,
	events *eventEmitter,
	log *zap.Logger,
) WebhookService {
	if keys == nil {
		keys = cache.NoopKeyCache{}
	}
	return &webhookService{
		repo:    repo,
		gateway: gw,
		cache:   keys,
		now:     now,
		events:  events,
		log:     log.With(zap.String("service", "webhook")),
	}
}

// idempotencyKey is the event id, or a digest of the body when the gateway sends none.
func idempotencyKey(id string, body []byte) string {
	if id != "" {
		return id
	}
	sum := blake2b.Sum256(body)
	return "body:" + hex.EncodeToString(sum[:])
}

func (s *webhookService) HandleEvent(ctx context.Context, body []byte, signature string) (*response.WebhookAck, error) {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		s.log.Warn("Webhook signature rejected", zap.Int("body_size", len(body)))
		metrics.RecordWebhook("unknown", "invalid_signature")
		return nil, apperror.NewInvalidSignature()
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperror.Validationf("malformed webhook payload: %v", err)
	}

	key := idempotencyKey(payload.ID, body)
	ack := &response.WebhookAck{EventID: key, Type: payload.Type}

	if payload.Type != EventPaymentSucceeded && payload.Type != EventPaymentFailed {
		s.log.Info("Ignoring webhook event type", zap.String("type", payload.Type), zap.String("event_id", key))
		ack.Outcome = OutcomeIgnored
		metrics.RecordWebhook(payload.Type, ack.Outcome)
		return ack, nil
	}

	if seen, err := s.cache.Seen(ctx, key); err != nil {
		s.log.Warn("Webhook key cache unavailable", zap.Error(err))
	} else if seen {
		ack.Outcome = OutcomeDuplicate
		metrics.RecordWebhook(payload.Type, ack.Outcome)
		return ack, nil
	}

	var (
		payment     *entity.Payment
		bookingPaid bool
	)
	err := s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		inserted, err := tx.WebhookEvent.MarkProcessed(ctx, &entity.WebhookEvent{
			EventID:     key,
			EventType:   payload.Type,
			Reference:   payload.Data.Reference,
			ProcessedAt: s.now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			ack.Outcome = OutcomeDuplicate
			return nil
		}

		p, booking, err := s.resolvePayment(ctx, tx, &payload)
		if err != nil {
			return err
		}
		payment = p

		switch payload.Type {
		case EventPaymentSucceeded:
			ack.Outcome, bookingPaid, err = s.applySucceeded(ctx, tx, &payload, p, booking)
		case EventPaymentFailed:
			ack.Outcome, err = s.applyFailed(ctx, tx, &payload, p)
		}
		return err
	})
	if err != nil {
		metrics.RecordWebhook(payload.Type, "error")
		return nil, fail(s.log, "handle webhook", err,
			zap.String("event_id", key),
			zap.String("type", payload.Type),
			zap.String("reference", payload.Data.Reference))
	}

	if err := s.cache.Remember(ctx, key, processedKeyTTL); err != nil {
		s.log.Warn("Failed to cache webhook key", zap.String("event_id", key), zap.Error(err))
	}
	metrics.RecordWebhook(payload.Type, ack.Outcome)

	if payment != nil {
		ack.PaymentID = payment.ID.String()
	}
	if ack.Outcome != OutcomeApplied {
		s.log.Info("Webhook acknowledged without change",
			zap.String("event_id", key),
			zap.String("type", payload.Type),
			zap.String("outcome", ack.Outcome))
		return ack, nil
	}

	s.log.Info("Webhook applied",
		zap.String("event_id", key),
		zap.String("type", payload.Type),
		zap.String("payment_id", payment.ID.String()),
		zap.String("status", string(payment.Status)))

	switch payment.Status {
	case entity.PaymentStatusCompleted:
		metrics.RecordPayment(string(entity.PaymentStatusCompleted))
		if bookingPaid {
			metrics.RecordBookingTransition(string(entity.BookingStatusPaid))
		}
		s.events.emit(ctx, "payment.completed", map[string]any{
			"payment_id": payment.ID,
			"booking_id": payment.BookingID,
			"amount":     payment.Amount,
			"source":     "webhook",
		})
	case entity.PaymentStatusFailed:
		metrics.RecordPayment(string(entity.PaymentStatusFailed))
		s.events.emit(ctx, "payment.failed", map[string]any{
			"payment_id": payment.ID,
			"booking_id": payment.BookingID,
			"reason":     payload.Data.Reason,
		})
	}

	return ack, nil
}

// resolvePayment finds the event's payment by gateway reference, then by the
// payment id in metadata, then by the booking's active payment. The booking is
// locked before the payment.
func (s *webhookService) resolvePayment(ctx context.Context, tx *repository.Repository, payload *webhookPayload) (*entity.Payment, *entity.Booking, error) {
	var found *entity.Payment

	if ref := payload.Data.Reference; ref != "" {
		p, err := tx.Payment.FindByReference(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		found = p
	}

	if found == nil && payload.Data.Metadata.PaymentID != "" {
		if id, err := uuid.Parse(payload.Data.Metadata.PaymentID); err == nil {
			p, err := tx.Payment.FindByID(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			found = p
		}
	}

	if found != nil {
		return lockPaymentWithBooking(ctx, tx, found.ID, found.BookingID)
	}

	if payload.Data.Metadata.BookingID != "" {
		if id, err := uuid.Parse(payload.Data.Metadata.BookingID); err == nil {
			booking, err := tx.Booking.FindByIDForUpdate(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			if booking != nil {
				p, err := tx.Payment.FindActiveByBookingIDForUpdate(ctx, booking.ID)
				if err != nil {
					return nil, nil, err
				}
				if p != nil {
					return p, booking, nil
				}
			}
		}
	}

	// Rolling back lets the gateway redeliver once the payment row exists.
	return nil, nil, apperror.NotFoundf("no payment matches webhook reference %q", payload.Data.Reference)
}

func (s *webhookService) applySucceeded(ctx context.Context, tx *repository.Repository, payload *webhookPayload, p *entity.Payment, booking *entity.Booking) (string, bool, error) {
	now := s.now()

	if payload.Data.Amount != nil && *payload.Data.Amount != p.Amount {
		s.log.Error("Webhook amount does not match payment",
			zap.String("payment_id", p.ID.String()),
			zap.String("expected", p.Amount.String()),
			zap.String("received", payload.Data.Amount.String()))
		p.SetMetadata(entity.MetaAmountMismatch, payload.Data.Amount.String())
		p.UpdatedAt = now
		return OutcomeMismatch, false, tx.Payment.Update(ctx, p)
	}

	switch p.Status {
	case entity.PaymentStatusPending:
	case entity.PaymentStatusFailed:
		other, err := tx.Payment.FindActiveByBookingIDForUpdate(ctx, p.BookingID)
		if err != nil {
			return "", false, err
		}
		if other != nil {
			s.log.Warn("Late success for failed payment ignored; booking has another active payment",
				zap.String("payment_id", p.ID.String()),
				zap.String("active_payment_id", other.ID.String()))
			return OutcomeIgnored, false, nil
		}
		s.log.Info("Reviving failed payment from late success", zap.String("payment_id", p.ID.String()))
	default:
		return OutcomeIgnored, false, nil
	}

	if p.TransactionReference == nil && payload.Data.Reference != "" {
		ref := payload.Data.Reference
		p.TransactionReference = &ref
	}

	paid, err := completePayment(ctx, tx, s.log, p, booking, now)
	if err != nil {
		return "", false, err
	}
	return OutcomeApplied, paid, nil
}

func (s *webhookService) applyFailed(ctx context.Context, tx *repository.Repository, payload *webhookPayload, p *entity.Payment) (string, error) {
	if p.Status != entity.PaymentStatusPending {
		s.log.Info("Payment failure ignored; payment already settled",
			zap.String("payment_id", p.ID.String()),
			zap.String("status", string(p.Status)))
		return OutcomeIgnored, nil
	}

	reason := payload.Data.Reason
	if reason == "" {
		reason = "payment failed at gateway"
	}
	p.Status = entity.PaymentStatusFailed
	p.SetMetadata(entity.MetaFailureReason, reason)
	p.UpdatedAt = s.now()
	return OutcomeApplied, tx.Payment.Update(ctx, p)
}
