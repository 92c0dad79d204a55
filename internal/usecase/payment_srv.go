package usecase

import (
	"context"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/internal/data/repository"
	"service-marketplace/internal/dto/request"
	"service-marketplace/internal/dto/response"
	"service-marketplace/internal/gateway"
	"service-marketplace/pkg/apperror"
	"service-marketplace/pkg/database"
	"service-marketplace/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, actor entity.Actor, req *request.CreatePaymentIntentRequest) (*response.PaymentIntentResponse, error)
	ConfirmPayment(ctx context.Context, actor entity.Actor, req *request.ConfirmPaymentRequest) (*response.PaymentResponse, error)
	ProcessRefund(ctx context.Context, actor entity.Actor, req *request.RefundRequest) (*response.RefundResponse, error)
	GetPayment(ctx context.Context, actor entity.Actor, paymentID string) (*response.PaymentResponse, error)
}

type paymentService struct {
	repo     *repository.Repository
	gateway  gateway.Gateway
	timeout  time.Duration
	currency string
	now      func() time.Time
	events   *eventEmitter
	log      *zap.Logger
}

func NewPaymentService(
	repo *repository.Repository,
	gw gateway.Gateway,
	timeout time.Duration,
	currency string,
	now func() time.Time,
	events *eventEmitter,
	log *zap.Logger,
) PaymentService {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &paymentService{
		repo:     repo,
		gateway:  gw,
		timeout:  timeout,
		currency: currency,
		now:      now,
		events:   events,
		log:      log.With(zap.String("service", "payment")),
	}
}

func (s *paymentService) CreatePaymentIntent(ctx context.Context, actor entity.Actor, req *request.CreatePaymentIntentRequest) (*response.PaymentIntentResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	bookingID, err := parseID(req.BookingID, "booking")
	if err != nil {
		return nil, err
	}

	now := s.now()
	payment := &entity.Payment{
		BaseNoDelete: entity.BaseNoDelete{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		BookingID:       bookingID,
		Status:          entity.PaymentStatusPending,
		RefundStatus:    entity.RefundStatusNone,
		GatewayMetadata: entity.GatewayMetadata{},
	}

	// The local row is written before the gateway is called so that a timeout
	// leaves something for the webhook to reconcile against.
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		booking, err := tx.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil || booking.CustomerID != actor.ID {
			return apperror.NotFoundf("booking %s not found", req.BookingID)
		}
		if booking.Status != entity.BookingStatusConfirmed {
			return apperror.InvalidStatef("booking %s is %s; only confirmed bookings can be paid", booking.BookingReference, booking.Status)
		}
		if booking.Price <= 0 {
			return apperror.Validationf("booking %s has nothing to pay", booking.BookingReference)
		}

		active, err := tx.Payment.FindActiveByBookingIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperror.Conflictf("booking %s already has a %s payment", booking.BookingReference, active.Status)
		}

		payment.Amount = booking.Price
		if err := tx.Payment.Create(ctx, payment); err != nil {
			if database.IsUniqueViolation(err) {
				return apperror.Conflictf("booking %s already has an active payment", booking.BookingReference)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fail(s.log, "create payment intent", err,
			zap.String("booking_id", req.BookingID),
			zap.String("customer_id", actor.ID.String()))
	}
	metrics.RecordPayment(string(entity.PaymentStatusPending))

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	intent, gwErr := s.gateway.CreateIntent(gctx, gateway.IntentRequest{
		PaymentID: payment.ID,
		BookingID: bookingID,
		Amount:    int64(payment.Amount),
		Currency:  s.currency,
	})
	metrics.RecordGatewayCall("create_intent", gwErr, time.Since(start).Seconds())

	// The request context may be gone by now; the outcome still has to be stored.
	storeCtx := context.WithoutCancel(ctx)

	if gwErr != nil {
		if gateway.IsOutcomeUnknown(gwErr) {
			s.log.Warn("Payment intent outcome unknown, leaving payment pending for reconciliation",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(gwErr))
			return nil, apperror.Gateway(gwErr, "payment provider did not respond in time; the payment will be reconciled")
		}

		if err := s.markIntentFailed(storeCtx, payment.ID, gwErr.Error()); err != nil {
			return nil, fail(s.log, "record failed payment intent", err, zap.String("payment_id", payment.ID.String()))
		}
		return nil, fail(s.log, "create payment intent", apperror.Gateway(gwErr, "payment provider rejected the payment"),
			zap.String("payment_id", payment.ID.String()))
	}

	err = s.repo.Tx.WithinTx(storeCtx, func(tx *repository.Repository) error {
		p, err := tx.Payment.FindByIDForUpdate(storeCtx, payment.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.NotFoundf("payment %s vanished", payment.ID)
		}
		if p.TransactionReference == nil {
			p.TransactionReference = &intent.Reference
		}
		p.SetMetadata(entity.MetaIntentID, intent.Reference)
		p.UpdatedAt = s.now()
		payment = p
		return tx.Payment.Update(storeCtx, p)
	})
	if err != nil {
		return nil, fail(s.log, "store payment intent", err, zap.String("payment_id", payment.ID.String()))
	}

	s.log.Info("Payment intent created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("booking_id", bookingID.String()),
		zap.String("reference", intent.Reference),
		zap.String("amount", payment.Amount.String()),
	)

	return &response.PaymentIntentResponse{
		PaymentID:    payment.ID.String(),
		ClientSecret: intent.ClientSecret,
		Reference:    intent.Reference,
		Amount:       payment.Amount,
		Status:       payment.Status,
	}, nil
}

func (s *paymentService) markIntentFailed(ctx context.Context, paymentID uuid.UUID, reason string) error {
	return s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		p, err := tx.Payment.FindByIDForUpdate(ctx, paymentID)
		if err != nil || p == nil {
			return err
		}
		if p.Status != entity.PaymentStatusPending {
			return nil
		}
		p.Status = entity.PaymentStatusFailed
		p.SetMetadata(entity.MetaFailureReason, reason)
		p.UpdatedAt = s.now()
		metrics.RecordPayment(string(entity.PaymentStatusFailed))
		return tx.Payment.Update(ctx, p)
	})
}

// lockPaymentWithBooking locks the payment's booking and then the payment itself.
// Every writer takes the two locks in this order.
func lockPaymentWithBooking(ctx context.Context, tx *repository.Repository, paymentID, bookingID uuid.UUID) (*entity.Payment, *entity.Booking, error) {
	booking, err := tx.Booking.FindByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	payment, err := tx.Payment.FindByIDForUpdate(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, apperror.NotFoundf("payment %s not found", paymentID)
	}
	if booking == nil {
		return nil, nil, apperror.NotFoundf("booking for payment %s not found", paymentID)
	}
	return payment, booking, nil
}

// completePayment marks a pending (or revived failed) payment completed and
// moves a confirmed booking to paid. It reports whether the booking changed.
func completePayment(ctx context.Context, tx *repository.Repository, log *zap.Logger, payment *entity.Payment, booking *entity.Booking, now time.Time) (bool, error) {
	payment.Status = entity.PaymentStatusCompleted
	payment.PaidAt = &now
	payment.UpdatedAt = now
	if err := tx.Payment.Update(ctx, payment); err != nil {
		return false, err
	}

	if booking.Status != entity.BookingStatusConfirmed || !entity.CanTransition(entity.RoleSystem, booking.Status, entity.BookingStatusPaid) {
		log.Warn("Payment completed but booking not moved to paid",
			zap.String("payment_id", payment.ID.String()),
			zap.String("booking_id", booking.ID.String()),
			zap.String("booking_status", string(booking.Status)))
		return false, nil
	}

	booking.Status = entity.BookingStatusPaid
	booking.UpdatedAt = now
	if err := tx.Booking.Update(ctx, booking); err != nil {
		return false, err
	}
	return true, nil
}

func (s *paymentService) ConfirmPayment(ctx context.Context, actor entity.Actor, req *request.ConfirmPaymentRequest) (*response.PaymentResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	found, err := s.repo.Payment.FindByReference(ctx, req.GatewayReference)
	if err != nil {
		return nil, fail(s.log, "confirm payment", err, zap.String("reference", req.GatewayReference))
	}
	if found == nil {
		return nil, apperror.NotFoundf("payment with reference %s not found", req.GatewayReference)
	}

	var (
		payment       *entity.Payment
		bookingPaid   bool
		alreadyClosed bool
	)
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		p, booking, err := lockPaymentWithBooking(ctx, tx, found.ID, found.BookingID)
		if err != nil {
			return err
		}
		if booking.CustomerID != actor.ID {
			return apperror.Forbiddenf("payment %s does not belong to the caller", found.ID)
		}

		payment = p
		switch p.Status {
		case entity.PaymentStatusCompleted:
			alreadyClosed = true
			return nil
		case entity.PaymentStatusPending:
		default:
			return apperror.InvalidStatef("payment is %s and cannot be confirmed", p.Status)
		}

		bookingPaid, err = completePayment(ctx, tx, s.log, p, booking, s.now())
		return err
	})
	if err != nil {
		return nil, fail(s.log, "confirm payment", err,
			zap.String("reference", req.GatewayReference),
			zap.String("customer_id", actor.ID.String()))
	}

	if alreadyClosed {
		s.log.Debug("Payment already completed", zap.String("payment_id", payment.ID.String()))
		return response.PaymentToResponse(payment), nil
	}

	s.log.Info("Payment confirmed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("booking_id", payment.BookingID.String()),
		zap.Bool("booking_paid", bookingPaid))
	s.recordCompleted(ctx, payment, bookingPaid)

	return response.PaymentToResponse(payment), nil
}

func (s *paymentService) recordCompleted(ctx context.Context, payment *entity.Payment, bookingPaid bool) {
	metrics.RecordPayment(string(entity.PaymentStatusCompleted))
	if bookingPaid {
		metrics.RecordBookingTransition(string(entity.BookingStatusPaid))
	}
	s.events.emit(ctx, "payment.completed", map[string]any{
		"payment_id": payment.ID,
		"booking_id": payment.BookingID,
		"amount":     payment.Amount,
	})
}

func (s *paymentService) ProcessRefund(ctx context.Context, actor entity.Actor, req *request.RefundRequest) (*response.RefundResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	paymentID, err := parseID(req.PaymentID, "payment")
	if err != nil {
		return nil, err
	}

	found, err := s.repo.Payment.FindByID(ctx, paymentID)
	if err != nil {
		return nil, fail(s.log, "process refund", err, zap.String("payment_id", req.PaymentID))
	}
	if found == nil {
		return nil, apperror.NotFoundf("payment %s not found", req.PaymentID)
	}

	var (
		payment   *entity.Payment
		booking   *entity.Booking
		amount    entity.Money
		reference string
		full      bool
	)
	// The payment stays locked across the gateway call so two refunds of the
	// same payment cannot both pass the remaining-amount check.
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		p, b, err := lockPaymentWithBooking(ctx, tx, found.ID, found.BookingID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !(actor.Role == entity.RoleProvider && b.ProviderID == actor.ID) {
			return apperror.Forbiddenf("only the booking's provider or an admin can refund")
		}
		if p.Status != entity.PaymentStatusCompleted {
			return apperror.InvalidStatef("payment is %s; only completed payments can be refunded", p.Status)
		}
		if p.PayoutID != nil {
			return apperror.Conflictf("payment is already part of a provider payout")
		}
		if p.TransactionReference == nil {
			return apperror.InvalidStatef("payment has no gateway reference to refund against")
		}

		remaining := p.RefundableAmount()
		amount = remaining
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount <= 0 {
			return apperror.Validationf("refund amount must be positive")
		}
		if amount > remaining {
			return apperror.Validationf("refund of %s exceeds the refundable %s", amount, remaining)
		}

		gctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		res, err := s.gateway.Refund(gctx, gateway.RefundRequest{
			PaymentReference: *p.TransactionReference,
			Amount:           int64(amount),
			Reason:           req.Reason,
		})
		metrics.RecordGatewayCall("refund", err, time.Since(start).Seconds())
		if err != nil {
			return apperror.Gateway(err, "refund was not accepted by the payment provider")
		}
		reference = res.Reference

		now := s.now()
		refunded := p.RefundedAmount() + amount
		p.RefundAmount = &refunded
		p.RefundStatus = entity.RefundStatusPartial
		if refunded == p.Amount {
			full = true
			p.RefundStatus = entity.RefundStatusFull
			p.Status = entity.PaymentStatusRefunded
		}
		p.SetMetadata(entity.MetaRefundReference, reference)
		if req.Reason != "" {
			p.SetMetadata(entity.MetaRefundReason, req.Reason)
		}
		p.UpdatedAt = now
		if err := tx.Payment.Update(ctx, p); err != nil {
			return err
		}

		if full && !b.Status.IsTerminal() {
			if entity.CanTransition(entity.RoleSystem, b.Status, entity.BookingStatusRefunded) {
				b.Status = entity.BookingStatusRefunded
				b.UpdatedAt = now
				if err := tx.Booking.Update(ctx, b); err != nil {
					return err
				}
			} else {
				s.log.Warn("Fully refunded payment left booking status unchanged",
					zap.String("booking_id", b.ID.String()),
					zap.String("booking_status", string(b.Status)))
			}
		}

		payment, booking = p, b
		return nil
	})
	if err != nil {
		return nil, fail(s.log, "process refund", err,
			zap.String("payment_id", req.PaymentID),
			zap.String("actor_id", actor.ID.String()))
	}

	s.log.Info("Refund processed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", amount.String()),
		zap.String("refund_status", string(payment.RefundStatus)),
		zap.String("booking_status", string(booking.Status)),
		zap.String("reference", reference),
	)
	metrics.RecordRefund(int64(amount))
	if full {
		metrics.RecordPayment(string(entity.PaymentStatusRefunded))
		if booking.Status == entity.BookingStatusRefunded {
			metrics.RecordBookingTransition(string(entity.BookingStatusRefunded))
		}
	}
	s.events.emit(ctx, "payment.refunded", map[string]any{
		"payment_id":    payment.ID,
		"booking_id":    booking.ID,
		"amount":        amount,
		"refund_status": payment.RefundStatus,
	})

	return &response.RefundResponse{
		Payment:       response.PaymentToResponse(payment),
		BookingStatus: booking.Status,
		Refunded:      amount,
		Reference:     reference,
	}, nil
}

func (s *paymentService) GetPayment(ctx context.Context, actor entity.Actor, paymentID string) (*response.PaymentResponse, error) {
	id, err := parseID(paymentID, "payment")
	if err != nil {
		return nil, err
	}

	payment, err := s.repo.Payment.FindByID(ctx, id)
	if err != nil {
		return nil, fail(s.log, "get payment", err, zap.String("payment_id", paymentID))
	}
	if payment == nil {
		return nil, apperror.NotFoundf("payment %s not found", paymentID)
	}

	booking, err := s.repo.Booking.FindByID(ctx, payment.BookingID)
	if err != nil {
		return nil, fail(s.log, "get payment", err, zap.String("payment_id", paymentID))
	}
	if booking == nil || !booking.CanBeViewedBy(actor) {
		return nil, apperror.NotFoundf("payment %s not found", paymentID)
	}

	return response.PaymentToResponse(payment), nil
}
