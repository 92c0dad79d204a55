package usecase

import (
	"context"
	"strings"
	"time"

	"service-marketplace/internal/data/entity"
	"service-marketplace/internal/data/repository"
	"service-marketplace/internal/dto/request"
	"service-marketplace/internal/dto/response"
	"service-marketplace/pkg/apperror"
	"service-marketplace/pkg/database"
	"service-marketplace/pkg/metrics"
	"service-marketplace/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService interface {
	CreateBooking(ctx context.Context, actor entity.Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	GetBooking(ctx context.Context, actor entity.Actor, bookingID string) (*response.BookingResponse, error)
	ListMyBookings(ctx context.Context, actor entity.Actor, req *request.ListBookingsRequest) (*response.PaginatedResponse[response.BookingResponse], error)

	CancelBooking(ctx context.Context, actor entity.Actor, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error)
	RescheduleBooking(ctx context.Context, actor entity.Actor, bookingID string, req *request.RescheduleBookingRequest) (*response.BookingResponse, error)
	UpdateStatus(ctx context.Context, actor entity.Actor, bookingID string, req *request.UpdateBookingStatusRequest) (*response.BookingResponse, error)

	// ArchiveBooking soft-deletes a terminal booking. Admin only.
	ArchiveBooking(ctx context.Context, actor entity.Actor, bookingID string) error
}

type bookingService struct {
	repo   *repository.Repository
	refs   *utils.ReferenceGenerator
	config utils.BookingConfig
	now    func() time.Time
	events *eventEmitter
	log    *zap.Logger
}

func NewBookingService(
	repo *repository.Repository,
	refs *utils.ReferenceGenerator,
	config utils.BookingConfig,
	now func() time.Time,
	events *eventEmitter,
	log *zap.Logger,
) BookingService {
	return &bookingService{
		repo:   repo,
		refs:   refs,
		config: config,
		now:    now,
		events: events,
		log:    log.With(zap.String("service", "booking")),
	}
}

// parseSlot combines a date and a clock time into a UTC instant.
func parseSlot(date, clock string) (day time.Time, at time.Time, err error) {
	day, err = time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.Validationf("invalid date %q", date)
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.Validationf("invalid time %q", clock)
	}
	at = time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	return day, at, nil
}

func (s *bookingService) CreateBooking(ctx context.Context, actor entity.Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error) {
	if actor.Role != entity.RoleCustomer {
		return nil, apperror.Forbiddenf("only customers can create bookings")
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	serviceID, err := parseID(req.ServiceID, "service")
	if err != nil {
		return nil, err
	}

	day, start, err := parseSlot(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}
	_, end, err := parseSlot(req.Date, req.EndTime)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, apperror.Validationf("end time %s must be after start time %s", req.EndTime, req.StartTime)
	}

	status := entity.BookingStatusPending
	if s.config.AutoConfirm {
		status = entity.BookingStatusConfirmed
	}

	now := s.now()
	booking := &entity.Booking{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		BookingReference: s.refs.BookingReference(),
		CustomerID:       actor.ID,
		ServiceID:        serviceID,
		BookingDate:      day,
		StartTime:        start,
		EndTime:          end,
		Status:           status,
		Notes:            strings.TrimSpace(req.Notes),
	}

	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		svc, err := tx.Service.FindByID(ctx, serviceID)
		if err != nil {
			return err
		}
		if svc == nil || !svc.IsActive {
			return apperror.NotFoundf("service %s not found", req.ServiceID)
		}

		// Provider and price are fixed at booking time.
		booking.ProviderID = svc.ProviderID
		booking.Price = svc.Price

		if err := tx.Booking.Create(ctx, booking); err != nil {
			if database.IsUniqueViolation(err) {
				return apperror.Conflictf("booking reference %s already in use, retry", booking.BookingReference)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fail(s.log, "create booking", err,
			zap.String("customer_id", actor.ID.String()),
			zap.String("service_id", req.ServiceID))
	}

	s.log.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("booking_reference", booking.BookingReference),
		zap.String("customer_id", actor.ID.String()),
		zap.String("provider_id", booking.ProviderID.String()),
		zap.String("price", booking.Price.String()),
	)
	metrics.RecordBookingTransition(string(booking.Status))
	s.events.emit(ctx, "booking.created", map[string]any{
		"booking_id":  booking.ID,
		"reference":   booking.BookingReference,
		"customer_id": booking.CustomerID,
		"provider_id": booking.ProviderID,
		"status":      booking.Status,
	})

	return response.BookingToResponse(booking), nil
}

func (s *bookingService) GetBooking(ctx context.Context, actor entity.Actor, bookingID string) (*response.BookingResponse, error) {
	id, err := parseID(bookingID, "booking")
	if err != nil {
		return nil, err
	}

	booking, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, fail(s.log, "get booking", err, zap.String("booking_id", bookingID))
	}
	if booking == nil || !booking.CanBeViewedBy(actor) {
		return nil, apperror.NotFoundf("booking %s not found", bookingID)
	}

	return response.BookingToResponse(booking), nil
}

func (s *bookingService) ListMyBookings(ctx context.Context, actor entity.Actor, req *request.ListBookingsRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var filter repository.BookingFilter
	switch actor.Role {
	case entity.RoleCustomer:
		filter.CustomerID = &actor.ID
	case entity.RoleProvider:
		filter.ProviderID = &actor.ID
	case entity.RoleAdmin:
	default:
		return nil, apperror.Forbiddenf("role %s cannot list bookings", actor.Role)
	}
	if req.Status != "" {
		status := entity.BookingStatus(req.Status)
		filter.Status = &status
	}

	bookings, err := s.repo.Booking.List(ctx, filter, req.Limit(), req.Offset())
	if err != nil {
		return nil, fail(s.log, "list bookings", err, zap.String("actor_id", actor.ID.String()))
	}

	total, err := s.repo.Booking.Count(ctx, filter)
	if err != nil {
		return nil, fail(s.log, "count bookings", err, zap.String("actor_id", actor.ID.String()))
	}

	items := make([]response.BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = *response.BookingToResponse(b)
	}

	return response.NewPaginatedResponse(items, req.Page, req.Limit(), total), nil
}

// transitionError explains why a status change was refused without exposing anything
// the actor cannot already see.
func transitionError(b *entity.Booking, role entity.Role, to entity.BookingStatus) error {
	if b.Status.IsTerminal() {
		return apperror.InvalidTransitionf("booking %s is %s and can no longer change", b.BookingReference, b.Status)
	}
	allowed := entity.AllowedTransitions(role, b.Status)
	if len(allowed) == 0 {
		return apperror.InvalidTransitionf("booking %s is %s; %s cannot change it to %s",
			b.BookingReference, b.Status, role, to)
	}
	names := make([]string, len(allowed))
	for i, st := range allowed {
		names[i] = string(st)
	}
	return apperror.InvalidTransitionf("booking %s is %s; %s can change it to %s, not %s",
		b.BookingReference, b.Status, role, strings.Join(names, ", "), to)
}

// mutate locks the booking, checks the actor may touch it, and persists whatever change apply makes.
func (s *bookingService) mutate(
	ctx context.Context,
	op string,
	actor entity.Actor,
	bookingID string,
	apply func(b *entity.Booking) error,
) (*entity.Booking, entity.BookingStatus, error) {
	id, err := parseID(bookingID, "booking")
	if err != nil {
		return nil, "", err
	}

	var (
		booking *entity.Booking
		from    entity.BookingStatus
	)
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFoundf("booking %s not found", bookingID)
		}
		if !actor.IsAdmin() && !b.IsParticipant(actor.ID) {
			return apperror.Forbiddenf("not a participant of booking %s", bookingID)
		}

		from = b.Status
		if err := apply(b); err != nil {
			return err
		}
		b.UpdatedAt = s.now()

		if err := tx.Booking.Update(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, "", fail(s.log, op, err,
			zap.String("booking_id", bookingID),
			zap.String("actor_id", actor.ID.String()),
			zap.String("actor_role", string(actor.Role)))
	}

	s.log.Info("Booking "+op,
		zap.String("booking_id", booking.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(booking.Status)),
		zap.String("actor_id", actor.ID.String()),
		zap.String("actor_role", string(actor.Role)),
	)
	metrics.RecordBookingTransition(string(booking.Status))
	s.events.emit(ctx, "booking."+string(booking.Status), map[string]any{
		"booking_id": booking.ID,
		"reference":  booking.BookingReference,
		"from":       from,
		"to":         booking.Status,
		"actor_role": actor.Role,
	})

	return booking, from, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, actor entity.Actor, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	booking, _, err := s.mutate(ctx, "cancel booking", actor, bookingID, func(b *entity.Booking) error {
		if !entity.CanTransition(actor.Role, b.Status, entity.BookingStatusCancelled) {
			return transitionError(b, actor.Role, entity.BookingStatusCancelled)
		}
		b.Status = entity.BookingStatusCancelled
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			b.CancellationReason = &reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response.BookingToResponse(booking), nil
}

// reschedulable lists the statuses a booking can be moved out of by a reschedule.
// Paid and in-progress bookings keep their slot so the payment flow stays intact.
var reschedulable = map[entity.BookingStatus]bool{
	entity.BookingStatusPending:     true,
	entity.BookingStatusConfirmed:   true,
	entity.BookingStatusRescheduled: true,
}

func (s *bookingService) RescheduleBooking(ctx context.Context, actor entity.Actor, bookingID string, req *request.RescheduleBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	day, start, err := parseSlot(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}

	booking, _, err := s.mutate(ctx, "reschedule booking", actor, bookingID, func(b *entity.Booking) error {
		if !actor.IsAdmin() && !(actor.Role == entity.RoleCustomer && b.CustomerID == actor.ID) {
			return apperror.Forbiddenf("only the booking's customer or an admin can reschedule")
		}
		if b.Status.IsTerminal() {
			return transitionError(b, actor.Role, entity.BookingStatusRescheduled)
		}
		if !reschedulable[b.Status] {
			return apperror.InvalidTransitionf("booking %s is %s and cannot be rescheduled", b.BookingReference, b.Status)
		}

		duration := b.Duration()
		b.BookingDate = day
		b.StartTime = start
		b.EndTime = start.Add(duration)
		b.Status = entity.BookingStatusRescheduled
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response.BookingToResponse(booking), nil
}

func (s *bookingService) UpdateStatus(ctx context.Context, actor entity.Actor, bookingID string, req *request.UpdateBookingStatusRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	to := entity.BookingStatus(req.Status)

	booking, _, err := s.mutate(ctx, "update booking status", actor, bookingID, func(b *entity.Booking) error {
		role := actor.Role
		// A participant acts in the capacity they hold on this booking.
		if !actor.IsAdmin() {
			if b.ProviderID == actor.ID {
				role = entity.RoleProvider
			} else {
				role = entity.RoleCustomer
			}
		}
		if !entity.CanTransition(role, b.Status, to) {
			return transitionError(b, role, to)
		}
		b.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response.BookingToResponse(booking), nil
}

func (s *bookingService) ArchiveBooking(ctx context.Context, actor entity.Actor, bookingID string) error {
	if !actor.IsAdmin() {
		return apperror.Forbiddenf("only admins can archive bookings")
	}

	id, err := parseID(bookingID, "booking")
	if err != nil {
		return err
	}

	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFoundf("booking %s not found", bookingID)
		}
		if !b.Status.IsTerminal() {
			return apperror.InvalidStatef("booking %s is %s; only finished bookings can be archived", b.BookingReference, b.Status)
		}
		return tx.Booking.SoftDelete(ctx, id, s.now())
	})
	if err != nil {
		return fail(s.log, "archive booking", err, zap.String("booking_id", bookingID))
	}

	s.log.Info("Booking archived", zap.String("booking_id", bookingID), zap.String("actor_id", actor.ID.String()))
	return nil
}
