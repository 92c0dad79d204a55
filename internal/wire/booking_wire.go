package wire

import (
	"service-marketplace/internal/adaptor"
	"service-marketplace/internal/data/entity"
	"service-marketplace/pkg/middleware"
	"service-marketplace/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	config *utils.Config,
	limit limiters,
	log *zap.Logger,
) {
	r.Route("/bookings", func(r chi.Router) {
		r.Use(middleware.Authenticate(config.JWT.Secret, log))
		r.Use(limit.api)

		// POST /bookings - customers book a service
		r.With(middleware.RequireRole(log, entity.RoleCustomer)).Post("/", bookingHandler.CreateBooking)

		// GET /bookings - the caller's own bookings
		r.Get("/", bookingHandler.ListBookings)

		// GET /bookings/{id} - participants and admins
		r.Get("/{id}", bookingHandler.GetBooking)

		r.With(middleware.RequireRole(log, entity.RoleCustomer, entity.RoleProvider, entity.RoleAdmin)).
			Put("/{id}/cancel", bookingHandler.CancelBooking)
		r.With(middleware.RequireRole(log, entity.RoleCustomer, entity.RoleAdmin)).
			Put("/{id}/reschedule", bookingHandler.RescheduleBooking)
		r.With(middleware.RequireRole(log, entity.RoleProvider, entity.RoleAdmin)).
			Put("/{id}", bookingHandler.UpdateStatus)

		// DELETE /bookings/{id} - admin archive of a finished booking
		r.With(middleware.RequireRole(log, entity.RoleAdmin)).Delete("/{id}", bookingHandler.ArchiveBooking)
	})
}
