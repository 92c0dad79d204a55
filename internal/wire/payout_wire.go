package wire

import (
	"service-marketplace/internal/adaptor"
	"service-marketplace/internal/data/entity"
	"service-marketplace/pkg/middleware"
	"service-marketplace/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayout(
	r chi.Router,
	payoutHandler *adaptor.PayoutHandler,
	config *utils.Config,
	limit limiters,
	log *zap.Logger,
) {
	r.Route("/payouts", func(r chi.Router) {
		r.Use(middleware.Authenticate(config.JWT.Secret, log))
		r.Use(limit.api)

		// GET /payouts/provider - the calling provider's payouts
		r.With(middleware.RequireRole(log, entity.RoleProvider)).Get("/provider", payoutHandler.ListMine)

		// Admin batch operations
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(log, entity.RoleAdmin))

			r.Post("/schedule", payoutHandler.Schedule)
			r.Post("/process", payoutHandler.Process)
			r.Post("/{id}/retry", payoutHandler.Retry)
		})
	})
}
