package wire

import (
	"service-marketplace/internal/adaptor"
	"service-marketplace/internal/data/entity"
	"service-marketplace/pkg/middleware"
	"service-marketplace/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayment(
	r chi.Router,
	paymentHandler *adaptor.PaymentHandler,
	webhookHandler *adaptor.WebhookHandler,
	config *utils.Config,
	limit limiters,
	log *zap.Logger,
) {
	r.Route("/payments", func(r chi.Router) {
		// POST /payments/webhook - gateway callbacks, authenticated by signature
		r.With(limit.webhook).Post("/webhook", webhookHandler.Receive)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(config.JWT.Secret, log))
			r.Use(limit.api)

			r.With(middleware.RequireRole(log, entity.RoleCustomer)).Post("/create-intent", paymentHandler.CreateIntent)
			r.With(middleware.RequireRole(log, entity.RoleCustomer)).Post("/confirm", paymentHandler.Confirm)
			r.With(middleware.RequireRole(log, entity.RoleProvider, entity.RoleAdmin)).Post("/refund", paymentHandler.Refund)
			r.Get("/{id}", paymentHandler.GetPayment)
		})
	})
}
