package usecase

import (
	"time"

	"service-marketplace/internal/data/repository"
	"service-marketplace/internal/gateway"
	"service-marketplace/pkg/cache"
	"service-marketplace/pkg/mq"
	"service-marketplace/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Booking BookingService
	Payment PaymentService
	Webhook WebhookService
	Payout  PayoutService
}

// Options carries collaborators that are not repositories. Nil Cache, Publisher
// and Clock fall back to no-op implementations and time.Now.
type Options struct {
	Gateway   gateway.Gateway
	Refs      *utils.ReferenceGenerator
	Cache     cache.KeyCache
	Publisher mq.Publisher
	Clock     func() time.Time
}

func NewService(repo *repository.Repository, config *utils.Config, opts Options, log *zap.Logger) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopKeyCache{}
	}
	if opts.Publisher == nil {
		opts.Publisher = mq.NoopPublisher{}
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	events := newEventEmitter(opts.Publisher, log)

	return &Service{
		Booking: NewBookingService(repo, opts.Refs, config.Booking, opts.Clock, events, log),
		Payment: NewPaymentService(repo, opts.Gateway, config.Gateway.Timeout, config.Payout.Currency, opts.Clock, events, log),
		Webhook: NewWebhookService(repo, opts.Gateway, opts.Cache, opts.Clock, events, log),
		Payout:  NewPayoutService(repo, opts.Gateway, config.Payout, config.Gateway.Timeout, opts.Clock, events, log),
	}
}
