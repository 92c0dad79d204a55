// internal/wire/wire.go
package wire

import (
	"fmt"
	"net/http"
	"time"

	"service-marketplace/internal/adaptor"
	"service-marketplace/internal/data/repository"
	"service-marketplace/internal/usecase"
	"service-marketplace/pkg/middleware"
	"service-marketplace/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired router and services.
type App struct {
	Router  *chi.Mux
	Service *usecase.Service
}

// Wiring builds services, handlers and routes. A nil redis client keeps rate
// limit counters in memory.
func Wiring(repo *repository.Repository, config *utils.Config, opts usecase.Options, rdb *redis.Client, logger *zap.Logger) (*App, error) {
	service := usecase.NewService(repo, config, opts, logger)
	handler := adaptor.NewHandler(service, logger)

	router, err := setupRouter(handler, config, rdb, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Router:  router,
		Service: service,
	}, nil
}

type limiters struct {
	api     func(http.Handler) http.Handler
	webhook func(http.Handler) http.Handler
}

func setupRouter(
	handler *adaptor.Handler,
	config *utils.Config,
	rdb *redis.Client,
	logger *zap.Logger,
) (*chi.Mux, error) {
	api, err := middleware.RateLimit(config.RateLimit.API, "api", rdb, logger)
	if err != nil {
		return nil, fmt.Errorf("api rate limit: %w", err)
	}
	webhook, err := middleware.RateLimit(config.RateLimit.Webhook, "webhook", rdb, logger)
	if err != nil {
		return nil, fmt.Errorf("webhook rate limit: %w", err)
	}
	limit := limiters{api: api, webhook: webhook}

	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics())
	r.Use(chimw.Timeout(60 * time.Second))

	// Apply routes
	wireBooking(r, handler.Booking, config, limit, logger)
	wirePayment(r, handler.Payment, handler.Webhook, config, limit, logger)
	wirePayout(r, handler.Payout, config, limit, logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r, nil
}
