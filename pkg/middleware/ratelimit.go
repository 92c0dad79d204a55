package middleware

import (
	"fmt"
	"net/http"

	"service-marketplace/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// RateLimit limits requests per caller, or per client IP for anonymous requests.
// rateStr uses the limiter format, e.g. "120-M". With a nil client the counters
// live in process memory.
func RateLimit(rateStr, routeID string, client *redis.Client, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q for %s: %w", rateStr, routeID, err)
	}

	opts := limiter.StoreOptions{
		Prefix:          "rate_limiter:" + routeID,
		MaxRetry:        3,
		CleanUpInterval: rate.Period,
	}

	var store limiter.Store
	if client != nil {
		store, err = redisstore.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("create redis store for %s: %w", routeID, err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}

	instance := limiter.New(store, rate)

	mw := stdlib.NewMiddleware(instance,
		stdlib.WithKeyGetter(func(r *http.Request) string {
			if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
				return "user:" + userID.String()
			}
			return "ip:" + instance.GetIPKey(r)
		}),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("Rate limit reached",
				zap.String("route", routeID),
				zap.String("path", r.URL.Path))
			utils.ResponseTooManyRequests(w, "Too many requests")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("Rate limiter store failed", zap.String("route", routeID), zap.Error(err))
			utils.ResponseInternalError(w, "Internal server error")
		}),
	)

	return mw.Handler, nil
}
