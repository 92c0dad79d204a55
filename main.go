// main.go
package main

import (
	"context"
	"log"
	"strings"
	"time"

	"service-marketplace/cmd"
	"service-marketplace/internal/data/repository"
	"service-marketplace/internal/gateway"
	"service-marketplace/internal/usecase"
	"service-marketplace/internal/wire"
	"service-marketplace/pkg/cache"
	"service-marketplace/pkg/database"
	"service-marketplace/pkg/mq"
	"service-marketplace/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Name, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
		zap.String("gateway", config.Gateway.Provider),
	)

	if config.Database.AutoMigrate {
		if err := database.RunMigrations(config.Database); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	repos := repository.NewRepository(db, logger)

	refs, err := utils.NewReferenceGenerator(config.Booking.NodeID)
	if err != nil {
		logger.Fatal("Failed to create reference generator", zap.Error(err))
	}

	opts := usecase.Options{
		Gateway: newGateway(config, logger),
		Refs:    refs,
	}

	// Redis and RabbitMQ are optional; without them dedupe falls back to the
	// webhook_events table and events are dropped.
	var rdb *redis.Client
	if config.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err = cache.NewRedisClient(ctx, config.Redis.URL)
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		opts.Cache = cache.NewRedisKeyCache(rdb, "webhook:")
		logger.Info("Redis connected")
	}

	if config.AMQP.URL != "" {
		publisher, err := mq.NewPublisher(config.AMQP.URL, config.AMQP.Exchange)
		if err != nil {
			logger.Fatal("Failed to connect to rabbitmq", zap.Error(err))
		}
		defer publisher.Close()
		opts.Publisher = publisher
		logger.Info("Event publisher ready", zap.String("exchange", config.AMQP.Exchange))
	}

	app, err := wire.Wiring(repos, config, opts, rdb, logger)
	if err != nil {
		logger.Fatal("Failed to wire application", zap.Error(err))
	}

	if err := cmd.APIServer(app.Router, config.App.Port, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
	}
}

func newGateway(config *utils.Config, logger *zap.Logger) gateway.Gateway {
	switch strings.ToLower(config.Gateway.Provider) {
	case "razorpay":
		if config.Gateway.KeyID == "" || config.Gateway.KeySecret == "" || config.Gateway.WebhookSecret == "" {
			logger.Fatal("GATEWAY_KEY_ID, GATEWAY_KEY_SECRET and GATEWAY_WEBHOOK_SECRET are required for razorpay")
		}
		return gateway.NewRazorpay(config.Gateway.KeyID, config.Gateway.KeySecret, config.Gateway.WebhookSecret, logger)
	case "sandbox":
		logger.Warn("Using the sandbox payment gateway; no money moves")
		return gateway.NewSandbox(config.Gateway.WebhookSecret)
	default:
		logger.Fatal("Unknown GATEWAY_PROVIDER", zap.String("provider", config.Gateway.Provider))
		return nil
	}
}
