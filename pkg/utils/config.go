package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Gateway   GatewayConfig
	Booking   BookingConfig
	Payout    PayoutConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
}

type DatabaseConfig struct {
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	MaxConns    int32
	AutoMigrate bool
}

type JWTConfig struct {
	Secret string
}

type RedisConfig struct {
	URL string
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type GatewayConfig struct {
	Provider      string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

type BookingConfig struct {
	AutoConfirm bool
	NodeID      int64
}

type PayoutConfig struct {
	PlatformFeePercent decimal.Decimal
	Currency           string
	Delay              time.Duration
	MinAgeHours        int
}

type RateLimitConfig struct {
	Webhook string
	API     string
}

// LoadConfig reads .env when present and lets environment variables override it.
func LoadConfig() (*Config, error) {
	viper.SetDefault("APP_NAME", "service-marketplace")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("DB_AUTO_MIGRATE", true)
	viper.SetDefault("AMQP_EXCHANGE", "marketplace.events")
	viper.SetDefault("GATEWAY_PROVIDER", "sandbox")
	viper.SetDefault("GATEWAY_TIMEOUT", "10s")
	viper.SetDefault("PLATFORM_FEE_PERCENT", "10")
	viper.SetDefault("PAYOUT_CURRENCY", "INR")
	viper.SetDefault("PAYOUT_DELAY", "48h")
	viper.SetDefault("PAYOUT_MIN_AGE_HOURS", 24)
	viper.SetDefault("BOOKING_AUTO_CONFIRM", false)
	viper.SetDefault("BOOKING_NODE_ID", 1)
	viper.SetDefault("RATE_LIMIT_WEBHOOK", "300-M")
	viper.SetDefault("RATE_LIMIT_API", "120-M")

	if _, err := os.Stat(".env"); err == nil {
		viper.SetConfigFile(".env")
		viper.SetConfigType("env")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	viper.AutomaticEnv()

	feePercent, err := decimal.NewFromString(viper.GetString("PLATFORM_FEE_PERCENT"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_PERCENT: %w", err)
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %s", feePercent)
	}

	config := &Config{
		App: AppConfig{
			Name:    viper.GetString("APP_NAME"),
			Port:    viper.GetString("PORT"),
			Debug:   viper.GetBool("DEBUG"),
			LogPath: viper.GetString("LOG_PATH"),
		},
		Database: DatabaseConfig{
			Host:        viper.GetString("DB_HOST"),
			Port:        viper.GetString("DB_PORT"),
			Name:        viper.GetString("DB_NAME"),
			User:        viper.GetString("DB_USER"),
			Password:    viper.GetString("DB_PASS"),
			MaxConns:    viper.GetInt32("DB_MAX_CONNS"),
			AutoMigrate: viper.GetBool("DB_AUTO_MIGRATE"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("REDIS_URL"),
		},
		AMQP: AMQPConfig{
			URL:      viper.GetString("AMQP_URL"),
			Exchange: viper.GetString("AMQP_EXCHANGE"),
		},
		Gateway: GatewayConfig{
			Provider:      viper.GetString("GATEWAY_PROVIDER"),
			KeyID:         viper.GetString("GATEWAY_KEY_ID"),
			KeySecret:     viper.GetString("GATEWAY_KEY_SECRET"),
			WebhookSecret: viper.GetString("GATEWAY_WEBHOOK_SECRET"),
			Timeout:       viper.GetDuration("GATEWAY_TIMEOUT"),
		},
		Booking: BookingConfig{
			AutoConfirm: viper.GetBool("BOOKING_AUTO_CONFIRM"),
			NodeID:      viper.GetInt64("BOOKING_NODE_ID"),
		},
		Payout: PayoutConfig{
			PlatformFeePercent: feePercent,
			Currency:           viper.GetString("PAYOUT_CURRENCY"),
			Delay:              viper.GetDuration("PAYOUT_DELAY"),
			MinAgeHours:        viper.GetInt("PAYOUT_MIN_AGE_HOURS"),
		},
		RateLimit: RateLimitConfig{
			Webhook: viper.GetString("RATE_LIMIT_WEBHOOK"),
			API:     viper.GetString("RATE_LIMIT_API"),
		},
	}

	if config.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return config, nil
}
