package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	Metrics           ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Stripe            StripeConfig
	Purchases         PurchasesConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIBaseURL                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
	RetryAttempts             uint
}

type PurchasesConfig struct {
	ClientBaseURL       string
	DefaultCurrency     string
	ProviderTimeout     time.Duration
	StatusCountsPending bool
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
	WebhookDedupeSize   int
}

type JobsConfig struct {
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	stripeTimeout := getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second)

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "course-purchases-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		Metrics: ServerConfig{
			Host: getEnv("METRICS_HOST", "0.0.0.0"),
			Port: getEnv("METRICS_PORT", "9100"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", getEnv("WEBHOOK_ENDPOINT_SECRET", "")),
			APIBaseURL:                getEnv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               stripeTimeout,
			RetryAttempts:             uint(getIntEnv("STRIPE_RETRY_ATTEMPTS", 3)),
		},
		Purchases: PurchasesConfig{
			ClientBaseURL:       strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:5173"), "/"),
			DefaultCurrency:     strings.ToLower(getEnv("STRIPE_CURRENCY", "vnd")),
			ProviderTimeout:     stripeTimeout,
			StatusCountsPending: getBoolEnv("PURCHASES_STATUS_COUNTS_PENDING", true),
			ReconcileStaleAfter: getMinutesEnv("PURCHASES_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("PURCHASES_JOB_BATCH_SIZE", 100)),
			WebhookDedupeSize:   getIntEnv("PURCHASES_WEBHOOK_DEDUPE_SIZE", 1024),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("PURCHASES_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
