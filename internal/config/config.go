package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"dinein-service/internal/storage"
)

type Config struct {
	Env                string
	LogLevel           string
	HTTPAddr           string
	DatabaseURL        string
	JWTSecret          string
	RabbitMQURL        string
	RabbitMQWorkerMode string
	CorsAllowedOrigins []string
	ShutdownTimeout    time.Duration

	ClientBaseURL           string
	PromptPayID             string
	ServiceChargePercent    float64
	PaymentCallbackSecret   string
	CallbackMaxRetries      int
	CallbackRetryDelay      time.Duration
	RestaurantName          string
	RestaurantPhone         string
	ReceiptTimeZone         string
	SeedTables              int
	AllowMockPaymentTrigger bool

	ObjectStore storage.Config
}

func Load() Config {
	cfg := Config{
		Env:                getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8086"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQWorkerMode: getEnv("RABBITMQ_WORKER_MODE", "daemon"),
		CorsAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		ClientBaseURL:         getEnv("CLIENT_BASE_URL", "http://localhost:3000"),
		PromptPayID:           getEnv("PROMPTPAY_ID", ""),
		ServiceChargePercent:  getEnvFloat("SERVICE_CHARGE_PERCENT", 7),
		PaymentCallbackSecret: getEnv("PAYMENT_CALLBACK_SECRET", ""),
		CallbackMaxRetries:    int(getEnvInt64("PAYMENT_CALLBACK_MAX_RETRIES", 5)),
		CallbackRetryDelay:    getEnvDuration("PAYMENT_CALLBACK_RETRY_DELAY", 2*time.Second),
		RestaurantName:        getEnv("RESTAURANT_NAME", ""),
		RestaurantPhone:       getEnv("RESTAURANT_PHONE", ""),
		ReceiptTimeZone:       getEnv("RECEIPT_TIMEZONE", "Asia/Bangkok"),
		SeedTables:            int(getEnvInt64("SEED_TABLES", 10)),

		ObjectStore: storage.Config{
			Endpoint:        getEnv("OBJECT_STORE_ENDPOINT", ""),
			Region:          getEnv("OBJECT_STORE_REGION", "auto"),
			AccessKeyID:     getEnv("OBJECT_STORE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("OBJECT_STORE_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("OBJECT_STORE_BUCKET", ""),
			PublicBaseURL:   getEnv("OBJECT_STORE_PUBLIC_BASE_URL", ""),
			StorageClass:    getEnv("OBJECT_STORE_STORAGE_CLASS", "STANDARD"),
			KeyPrefix:       getEnv("OBJECT_STORE_KEY_PREFIX", "dinein"),
		},
	}
	cfg.AllowMockPaymentTrigger = getEnvBool("ALLOW_MOCK_PAYMENT", !cfg.IsProduction())

	if cfg.ServiceChargePercent < 0 {
		cfg.ServiceChargePercent = 7
	}
	if cfg.CallbackMaxRetries < 0 {
		cfg.CallbackMaxRetries = 0
	}
	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects configurations that cannot serve traffic.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if strings.TrimSpace(c.PromptPayID) == "" {
		errs = append(errs, errors.New("PROMPTPAY_ID is required"))
	}
	if c.IsProduction() && strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	switch c.RabbitMQWorkerMode {
	case "daemon", "disabled":
	default:
		errs = append(errs, errors.New("RABBITMQ_WORKER_MODE must be daemon or disabled"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
