package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "HTTP_ADDR", "SERVICE_CHARGE_PERCENT", "ALLOW_MOCK_PAYMENT", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8086", cfg.HTTPAddr)
	assert.Equal(t, 7.0, cfg.ServiceChargePercent)
	assert.True(t, cfg.AllowMockPaymentTrigger)
	assert.Nil(t, cfg.CorsAllowedOrigins)
	assert.Equal(t, "auto", cfg.ObjectStore.Region)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SERVICE_CHARGE_PERCENT", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("PAYMENT_CALLBACK_RETRY_DELAY", "500ms")
	t.Setenv("PAYMENT_CALLBACK_MAX_RETRIES", "nope")
	t.Setenv("ALLOW_MOCK_PAYMENT", "")
	t.Setenv("OBJECT_STORE_BUCKET", "receipts")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 10.0, cfg.ServiceChargePercent)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CorsAllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.CallbackRetryDelay)
	assert.Equal(t, 5, cfg.CallbackMaxRetries)
	assert.False(t, cfg.AllowMockPaymentTrigger)
	assert.Equal(t, "receipts", cfg.ObjectStore.Bucket)
}

func TestValidate(t *testing.T) {
	cfg := Config{Env: "production", RabbitMQWorkerMode: "sometimes"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "JWT_SECRET")
	assert.ErrorContains(t, err, "PROMPTPAY_ID")
	assert.ErrorContains(t, err, "DATABASE_URL")
	assert.ErrorContains(t, err, "RABBITMQ_WORKER_MODE")

	ok := Config{Env: "development", JWTSecret: "s", PromptPayID: "0812345678", RabbitMQWorkerMode: "daemon"}
	assert.NoError(t, ok.Validate())
}
