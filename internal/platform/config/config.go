package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string

	OrdersPostgresDSN   string
	PaymentsPostgresDSN string

	// RabbitURL switches the event transport from the in-process bus to
	// RabbitMQ when set.
	RabbitURL string

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	OutboxLeaseDuration  time.Duration
	OutboxMaxErrorLength int
	OutboxMaxAttempts    int

	EnablePaymentResultConsumer bool
	EnableOrderCreatedConsumer  bool
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "checkout"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,

		OrdersPostgresDSN:   os.Getenv("ORDERS_POSTGRES_DSN"),
		PaymentsPostgresDSN: os.Getenv("PAYMENTS_POSTGRES_DSN"),
		RabbitURL:           os.Getenv("RABBITMQ_URL"),

		OutboxPollInterval:   time.Duration(envInt("OUTBOX_POLL_INTERVAL_MS", 500)) * time.Millisecond,
		OutboxBatchSize:      envInt("OUTBOX_BATCH_SIZE", 50),
		OutboxLeaseDuration:  time.Duration(envInt("OUTBOX_LEASE_SECONDS", 30)) * time.Second,
		OutboxMaxErrorLength: envInt("OUTBOX_MAX_ERROR_LENGTH", 2000),
		OutboxMaxAttempts:    envInt("OUTBOX_MAX_ATTEMPTS", 25),

		EnablePaymentResultConsumer: envBool("ENABLE_PAYMENT_RESULT_CONSUMER", true),
		EnableOrderCreatedConsumer:  envBool("ENABLE_ORDER_CREATED_CONSUMER", true),
	}, nil
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
