package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects every externally configurable knob. The reservation and
// checkout TTLs, the cart item limit and the inactivity window are contract
// values (never hardcoded in the packages that enforce them).
type Config struct {
	Port string

	DatabaseDSN    string
	MigrationsPath string

	RedisAddr    string
	KafkaBrokers []string

	CartReservationTTL time.Duration
	CartInactivityTTL  time.Duration
	CartMaxLines       int
	CartSweepBatch     int
	CartSweepInterval  time.Duration

	CheckoutTTL           time.Duration
	CheckoutSweepBatch    int
	CheckoutSweepInterval time.Duration
	FlatShippingCents     int64

	ProviderName    string
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration
	WebhookSecret   string
	SuccessURL      string
	CancelURL       string
	Currency        string

	CartCacheTTL time.Duration
}

func loadConfig() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		DatabaseDSN: fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			getEnv("DATABASE_USER", "root"),
			getEnv("DATABASE_PASSWORD", "pass"),
			getEnv("DATABASE_HOST", "localhost"),
			getEnv("DATABASE_PORT", "5432"),
			getEnv("DATABASE_NAME", "storefront_db"),
		),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),

		CartReservationTTL: getDurationEnv("CART_RESERVATION_TTL", 15*time.Minute),
		CartInactivityTTL:  getDurationEnv("CART_INACTIVITY_TTL", 2*time.Hour),
		CartMaxLines:       getIntEnv("CART_MAX_ITEMS", 50),
		CartSweepBatch:     getIntEnv("CART_SWEEP_BATCH", 200),
		CartSweepInterval:  getDurationEnv("CART_SWEEP_INTERVAL", time.Minute),

		CheckoutTTL:           getDurationEnv("CHECKOUT_TTL", time.Hour),
		CheckoutSweepBatch:    getIntEnv("CHECKOUT_SWEEP_BATCH", 100),
		CheckoutSweepInterval: getDurationEnv("CHECKOUT_SWEEP_INTERVAL", 5*time.Minute),
		FlatShippingCents:     int64(getIntEnv("FLAT_SHIPPING_CENTS", 0)),

		ProviderName:    getEnv("PAYMENT_PROVIDER", "hostedpay"),
		ProviderBaseURL: getEnv("PAYMENT_PROVIDER_URL", "https://api.hostedpay.example"),
		ProviderAPIKey:  os.Getenv("PAYMENT_PROVIDER_API_KEY"),
		ProviderTimeout: getDurationEnv("PAYMENT_PROVIDER_TIMEOUT", 10*time.Second),
		WebhookSecret:   os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		SuccessURL:      getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CancelURL:       getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		Currency:        getEnv("CHECKOUT_CURRENCY", "usd"),

		CartCacheTTL: getDurationEnv("CART_CACHE_TTL", 15*time.Minute),
	}
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

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitNonEmpty(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
