package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/orders"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/fjod/go_cart/checkout-pipeline/internal/service"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	Mongo         repository.MongoConfig
	RedisAddr     string
	RedisPassword string
	Postgres      orders.Credentials

	KafkaBrokers    []string
	KafkaOrderTopic string

	Checkout service.Config

	OrderPendingTTL        time.Duration
	ReservationOrphanGrace time.Duration
	SweepInterval          time.Duration
}

// Load reads the environment. Unset variables fall back to defaults; values
// that do not parse are an error.
func Load() (*Config, error) {
	p := &parser{}
	mongoPool := p.integer("MONGO_MAX_POOL_SIZE", 100)
	if mongoPool < 1 {
		p.fail(fmt.Errorf("MONGO_MAX_POOL_SIZE must be at least 1, got %d", mongoPool))
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     p.duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		Mongo: repository.MongoConfig{
			URI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:    getEnv("MONGO_DB", "checkout"),
			MaxPoolSize: uint64(max(mongoPool, 1)),
			PingTimeout: p.duration("MONGO_PING_TIMEOUT", 5*time.Second),
		},
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		Postgres: orders.Credentials{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     p.integer("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "orders"),
		},

		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaOrderTopic: getEnv("KAFKA_ORDER_TOPIC", "order-events"),

		Checkout: service.Config{
			LockTTL:           p.duration("LOCK_TTL", 5*time.Second),
			LockMaxRetries:    p.integer("LOCK_MAX_RETRIES", 3),
			LockRetryDelay:    p.duration("LOCK_RETRY_DELAY", 100*time.Millisecond),
			PlaceOrderTimeout: p.duration("CHECKOUT_PLACE_ORDER_TIMEOUT", 10*time.Second),
			UnwindTimeout:     p.duration("CHECKOUT_UNWIND_TIMEOUT", 5*time.Second),
			Currency:          getEnv("CURRENCY", "USD"),
		},

		OrderPendingTTL:        p.duration("ORDER_PENDING_TTL", 30*time.Minute),
		ReservationOrphanGrace: p.duration("RESERVATION_ORPHAN_GRACE", 5*time.Minute),
		SweepInterval:          p.duration("SWEEP_INTERVAL", time.Minute),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must name at least one broker")
	}
	if c.Checkout.LockMaxRetries < 1 {
		return fmt.Errorf("LOCK_MAX_RETRIES must be at least 1, got %d", c.Checkout.LockMaxRetries)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.ReservationOrphanGrace <= c.Checkout.PlaceOrderTimeout {
		return fmt.Errorf("RESERVATION_ORPHAN_GRACE (%s) must exceed CHECKOUT_PLACE_ORDER_TIMEOUT (%s)",
			c.ReservationOrphanGrace, c.Checkout.PlaceOrderTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return defaultValue
	}
	return d
}

func (p *parser) integer(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return defaultValue
	}
	return n
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
