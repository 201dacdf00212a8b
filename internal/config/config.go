package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort           string
	GraphQLURL         string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	// JWTSecret verifies bearer tokens locally. Empty means each new token
	// is confirmed with the API.
	JWTSecret string

	RedisAddr     string
	RedisPassword string
	QueryCacheTTL time.Duration

	KafkaBrokers     []string
	OrderEventsTopic string
	OrderEventsGroup string

	RefetchAfterMutation bool
	BreakerMaxFailures   uint32
	BreakerOpenTimeout   time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the environment, after an optional .env file in the working
// directory. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		GraphQLURL:         getEnv("GRAPHQL_URL", "http://localhost:4000/graphql"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 15*time.Second, &errs),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		MaxRequestBodySize: 1 << 20, // 1MB

		JWTSecret: getEnv("JWT_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		QueryCacheTTL: getDuration("QUERY_CACHE_TTL", 5*time.Minute, &errs),

		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order-events"),
		OrderEventsGroup: getEnv("ORDER_EVENTS_GROUP", "dinecart"),

		RefetchAfterMutation: getBool("REFETCH_AFTER_MUTATION", true, &errs),
		BreakerMaxFailures:   uint32(getInt("BREAKER_MAX_FAILURES", 5, &errs)),
		BreakerOpenTimeout:   getDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second, &errs),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if cfg.GraphQLURL == "" {
		errs = append(errs, errors.New("GRAPHQL_URL is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// OrderEventsEnabled is true when a Kafka broker is configured.
func (c *Config) OrderEventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid number %q", key, raw))
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid bool %q", key, raw))
		return defaultValue
	}
	return b
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
