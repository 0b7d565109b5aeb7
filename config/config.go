package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
)

type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Session  SessionConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// BackendConfig points at the inventory/transaction backend the till settles against.
type BackendConfig struct {
	URL            string
	RequestTimeout time.Duration
}

type SessionConfig struct {
	TillID   string
	TTL      time.Duration
	Currency currency.Unit
}

// DatabaseConfig configures the sales journal. An empty URL disables it.
type DatabaseConfig struct {
	URL string
}

// RedisConfig configures session persistence. An empty Addr keeps the session in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures till events. No brokers means events are not published.
type KafkaConfig struct {
	Brokers       []string
	TopicTill     string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	unit, err := currency.ParseISO(strings.ToUpper(getEnv("CURRENCY", "EUR")))
	if err != nil {
		return nil, fmt.Errorf("invalid CURRENCY: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8081"),
			Env:  getEnv("ENV", "development"),
		},
		Backend: BackendConfig{
			URL:            strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
			RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_MS", 5000)) * time.Millisecond,
		},
		Session: SessionConfig{
			TillID:   getEnv("TILL_ID", "till-1"),
			TTL:      time.Duration(getEnvInt("SESSION_TTL_SECONDS", 12*60*60)) * time.Second,
			Currency: unit,
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			TopicTill:     getEnv("KAFKA_TOPIC_TILL_EVENTS", "till-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "till-journal-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, till=%s, backend=%s",
		cfg.Server.Env, cfg.Server.Port, cfg.Session.TillID, cfg.Backend.URL)
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt falls back to defaultVal for missing or malformed values, and for zero
// when the default is positive.
func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n < 0 || (n == 0 && defaultVal > 0) {
		return defaultVal
	}
	return n
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
