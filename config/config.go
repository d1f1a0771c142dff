package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"stock-ledger-service/pkg/database"

	"go.uber.org/zap"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env            string
	Port           string
	GRPCHealthPort string
	Store          string
	DB             DB
	Redis          Redis
	Kafka          Kafka
	Ledger         Ledger
}

type DB struct {
	database.Config
}

type Redis struct {
	Enabled    bool
	Addr       string
	Password   string
	DB         int
	TTLSeconds int
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Ledger holds the reservation engine knobs.
type Ledger struct {
	MaxRetries   int
	TxTimeout    time.Duration
	MaxRangeDays int
	MaxBatch     int
	MaxQuantity  int
}

func Load(log *zap.Logger) *Config {
	cfg := &Config{
		Env:            getEnvDefault("ENV", "production"),
		Port:           getEnv("APP_PORT", log),
		GRPCHealthPort: getEnvDefault("GRPC_HEALTH_PORT", ":9090"),
		Store:          getEnvDefault("LEDGER_STORE", StorePostgres),
		Redis: Redis{
			Enabled:    getEnvDefault("REDIS_ENABLED", "false") == "true",
			Addr:       getEnvDefault("REDIS_ADDR", "localhost:6379"),
			Password:   getEnvDefault("REDIS_PASSWORD", ""),
			DB:         atoiDefault(getEnvDefault("REDIS_DB", "0"), 0),
			TTLSeconds: atoiDefault(getEnvDefault("CACHE_TTL_SECONDS", "30"), 30),
		},
		Kafka: Kafka{
			Enabled: getEnvDefault("KAFKA_ENABLED", "false") == "true",
			Brokers: splitAndTrim(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvDefault("KAFKA_TOPIC_LEDGER", "stock-ledger.events"),
		},
		Ledger: Ledger{
			MaxRetries:   atoiDefault(getEnvDefault("LEDGER_MAX_RETRIES", "3"), 3),
			TxTimeout:    durationDefault(getEnvDefault("LEDGER_TX_TIMEOUT", "5s"), 5*time.Second),
			MaxRangeDays: atoiDefault(getEnvDefault("LEDGER_MAX_RANGE_DAYS", "366"), 366),
			MaxBatch:     atoiDefault(getEnvDefault("LEDGER_MAX_BATCH", "10000"), 10000),
			MaxQuantity:  atoiDefault(getEnvDefault("LEDGER_MAX_QUANTITY", "1000000"), 1000000),
		},
	}

	// in-memory хранилище не требует параметров БД
	if cfg.Store == StorePostgres {
		cfg.DB = DB{
			Config: database.Config{
				Host:            getEnv("DB_HOST", log),
				Port:            getEnv("DB_PORT", log),
				User:            getEnv("DB_USER", log),
				Password:        getEnv("DB_PASSWORD", log),
				Name:            getEnv("DB_NAME", log),
				SSLMode:         getEnv("DB_SSLMODE", log),
				MaxOpenConns:    atoiDefault(getEnvDefault("DB_MAX_OPEN_CONNS", "20"), 20),
				MaxIdleConns:    atoiDefault(getEnvDefault("DB_MAX_IDLE_CONNS", "5"), 5),
				ConnMaxLifetime: durationDefault(getEnvDefault("DB_CONN_MAX_LIFETIME", "5m"), 5*time.Minute),
			},
		}
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		log.Error("KAFKA_ENABLED=true, но KAFKA_BROKERS пуст")
		panic("missing required environment variable: KAFKA_BROKERS")
	}

	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func getEnvDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return val
	}
	return def
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func durationDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}
