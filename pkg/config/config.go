package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Storefront configures the shopper-facing service.
type Storefront struct {
	AppEnv   string
	LogLevel string
	HTTPPort string

	BackofficeURL  string
	RequestTimeout time.Duration
	JWTSecret      string

	// StorageBackend is one of "sqlite", "redis", "mongo" or "memory".
	StorageBackend string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	MongoURI       string
	MongoDBName    string
	SnapshotTTL    time.Duration

	MaxSessions        int
	StockFetchParallel int
	Currency           string
	ShutdownTimeout    time.Duration
}

// Backoffice configures the catalog, orders and payments service.
type Backoffice struct {
	AppEnv   string
	LogLevel string
	HTTPPort string

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string
	EventsTopic   string

	JWTSecret       string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	IntentTTL       time.Duration
	Currency        string
	// PaymentMode is "token" (outcome chosen by card token) or "random".
	PaymentMode string
}

func LoadStorefront() Storefront {
	return Storefront{
		AppEnv:             getEnv("APP_ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		BackofficeURL:      getEnv("BACKOFFICE_URL", "http://localhost:8081"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		JWTSecret:          getEnv("JWT_SECRET", "change-me"),
		StorageBackend:     getEnv("STORAGE_BACKEND", "sqlite"),
		SQLitePath:         getEnv("SQLITE_PATH", "storefront.db"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:        getEnv("MONGO_DB_NAME", "storefront"),
		SnapshotTTL:        getEnvDuration("SNAPSHOT_TTL", 30*24*time.Hour),
		MaxSessions:        getEnvInt("MAX_SESSIONS", 10000),
		StockFetchParallel: getEnvInt("STOCK_FETCH_PARALLEL", 8),
		Currency:           getEnv("CURRENCY", "eur"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func LoadBackoffice() Backoffice {
	return Backoffice{
		AppEnv:          getEnv("APP_ENV", "dev"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnvInt("DB_PORT", 5432),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "storefront"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./internal/db/migrations"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:    getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		EventsTopic:     getEnv("EVENTS_TOPIC", "order-events"),
		JWTSecret:       getEnv("JWT_SECRET", "change-me"),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		IntentTTL:       getEnvDuration("PAYMENT_INTENT_TTL", 30*time.Minute),
		Currency:        getEnv("CURRENCY", "eur"),
		PaymentMode:     getEnv("PAYMENT_MODE", "token"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
