package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	LogLevel          string
	LogFormat         string
	OTLPEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OTLPSamplingRatio float64

	DBType               string
	DBHost               string
	DBPort               string
	DBName               string
	DBUser               string
	DBPassword           string
	DBSSLMode            string
	DBPath               string
	DBMaxIdleConn        int
	DBMaxOpenConn        int
	DBConnMaxLifetime    int
	DBConnMaxIdleTime    int
	// DBSlowQueryThreshold is the duration above which a statement is logged as a warning.
	DBSlowQueryThreshold time.Duration

	RunMigrations bool
	NodeID        int64

	SchedulerEnabled bool
	// SchedulerJobs restricts the background jobs that run; empty means all.
	SchedulerJobs    []string
	SweepEnabled     bool
	SweepInterval    time.Duration
	SweepBatch       int

	PaymentProvider      string
	MerchantAccount      string
	PaymentWebhookSecret string
	PaymentBaseURL       string
	PaymentSessionTTL    time.Duration
	OutboxRelayInterval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:              getenv("APP_SERVICE", "invoicecore"),
		AppVersion:           getenv("APP_VERSION", "0.1.0"),
		Environment:          getenv("ENVIRONMENT", "development"),
		LogLevel:             strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:            strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OTLPEnabled:          getenvBool("OTEL_ENABLED", true),
		OTLPEndpoint:         getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol:         strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OTLPSamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:               getenv("DATABASE_TYPE", "postgres"),
		DBHost:               getenv("DATABASE_HOST", "localhost"),
		DBPort:               getenv("DATABASE_PORT", "5432"),
		DBName:               getenv("DATABASE_NAME", "invoicecore"),
		DBUser:               getenv("DATABASE_USER", "postgres"),
		DBPassword:           getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:            getenv("DATABASE_SSLMODE", "disable"),
		DBPath:               getenv("DATABASE_PATH", "invoicecore.db"),
		DBMaxIdleConn:        getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:        getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime:    getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:    getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBSlowQueryThreshold: getenvDuration("DATABASE_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		RunMigrations:        getenvBool("RUN_MIGRATIONS", true),
		NodeID:               getenvInt64("SNOWFLAKE_NODE_ID", 1),
		SchedulerEnabled:     getenvBool("SCHEDULER_ENABLED", true),
		SchedulerJobs:        getenvList("SCHEDULER_JOBS"),
		SweepEnabled:         getenvBool("OVERDUE_SWEEP_ENABLED", true),
		SweepInterval:        getenvDuration("OVERDUE_SWEEP_INTERVAL", 5*time.Minute),
		SweepBatch:           getenvInt("OVERDUE_SWEEP_BATCH", 100),
		PaymentProvider:      strings.ToLower(strings.TrimSpace(getenv("PAYMENT_PROVIDER", "sandbox"))),
		MerchantAccount:      strings.TrimSpace(getenv("PAYMENT_MERCHANT_ACCOUNT", "")),
		PaymentWebhookSecret: strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
		PaymentBaseURL:       strings.TrimSpace(getenv("PAYMENT_BASE_URL", "")),
		PaymentSessionTTL:    getenvDuration("PAYMENT_SESSION_TTL", 24*time.Hour),
		OutboxRelayInterval:  getenvDuration("OUTBOX_RELAY_INTERVAL", 10*time.Second),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, value, def)
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, value, def)
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %g", key, value, def)
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Printf("[config] invalid %s=%q, using default %s", key, value, def)
		return def
	}
	return parsed
}
