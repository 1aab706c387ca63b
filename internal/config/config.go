package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	AuthJWTSecret    string
	AuthCookieSecure bool

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	ApprovalStore string

	BootstrapDemoCreator bool

	AI        AIConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
	Payments  PaymentsConfig
}

// AIConfig configures the external image generation provider.
type AIConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// RateLimitConfig configures redis-backed generation throttling.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GenerationRate    float64
	GenerationBurst   int
	ProductLockTTL    time.Duration
	SchedulerGuardTTL time.Duration
	SchedulerGuardKey string
}

// SchedulerConfig configures the reservation reconciler.
type SchedulerConfig struct {
	Enabled        bool
	Interval       time.Duration
	ReservationTTL time.Duration
	SweepLimit     int
}

// PaymentsConfig configures the inbound payment webhook.
type PaymentsConfig struct {
	WebhookSecret string
}

const (
	ApprovalStoreDB     = "db"
	ApprovalStoreMemory = "memory"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "genpire"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthCookieSecure: authCookieSecure,
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "genpire"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		ApprovalStore: normalizeApprovalStore(getenv("APPROVAL_STORE", ApprovalStoreDB)),

		BootstrapDemoCreator: getenvBool("BOOTSTRAP_DEMO_CREATOR", environment != "production"),

		AI: AIConfig{
			Provider: strings.ToLower(getenv("AI_PROVIDER", "stub")),
			BaseURL:  strings.TrimRight(getenv("AI_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:   strings.TrimSpace(getenv("AI_API_KEY", "")),
			Model:    getenv("AI_MODEL", "gpt-image-1"),
			Timeout:  time.Duration(getenvInt("AI_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:     getenv("REDIS_PASSWORD", ""),
			RedisDB:           getenvInt("REDIS_DB", 0),
			GenerationRate:    getenvFloat("GENERATION_RATE_PER_SECOND", 0.5),
			GenerationBurst:   getenvInt("GENERATION_BURST", 3),
			ProductLockTTL:    time.Duration(getenvInt("GENERATION_LOCK_TTL_SECONDS", 120)) * time.Second,
			SchedulerGuardTTL: time.Duration(getenvInt("SCHEDULER_GUARD_TTL_SECONDS", 60)) * time.Second,
			SchedulerGuardKey: getenv("SCHEDULER_GUARD_KEY", "genpire:scheduler:reconciler"),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getenvBool("SCHEDULER_ENABLED", true),
			Interval:       time.Duration(getenvInt("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,
			ReservationTTL: time.Duration(getenvInt("RESERVATION_TTL_SECONDS", 600)) * time.Second,
			SweepLimit:     getenvInt("RESERVATION_SWEEP_LIMIT", 100),
		},
		Payments: PaymentsConfig{
			WebhookSecret: strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
		},
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCostsHolder),
)

func normalizeApprovalStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ApprovalStoreMemory:
		return ApprovalStoreMemory
	default:
		return ApprovalStoreDB
	}
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
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
