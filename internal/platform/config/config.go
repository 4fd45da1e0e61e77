package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                 string
	DatabaseURL          string
	JWTSecret            string
	Environment          string
	LogLevel             string
	CurrencyCode         string
	CurrencySymbol       string
	SeedTenantName       string
	PayslipDir           string
	PayslipEncryptionKey string
	RunMigrations        bool
	RunSeed              bool
	MaxBodyBytes         int64
	RateLimitPerMinute   int
	MetricsEnabled       bool
	ShutdownTimeout      time.Duration
	RunTimeout           time.Duration
	IdempotencyRetention time.Duration
}

// Load reads the process environment. A .env file in the working directory
// is applied first when present; real environment variables win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "err", err)
	}
	return fromEnv()
}

func fromEnv() Config {
	return Config{
		Addr:                 getEnv("APP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		Environment:          getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		CurrencyCode:         getEnv("CURRENCY_CODE", "ZMW"),
		CurrencySymbol:       getEnv("CURRENCY_SYMBOL", "K"),
		SeedTenantName:       getEnv("SEED_TENANT_NAME", "Default Tenant"),
		PayslipDir:           getEnv("PAYSLIP_DIR", ""),
		PayslipEncryptionKey: getEnv("PAYSLIP_ENCRYPTION_KEY", ""),
		RunMigrations:        getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:              getEnvBool("RUN_SEED", false),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", true),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		RunTimeout:           getEnvDuration("PAYROLL_RUN_TIMEOUT", 5*time.Minute),
		IdempotencyRetention: getEnvDuration("IDEMPOTENCY_RETENTION", 24*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.PayslipDir != "" && strings.TrimSpace(c.PayslipEncryptionKey) == "" {
			return fmt.Errorf("PAYSLIP_ENCRYPTION_KEY must be set in production when PAYSLIP_DIR is used")
		}
	}
	if len(c.CurrencyCode) != 3 {
		return fmt.Errorf("CURRENCY_CODE must be a three letter ISO code")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("PAYROLL_RUN_TIMEOUT must be positive")
	}
	if c.IdempotencyRetention < time.Minute {
		return fmt.Errorf("IDEMPOTENCY_RETENTION must be at least 1m")
	}
	return nil
}
