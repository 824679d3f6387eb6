package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds the whole application configuration, populated from
// environment variables.
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	PayPal     PayPalConfig
	TokenCache TokenCacheConfig
	Queue      QueueConfig
	Email      EmailConfig
	Telemetry  TelemetryConfig
	Jobs       JobConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

func (a AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	SSLMode           string
	MaxConns          int
	MinConns          int
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	ConnectTimeout    time.Duration
}

// DSN is the libpq connection string used by migrations.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// =====================================================
// PAYPAL CONFIGURATION
// =====================================================

type PayPalConfig struct {
	ClientID         string
	ClientSecret     string
	BaseURL          string
	WebhookID        string   // id of the webhook registered for this deployment
	CertHostSuffixes []string // hosts allowed to serve signing certificates
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	CertFetchTimeout time.Duration
}

type TokenCacheConfig struct {
	Secret string // encrypts cached bearer tokens at rest
}

type QueueConfig struct {
	Enabled     bool // dispatch webhooks and alerts through asynq
	Concurrency int
}

// EmailConfig is the SMTP relay for merchant alerts.
type EmailConfig struct {
	Host       string
	Port       string
	Username   string
	Password   string
	From       string
	Recipients []string
}

type TelemetryConfig struct {
	OTLPEndpoint string // empty disables tracing export
}

type JobConfig struct {
	ReconcileCron       string
	ReconcileMinAgeDays int
	ReconcileBatchSize  int
}

// Load reads config from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "PaySync API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Database:          getEnv("DB_NAME", "paysync"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          getEnvInt("DB_MAX_CONNS", 25),
			MinConns:          getEnvInt("DB_MIN_CONNS", 5),
			MaxConnLifetime:   getEnvDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvDuration("DB_MAX_CONN_IDLE_TIME", time.Minute),
			HealthCheckPeriod: getEnvDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			MaxRetries:        getEnvInt("DB_MAX_RETRIES", 5),
			RetryDelay:        getEnvDuration("DB_RETRY_DELAY", time.Second),
			ConnectTimeout:    getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenExpiry: getEnvDuration("JWT_ACCESS_EXPIRY", 8*time.Hour),
		},
		PayPal: PayPalConfig{
			ClientID:         getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecret:     getEnv("PAYPAL_CLIENT_SECRET", ""),
			BaseURL:          getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			WebhookID:        getEnv("PAYPAL_WEBHOOK_ID", ""),
			CertHostSuffixes: getEnvList("PAYPAL_CERT_HOST_SUFFIXES", []string{".paypal.com"}),
			ConnectTimeout:   getEnvDuration("PAYPAL_CONNECT_TIMEOUT", 10*time.Second),
			RequestTimeout:   getEnvDuration("PAYPAL_REQUEST_TIMEOUT", 45*time.Second),
			CertFetchTimeout: getEnvDuration("PAYPAL_CERT_FETCH_TIMEOUT", 10*time.Second),
		},
		TokenCache: TokenCacheConfig{
			Secret: getEnv("TOKEN_CACHE_SECRET", ""),
		},
		Queue: QueueConfig{
			Enabled:     getEnvBool("QUEUE_ENABLED", true),
			Concurrency: getEnvInt("QUEUE_CONCURRENCY", 10),
		},
		Email: EmailConfig{
			Host:       getEnv("SMTP_HOST", "localhost"),
			Port:       getEnv("SMTP_PORT", "1025"),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("EMAIL_FROM", "alerts@paysync.local"),
			Recipients: getEnvList("MERCHANT_ALERT_RECIPIENTS", nil),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
		Jobs: JobConfig{
			ReconcileCron:       getEnv("JOB_RECONCILE_CRON", "0 */6 * * *"),
			ReconcileMinAgeDays: getEnvInt("JOB_RECONCILE_MIN_AGE_DAYS", 3),
			ReconcileBatchSize:  getEnvInt("JOB_RECONCILE_BATCH_SIZE", 200),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the process cannot run without.
func (c *Config) Validate() error {
	if c.TokenCache.Secret == "" {
		if c.App.Environment == "production" {
			return fmt.Errorf("TOKEN_CACHE_SECRET must be set in production")
		}
		c.TokenCache.Secret = c.JWT.Secret
	}

	if c.App.Environment == "production" {
		if c.JWT.Secret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
		if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
			return fmt.Errorf("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET must be set in production")
		}
		if c.PayPal.WebhookID == "" {
			return fmt.Errorf("PAYPAL_WEBHOOK_ID must be set in production")
		}
	}

	if len(c.PayPal.CertHostSuffixes) == 0 {
		return fmt.Errorf("PAYPAL_CERT_HOST_SUFFIXES must not be empty")
	}
	if c.Jobs.ReconcileMinAgeDays < 0 || c.Jobs.ReconcileBatchSize <= 0 {
		return fmt.Errorf("invalid reconcile job settings")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
