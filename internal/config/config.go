package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SMTPConfig holds outbound email settings
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// WahaConfig holds WhatsApp HTTP API settings
type WahaConfig struct {
	BaseURL            string
	APIKey             string
	DefaultCountryCode string
}

// Config is the process configuration, read from the environment (and .env when present)
type Config struct {
	Env                     string
	Port                    string
	AppURL                  string
	DatabaseURL             string
	RedisURL                string
	FirebaseCredentialsPath string

	SMTP SMTPConfig
	Waha WahaConfig

	IdempotencyWindow      time.Duration
	LockTTL                time.Duration
	ReportCacheTTL         time.Duration
	WorkerInterval         time.Duration
	WorkerMetricsAddr      string
	NotificationMaxAttempt int
}

// IsProduction reports whether ENV=production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_URL", "http://localhost:8080")
	v.SetDefault("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json")
	v.SetDefault("WAHA_BASE_URL", "http://waha:3000")
	v.SetDefault("WAHA_DEFAULT_COUNTRY_CODE", "62")
	v.SetDefault("IDEMPOTENCY_WINDOW", "5m")
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("REPORT_CACHE_TTL", "1m")
	v.SetDefault("WORKER_INTERVAL", "5m")
	v.SetDefault("WORKER_METRICS_ADDR", ":9091")
	v.SetDefault("NOTIFICATION_MAX_ATTEMPT", 3)

	cfg := &Config{
		Env:                     v.GetString("ENV"),
		Port:                    v.GetString("PORT"),
		AppURL:                  v.GetString("APP_URL"),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		RedisURL:                v.GetString("REDIS_URL"),
		FirebaseCredentialsPath: v.GetString("FIREBASE_CREDENTIALS_PATH"),
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetString("SMTP_PORT"),
			User:     v.GetString("SMTP_USER"),
			Password: v.GetString("SMTP_PASS"),
			From:     v.GetString("EMAIL_FROM"),
		},
		Waha: WahaConfig{
			BaseURL:            v.GetString("WAHA_BASE_URL"),
			APIKey:             v.GetString("WAHA_API_KEY"),
			DefaultCountryCode: v.GetString("WAHA_DEFAULT_COUNTRY_CODE"),
		},
		IdempotencyWindow:      v.GetDuration("IDEMPOTENCY_WINDOW"),
		LockTTL:                v.GetDuration("LOCK_TTL"),
		ReportCacheTTL:         v.GetDuration("REPORT_CACHE_TTL"),
		WorkerInterval:         v.GetDuration("WORKER_INTERVAL"),
		WorkerMetricsAddr:      v.GetString("WORKER_METRICS_ADDR"),
		NotificationMaxAttempt: v.GetInt("NOTIFICATION_MAX_ATTEMPT"),
	}

	if cfg.IdempotencyWindow <= 0 {
		return nil, fmt.Errorf("IDEMPOTENCY_WINDOW must be positive")
	}
	if cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("LOCK_TTL must be positive")
	}
	if cfg.WorkerInterval <= 0 {
		return nil, fmt.Errorf("WORKER_INTERVAL must be positive")
	}
	if cfg.NotificationMaxAttempt < 1 {
		cfg.NotificationMaxAttempt = 1
	}
	return cfg, nil
}

// RequireDatabase returns an error when DATABASE_URL is not set
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	return nil
}
