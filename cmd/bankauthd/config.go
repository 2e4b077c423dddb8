package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"github.com/MrEthical07/goBankAuth/sqlstore"
)

type config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string

	Database sqlstore.Config
	Redis    redisConfig
	Email    emailConfig
	SMS      smsConfig
	Log      logConfig

	Engine goBankAuth.Config
}

type redisConfig struct {
	Addr     string
	Password string
	DB       int
}

type emailConfig struct {
	ResendAPIKey string
	From         string
	FromName     string
}

type smsConfig struct {
	WebhookURL   string
	WebhookToken string
	Timeout      time.Duration
}

// loadConfig reads the process environment. JWT_SECRET is the only
// required variable.
func loadConfig() (*config, error) {
	cfg := &config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  getDurationEnv("REQUEST_TIMEOUT", 30*time.Second),
		AllowedOrigins:  getListEnv("CORS_ORIGINS", []string{"http://localhost:8081"}),
		Database: sqlstore.Config{
			Driver: getEnv("DATABASE_DRIVER", sqlstore.DriverSQLite),
			DSN:    getEnv("DATABASE_URL", "file:gobankauth.db"),
		},
		Redis: redisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Email: emailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", ""),
			FromName:     getEnv("EMAIL_FROM_NAME", "Bank Security"),
		},
		SMS: smsConfig{
			WebhookURL:   getEnv("SMS_WEBHOOK_URL", ""),
			WebhookToken: getEnv("SMS_WEBHOOK_TOKEN", ""),
			Timeout:      getDurationEnv("SMS_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Log: logConfigFromEnv(),
	}

	engine := goBankAuth.DefaultConfig()
	engine.JWT.SigningMethod = "hs256"
	engine.JWT.PrivateKey = []byte(os.Getenv("JWT_SECRET"))
	engine.JWT.Issuer = getEnv("JWT_ISSUER", engine.JWT.Issuer)
	engine.JWT.AccessTTL = getDurationEnv("JWT_ACCESS_TTL", engine.JWT.AccessTTL)
	engine.Session.RefreshTTL = getDurationEnv("REFRESH_TTL", engine.Session.RefreshTTL)
	engine.Session.MaxActive = getIntEnv("MAX_ACTIVE_SESSIONS", engine.Session.MaxActive)
	engine.Lockout.Threshold = getIntEnv("LOCKOUT_THRESHOLD", engine.Lockout.Threshold)
	engine.Lockout.Duration = getDurationEnv("LOCKOUT_DURATION", engine.Lockout.Duration)
	engine.RateLimit.Enabled = getBoolEnv("RATE_LIMIT_ENABLED", engine.RateLimit.Enabled)
	engine.Audit.Enabled = getBoolEnv("AUDIT_ENABLED", engine.Audit.Enabled)
	engine.Metrics.EnableLatencyHistograms = getBoolEnv("LATENCY_HISTOGRAMS", true)
	engine.RequireVerifiedEmail = getBoolEnv("REQUIRE_VERIFIED_EMAIL", engine.RequireVerifiedEmail)
	cfg.Engine = engine

	if len(engine.JWT.PrivateKey) == 0 {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Email.ResendAPIKey != "" && cfg.Email.From == "" {
		return nil, errors.New("EMAIL_FROM is required when RESEND_API_KEY is set")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
