package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Dispatch struct {
	PollInterval   time.Duration
	Workers        int
	PublishTimeout time.Duration
	RetryCeiling   int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
}

type Quota struct {
	PerMinute      int
	PerHour        int
	PerDay         int
	AlertThreshold float64
}

type Config struct {
	LinkedinClientID      string
	LinkedinClientSecret  string
	LinkedinRedirectURI   string
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	R2                    R2
	Dispatch              Dispatch
	Quota                 Quota
	SecretKey             string
	LegacySecretKeys      []string
	CookieName            string
}

func LoadConfig() *Config {
	return &Config{
		LinkedinClientID:      getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret:  getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedinRedirectURI:   getEnv("LINKEDIN_REDIRECT_URI", ""),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", "127.0.0.1:6379"),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Dispatch: Dispatch{
			PollInterval:   getEnvDuration("DISPATCH_POLL_INTERVAL", time.Minute),
			Workers:        getEnvInt("DISPATCH_WORKERS", 10),
			PublishTimeout: getEnvDuration("PUBLISH_TIMEOUT", 2*time.Minute),
			RetryCeiling:   getEnvInt("RETRY_CEILING", 3),
			BackoffBase:    getEnvDuration("RETRY_BACKOFF_BASE", 5*time.Minute),
			BackoffCap:     getEnvDuration("RETRY_BACKOFF_CAP", 6*time.Hour),
		},
		Quota: Quota{
			PerMinute:      getEnvInt("QUOTA_PER_MINUTE", 10),
			PerHour:        getEnvInt("QUOTA_PER_HOUR", 100),
			PerDay:         getEnvInt("QUOTA_PER_DAY", 500),
			AlertThreshold: getEnvFloat("QUOTA_ALERT_THRESHOLD", 0.8),
		},
		SecretKey:        getEnv("SECRET_KEY", ""),
		LegacySecretKeys: getEnvList("LEGACY_SECRET_KEYS"),
		CookieName:       getEnv("COOKIE_NAME", "postpilot_session"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated env var, dropping empty entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
