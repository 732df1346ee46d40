// Package config loads and validates service configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration loaded from the environment.
type Config struct {
	// PortalLoginURL is the browser login page of the external portal.
	PortalLoginURL string `mapstructure:"PORTAL_LOGIN_URL"`
	// PortalAPIURL is the portal API endpoint used for credential validation probes.
	PortalAPIURL string `mapstructure:"PORTAL_API_URL"`
	// PortalEmail and PortalPassword are the login credentials driven through the form.
	PortalEmail    string `mapstructure:"PORTAL_EMAIL"`
	PortalPassword string `mapstructure:"PORTAL_PASSWORD"`

	// TokenLifetimeMinutes is the observed validity of a fetched credential.
	TokenLifetimeMinutes int `mapstructure:"TOKEN_LIFETIME_MINUTES"`
	// SafetyMarginMinutes is subtracted from the lifetime when computing expiry.
	SafetyMarginMinutes int `mapstructure:"SAFETY_MARGIN_MINUTES"`
	// SyncIntervalMinutes is the renewal cadence. 0 derives 70% of the lifetime.
	SyncIntervalMinutes int `mapstructure:"SYNC_INTERVAL_MINUTES"`

	MaxRetryAttempts      int  `mapstructure:"MAX_RETRY_ATTEMPTS"`
	RetryBaseDelaySeconds int  `mapstructure:"RETRY_BASE_DELAY_SECONDS"`
	FailureThreshold      int  `mapstructure:"FAILURE_THRESHOLD"`
	SyncOnStartup         bool `mapstructure:"SYNC_ON_STARTUP"`

	MaxConcurrentSessions        int `mapstructure:"MAX_CONCURRENT_SESSIONS"`
	SessionAcquireTimeoutSeconds int `mapstructure:"SESSION_ACQUIRE_TIMEOUT_SECONDS"`
	OrphanThresholdSeconds       int `mapstructure:"ORPHAN_THRESHOLD_SECONDS"`
	ReaperIntervalSeconds        int `mapstructure:"REAPER_INTERVAL_SECONDS"`

	// RunDeadlineSeconds bounds one whole acquisition run, independent of the
	// per-state budget in StateTimeoutSeconds.
	RunDeadlineSeconds  int `mapstructure:"RUN_DEADLINE_SECONDS"`
	StateTimeoutSeconds int `mapstructure:"STATE_TIMEOUT_SECONDS"`

	BrowserHeadless bool `mapstructure:"BROWSER_HEADLESS"`
	// BrowserBin overrides the browser binary path; empty lets the launcher resolve it.
	BrowserBin string `mapstructure:"BROWSER_BIN"`

	// ValidationCountryID scopes the validation probe's order query.
	ValidationCountryID int `mapstructure:"VALIDATION_COUNTRY_ID"`

	// RedisAddress enables durable credential backing when set; empty runs memory-only.
	RedisAddress  string `mapstructure:"REDIS_ADDRESS"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	AlertWebhookURL     string `mapstructure:"ALERT_WEBHOOK_URL"`
	AlertAPIKey         string `mapstructure:"ALERT_API_KEY"`
	AlertTimeoutSeconds int    `mapstructure:"ALERT_TIMEOUT_SECONDS"`

	JWTSecret               string `mapstructure:"JWT_SECRET"`
	OperatorClientID        string `mapstructure:"OPERATOR_CLIENT_ID"`
	OperatorClientSecret    string `mapstructure:"OPERATOR_CLIENT_SECRET"`
	OperatorTokenTTLMinutes int    `mapstructure:"OPERATOR_TOKEN_TTL_MINUTES"`

	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogPretty  bool   `mapstructure:"LOG_PRETTY"`

	RateLimitEnabled    bool `mapstructure:"RATELIMIT_ENABLED"`
	RateLimitAuthToken  int  `mapstructure:"RATELIMIT_AUTH_TOKEN"`
	RateLimitManualSync int  `mapstructure:"RATELIMIT_MANUAL_SYNC"`
}

// Load reads the env file (if present), then builds and validates Config from
// the environment via Viper. A missing env file is ignored; environment
// variables override file values. Returns an error when required fields are
// missing or the renewal timing invariant does not hold.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("PORTAL_LOGIN_URL", "")
	v.SetDefault("PORTAL_API_URL", "")
	v.SetDefault("PORTAL_EMAIL", "")
	v.SetDefault("PORTAL_PASSWORD", "")
	v.SetDefault("TOKEN_LIFETIME_MINUTES", 3)
	v.SetDefault("SAFETY_MARGIN_MINUTES", 1)
	v.SetDefault("SYNC_INTERVAL_MINUTES", 0)
	v.SetDefault("MAX_RETRY_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY_SECONDS", 5)
	v.SetDefault("FAILURE_THRESHOLD", 3)
	v.SetDefault("SYNC_ON_STARTUP", true)
	v.SetDefault("MAX_CONCURRENT_SESSIONS", 2)
	v.SetDefault("SESSION_ACQUIRE_TIMEOUT_SECONDS", 30)
	v.SetDefault("ORPHAN_THRESHOLD_SECONDS", 300)
	v.SetDefault("REAPER_INTERVAL_SECONDS", 60)
	v.SetDefault("RUN_DEADLINE_SECONDS", 90)
	v.SetDefault("STATE_TIMEOUT_SECONDS", 20)
	v.SetDefault("BROWSER_HEADLESS", true)
	v.SetDefault("BROWSER_BIN", "")
	v.SetDefault("VALIDATION_COUNTRY_ID", 164)
	v.SetDefault("REDIS_ADDRESS", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ALERT_WEBHOOK_URL", "")
	v.SetDefault("ALERT_API_KEY", "")
	v.SetDefault("ALERT_TIMEOUT_SECONDS", 10)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("OPERATOR_CLIENT_ID", "")
	v.SetDefault("OPERATOR_CLIENT_SECRET", "")
	v.SetDefault("OPERATOR_TOKEN_TTL_MINUTES", 15)
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("RATELIMIT_ENABLED", false)
	v.SetDefault("RATELIMIT_AUTH_TOKEN", 30)
	v.SetDefault("RATELIMIT_MANUAL_SYNC", 10)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.PortalLoginURL == "" {
		return nil, errors.New("config: PORTAL_LOGIN_URL must be set")
	}
	if cfg.PortalAPIURL == "" {
		return nil, errors.New("config: PORTAL_API_URL must be set")
	}
	if cfg.PortalEmail == "" || cfg.PortalPassword == "" {
		return nil, errors.New("config: PORTAL_EMAIL and PORTAL_PASSWORD must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	if cfg.OperatorClientID == "" || cfg.OperatorClientSecret == "" {
		return nil, errors.New("config: OPERATOR_CLIENT_ID and OPERATOR_CLIENT_SECRET must be set")
	}

	if cfg.TokenLifetimeMinutes < 1 {
		return nil, errors.New("config: TOKEN_LIFETIME_MINUTES must be at least 1")
	}
	if cfg.SafetyMarginMinutes < 0 || cfg.SafetyMarginMinutes >= cfg.TokenLifetimeMinutes {
		return nil, errors.New("config: SAFETY_MARGIN_MINUTES must be non-negative and less than TOKEN_LIFETIME_MINUTES")
	}

	if cfg.SyncIntervalMinutes == 0 {
		cfg.SyncIntervalMinutes = int(float64(cfg.TokenLifetimeMinutes) * 0.7)
		if cfg.SyncIntervalMinutes < 1 {
			cfg.SyncIntervalMinutes = 1
		}
	}
	if cfg.SyncIntervalMinutes > cfg.TokenLifetimeMinutes-cfg.SafetyMarginMinutes {
		return nil, fmt.Errorf(
			"config: SYNC_INTERVAL_MINUTES (%d) must not exceed TOKEN_LIFETIME_MINUTES - SAFETY_MARGIN_MINUTES (%d)",
			cfg.SyncIntervalMinutes, cfg.TokenLifetimeMinutes-cfg.SafetyMarginMinutes)
	}

	if cfg.MaxRetryAttempts < 1 || cfg.MaxRetryAttempts > 10 {
		return nil, errors.New("config: MAX_RETRY_ATTEMPTS must be between 1 and 10")
	}
	if cfg.RetryBaseDelaySeconds < 1 {
		return nil, errors.New("config: RETRY_BASE_DELAY_SECONDS must be at least 1")
	}
	if cfg.FailureThreshold < 1 {
		return nil, errors.New("config: FAILURE_THRESHOLD must be at least 1")
	}
	if cfg.MaxConcurrentSessions < 1 {
		return nil, errors.New("config: MAX_CONCURRENT_SESSIONS must be at least 1")
	}

	return &cfg, nil
}

// TokenLifetime returns the credential lifetime as a duration.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}

// SafetyMargin returns the expiry safety margin as a duration.
func (c *Config) SafetyMargin() time.Duration {
	return time.Duration(c.SafetyMarginMinutes) * time.Minute
}

// SyncInterval returns the renewal cadence as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// RetryBaseDelay returns the first backoff delay; it doubles per attempt.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySeconds) * time.Second
}

// SessionAcquireTimeout returns how long callers wait for a pool slot.
func (c *Config) SessionAcquireTimeout() time.Duration {
	return time.Duration(c.SessionAcquireTimeoutSeconds) * time.Second
}

// OrphanThreshold returns the inactivity age after which the reaper closes a session.
func (c *Config) OrphanThreshold() time.Duration {
	return time.Duration(c.OrphanThresholdSeconds) * time.Second
}

// ReaperInterval returns how often the pool scans for orphans.
func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSeconds) * time.Second
}

// RunDeadline returns the wall-clock budget for one acquisition run.
func (c *Config) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineSeconds) * time.Second
}

// StateTimeout returns the budget for a single acquisition state.
func (c *Config) StateTimeout() time.Duration {
	return time.Duration(c.StateTimeoutSeconds) * time.Second
}

// AlertTimeout returns the webhook delivery timeout.
func (c *Config) AlertTimeout() time.Duration {
	return time.Duration(c.AlertTimeoutSeconds) * time.Second
}

// OperatorTokenTTL returns the lifetime of minted operator tokens.
func (c *Config) OperatorTokenTTL() time.Duration {
	return time.Duration(c.OperatorTokenTTLMinutes) * time.Minute
}

// RateLimitConfig describes one route's rate limit.
type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

// RateLimit returns the limit configuration for a named route key. Unknown
// keys come back disabled.
func (c *Config) RateLimit(key string) RateLimitConfig {
	configs := map[string]RateLimitConfig{
		"auth_token": {
			Enabled: c.RateLimitEnabled,
			MaxHits: c.RateLimitAuthToken,
			Window:  time.Minute,
		},
		"manual_sync": {
			Enabled: c.RateLimitEnabled,
			MaxHits: c.RateLimitManualSync,
			Window:  time.Minute,
		},
	}

	if rl, ok := configs[key]; ok {
		return rl
	}
	return RateLimitConfig{Enabled: false}
}
