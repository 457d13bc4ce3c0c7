package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config groups process configuration, read via Viper from the environment
// and optionally from a config file.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Session SessionConfig
	Policy  PolicyConfig
	Risk    RiskConfig
	HTTP    HTTPConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig holds the PostgreSQL connection settings.
type DBConfig struct {
	DSN string
}

// SessionConfig bounds session lifetimes and the login rate limiter.
type SessionConfig struct {
	TokenSecret       string        // HMAC key for access tokens, required
	AccessTTL         time.Duration // access token lifetime
	RefreshTTL        time.Duration // rolling expiry granted per refresh
	LifetimeCap       time.Duration // absolute ceiling measured from session creation
	InactivityTimeout time.Duration
	LoginBurst        int           // failed attempts allowed before limiting kicks in
	LoginWindow       time.Duration // rolling window for the failed-attempt limiter
}

// PolicyConfig locates the access rule table.
type PolicyConfig struct {
	RulesFile string
}

// RiskConfig tunes the audit pipeline's scorer.
type RiskConfig struct {
	AlertThreshold int // risk scores at or above this emit a security alert
	QueueSize      int // audit pipeline buffer
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Addr         string
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
}

// Load reads configuration with GATEHOUSE_-prefixed environment variables
// taking precedence over the optional config file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GATEHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Config{
		App: AppConfig{
			Env:      v.GetString("app.env"),
			Name:     v.GetString("app.name"),
			LogLevel: v.GetString("app.log_level"),
		},
		DB: DBConfig{
			DSN: v.GetString("db.dsn"),
		},
		Session: SessionConfig{
			TokenSecret:       v.GetString("session.token_secret"),
			AccessTTL:         v.GetDuration("session.access_ttl"),
			RefreshTTL:        v.GetDuration("session.refresh_ttl"),
			LifetimeCap:       v.GetDuration("session.lifetime_cap"),
			InactivityTimeout: v.GetDuration("session.inactivity_timeout"),
			LoginBurst:        v.GetInt("session.login_burst"),
			LoginWindow:       v.GetDuration("session.login_window"),
		},
		Policy: PolicyConfig{
			RulesFile: v.GetString("policy.rules_file"),
		},
		Risk: RiskConfig{
			AlertThreshold: v.GetInt("risk.alert_threshold"),
			QueueSize:      v.GetInt("risk.queue_size"),
		},
		HTTP: HTTPConfig{
			Addr:         v.GetString("http.addr"),
			RateBurst:    v.GetInt("http.rate_burst"),
			RatePerSec:   v.GetInt("http.rate_per_sec"),
			MaxBodyBytes: v.GetInt64("http.max_body_bytes"),
		},
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.name", "gatehouse-api")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("session.access_ttl", 15*time.Minute)
	v.SetDefault("session.refresh_ttl", 24*time.Hour)
	v.SetDefault("session.lifetime_cap", 14*24*time.Hour)
	v.SetDefault("session.inactivity_timeout", 2*time.Hour)
	v.SetDefault("session.login_burst", 5)
	v.SetDefault("session.login_window", 15*time.Minute)
	v.SetDefault("policy.rules_file", "policy.yaml")
	v.SetDefault("risk.alert_threshold", 70)
	v.SetDefault("risk.queue_size", 1024)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_burst", 20)
	v.SetDefault("http.rate_per_sec", 10)
	v.SetDefault("http.max_body_bytes", int64(1<<20))
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Session.TokenSecret) == "" {
		return fmt.Errorf("config: session token secret is required")
	}
	if c.Session.AccessTTL <= 0 || c.Session.RefreshTTL <= 0 {
		return fmt.Errorf("config: session TTLs must be positive")
	}
	if c.Session.LifetimeCap < c.Session.RefreshTTL {
		return fmt.Errorf("config: session lifetime cap %s is shorter than refresh ttl %s",
			c.Session.LifetimeCap, c.Session.RefreshTTL)
	}
	if c.Risk.AlertThreshold < 0 || c.Risk.AlertThreshold > 100 {
		return fmt.Errorf("config: risk alert threshold must be within [0,100]")
	}
	return nil
}
