package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Payments PaymentsConfig
	Redirect RedirectConfig
	Logging  LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// GatewayConfig configures the Midtrans adapter.
type GatewayConfig struct {
	ServerKey      string
	Environment    string // sandbox|production
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	// OrderExpiry bounds how long a checkout stays payable. It follows
	// PENDING_TTL so the sweeper never closes an order that can still be paid.
	OrderExpiry time.Duration
}

// PaymentsConfig holds the money rules of the payment core.
type PaymentsConfig struct {
	Currency    string
	FeeBPS      int64
	MinTipMinor int64
	PendingTTL  time.Duration
}

// RedirectConfig holds the public URLs used for gateway round trips.
type RedirectConfig struct {
	FrontendBaseURL string
	CallbackBaseURL string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

var defaults = map[string]any{
	"SERVER_HOST":              "0.0.0.0",
	"SERVER_PORT":              8080,
	"SERVER_READ_TIMEOUT":      "10s",
	"SERVER_WRITE_TIMEOUT":     "15s",
	"SERVER_IDLE_TIMEOUT":      "60s",
	"SERVER_SHUTDOWN_TIMEOUT":  "10s",
	"SERVER_ALLOWED_ORIGINS":   "",
	"DSN":                      "",
	"DB_MAX_OPEN_CONNS":        20,
	"DB_MAX_IDLE_CONNS":        5,
	"JWT_SECRET":               "",
	"JWT_TTL":                  "168h",
	"MIDTRANS_SERVER_KEY":      "",
	"MIDTRANS_ENV":             "sandbox",
	"GATEWAY_TIMEOUT":          "10s",
	"GATEWAY_MAX_RETRIES":      3,
	"GATEWAY_RETRY_BASE_DELAY": "200ms",
	"PAYMENT_CURRENCY":         "IDR",
	"PLATFORM_FEE_BPS":         500,
	"MIN_TIP_MINOR":            1000,
	"PENDING_TTL":              "24h",
	"FRONTEND_BASE_URL":        "http://localhost:3000",
	"CALLBACK_BASE_URL":        "http://localhost:8080",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "text",
	"LOG_INCLUDE_CALLER":       false,
}

// Load reads config.env from the given directories (the working directory when
// none are given). The file is optional; environment variables override it.
func Load(paths ...string) (Config, error) {
	v := viper.New()
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  splitCSV(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			DSN:          v.GetString("DSN"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			TokenTTL:  v.GetDuration("JWT_TTL"),
		},
		Gateway: GatewayConfig{
			ServerKey:      v.GetString("MIDTRANS_SERVER_KEY"),
			Environment:    strings.ToLower(v.GetString("MIDTRANS_ENV")),
			Timeout:        v.GetDuration("GATEWAY_TIMEOUT"),
			MaxRetries:     v.GetInt("GATEWAY_MAX_RETRIES"),
			RetryBaseDelay: v.GetDuration("GATEWAY_RETRY_BASE_DELAY"),
			OrderExpiry:    v.GetDuration("PENDING_TTL"),
		},
		Payments: PaymentsConfig{
			Currency:    strings.ToUpper(v.GetString("PAYMENT_CURRENCY")),
			FeeBPS:      v.GetInt64("PLATFORM_FEE_BPS"),
			MinTipMinor: v.GetInt64("MIN_TIP_MINOR"),
			PendingTTL:  v.GetDuration("PENDING_TTL"),
		},
		Redirect: RedirectConfig{
			FrontendBaseURL: strings.TrimRight(v.GetString("FRONTEND_BASE_URL"), "/"),
			CallbackBaseURL: strings.TrimRight(v.GetString("CALLBACK_BASE_URL"), "/"),
		},
		Logging: LoggingConfig{
			Level:         v.GetString("LOG_LEVEL"),
			Format:        v.GetString("LOG_FORMAT"),
			IncludeCaller: v.GetBool("LOG_INCLUDE_CALLER"),
		},
	}

	if err := cfg.validatePayments(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the binaries cannot run without.
func (c Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("DSN is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.HTTP.Port)
	}
	return c.validatePayments()
}

func (c Config) validatePayments() error {
	if c.Payments.FeeBPS < 0 || c.Payments.FeeBPS > 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS %d must be between 0 and 10000", c.Payments.FeeBPS)
	}
	if c.Payments.MinTipMinor <= 0 {
		return fmt.Errorf("MIN_TIP_MINOR %d must be positive", c.Payments.MinTipMinor)
	}
	if c.Payments.PendingTTL < time.Minute {
		return fmt.Errorf("PENDING_TTL %s must be at least one minute", c.Payments.PendingTTL)
	}
	if c.Payments.Currency == "" {
		return errors.New("PAYMENT_CURRENCY is required")
	}
	switch c.Gateway.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("MIDTRANS_ENV %q must be sandbox or production", c.Gateway.Environment)
	}
	return nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
