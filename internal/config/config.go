package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds service configuration.
type Config struct {
	ServerAddr      string        `env:"SERVER_ADDR" envDefault:"0.0.0.0:8080"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	DatabaseMaxConn int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"trade-hub.db"`
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"trade-hub"`
	NATSURL         string        `env:"NATS_URL"`
	NATSPrefix      string        `env:"NATS_SUBJECT_PREFIX" envDefault:"tradehub"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	SettlementPolicy     string `env:"SETTLEMENT_POLICY"`
	SettlementSigningKey string `env:"SETTLEMENT_SIGNING_KEY"`

	RateLimitRequests  int           `env:"RATE_LIMIT_REQUESTS" envDefault:"120"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	WSFramesPerSecond     float64 `env:"WS_FRAMES_PER_SECOND" envDefault:"10"`
	WSFrameBurst          int     `env:"WS_FRAME_BURST" envDefault:"20"`
	RealtimeSessionBuffer int     `env:"REALTIME_SESSION_BUFFER" envDefault:"64"`
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		user := getenv("POSTGRES_USER", "trade_hub")
		pass := getenv("POSTGRES_PASSWORD", "trade_hub_pass")
		db := getenv("POSTGRES_DB", "trade_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := c.SigningKey(); err != nil {
		return err
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

// SigningKey decodes the hex settlement signing key. Nil means records are not signed.
func (c *Config) SigningKey() ([]byte, error) {
	if c.SettlementSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SettlementSigningKey)
	if err != nil {
		return nil, fmt.Errorf("SETTLEMENT_SIGNING_KEY must be hex: %w", err)
	}
	return key, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}
