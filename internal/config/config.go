package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultDSN         = "host=localhost user=postgres password=postgres dbname=depot port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:5173"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	DatabaseDriver    string        `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseDSN       string        `envconfig:"DATABASE_DSN" default:"host=localhost user=postgres password=postgres dbname=depot port=5432 sslmode=disable"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	CORSOrigins    string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	LoginRateLimit int    `envconfig:"LOGIN_RATE_LIMIT" default:"10"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:""`

	// Empty RedisAddr disables the report cache.
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:""`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"5m"`

	// Empty MQTTBrokerURL disables the scale bridge.
	MQTTBrokerURL   string `envconfig:"MQTT_BROKER_URL" default:""`
	MQTTClientID    string `envconfig:"MQTT_CLIENT_ID" default:"depot-bridge"`
	MQTTUsername    string `envconfig:"MQTT_USERNAME" default:""`
	MQTTPassword    string `envconfig:"MQTT_PASSWORD" default:""`
	MQTTTopicPrefix string `envconfig:"MQTT_TOPIC_PREFIX" default:"scales"`
	MQTTQoS         byte   `envconfig:"MQTT_QOS" default:"1"`
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("config: JWT_SECRET must be at least 32 characters")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.MQTTQoS > 2 {
		return fmt.Errorf("config: MQTT_QOS must be 0, 1 or 2, got %d", c.MQTTQoS)
	}
	if c.LoginRateLimit <= 0 {
		return errors.New("config: LOGIN_RATE_LIMIT must be positive")
	}
	c.MQTTTopicPrefix = strings.Trim(c.MQTTTopicPrefix, "/")
	if c.MQTTTopicPrefix == "" {
		return errors.New("config: MQTT_TOPIC_PREFIX cannot be empty")
	}
	return nil
}

// Warnings lists settings that still carry development defaults.
func (c *Config) Warnings() []string {
	var out []string
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == defaultDSN {
		out = append(out, "DATABASE_DSN uses the default value, set your own Postgres connection for production")
	}
	if c.CORSOrigins == defaultCORSOrigins {
		out = append(out, "CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production")
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
