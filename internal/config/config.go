package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP       HTTPConfig
	Logging    LoggingConfig
	Store      StoreConfig
	Kafka      KafkaConfig
	Rates      RatesConfig
	Auth       AuthConfig
	Reconciler ReconcilerConfig
	Telemetry  TelemetryConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowedOrigins  []string      `env:"SERVER_ALLOWED_ORIGINS" envSeparator:","`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `env:"LOG_LEVEL" envDefault:"info"`
	Format        string `env:"LOG_FORMAT" envDefault:"text"` // text|json
	IncludeCaller bool   `env:"LOG_INCLUDE_CALLER" envDefault:"false"`
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	Driver         string `env:"STORE_DRIVER" envDefault:"sqlite"` // memory|sqlite|postgres
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"fund-ledger.db"`
	PostgresDSN    string `env:"POSTGRES_DSN"`
	PostgresDriver string `env:"POSTGRES_DRIVER" envDefault:"postgres"` // postgres (lib/pq) | pgx
	// Sequential forces the two-step write path with intents even on
	// backends that support single-transaction writes.
	Sequential bool `env:"STORE_SEQUENTIAL_WRITES" envDefault:"false"`
}

// KafkaConfig enables ledger event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	TopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"fundledger."`
}

// RatesConfig lists the exchange-rate providers in fallback order.
type RatesConfig struct {
	ExchangeRateAPIURL  string        `env:"RATES_EXCHANGERATE_API_URL" envDefault:"https://api.exchangerate-api.com"`
	FrankfurterURL      string        `env:"RATES_FRANKFURTER_URL" envDefault:"https://api.frankfurter.app"`
	ExchangeRateHostURL string        `env:"RATES_EXCHANGERATE_HOST_URL" envDefault:"https://api.exchangerate.host"`
	ProviderTimeout     time.Duration `env:"RATES_PROVIDER_TIMEOUT" envDefault:"3s"`
	RefreshInterval     time.Duration `env:"RATES_REFRESH_INTERVAL" envDefault:"30s"`
}

// AuthConfig holds the key used to verify bearer tokens issued by the
// identity service.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type ReconcilerConfig struct {
	Interval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	Grace    time.Duration `env:"RECONCILE_GRACE" envDefault:"10s"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"fund-ledger"`
}

// Load reads an optional .env file and then the environment, applying
// defaults. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads configuration from the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the environment parser cannot catch.
func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Rates.ProviderTimeout <= 0 {
		return fmt.Errorf("RATES_PROVIDER_TIMEOUT must be positive")
	}
	if c.Rates.RefreshInterval <= 0 {
		return fmt.Errorf("RATES_REFRESH_INTERVAL must be positive")
	}
	if c.Reconciler.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}
