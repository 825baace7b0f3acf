package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.PostgresDriver != "postgres" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Rates.ProviderTimeout != 3*time.Second || cfg.Rates.RefreshInterval != 30*time.Second {
		t.Fatalf("rates = %+v", cfg.Rates)
	}
	if cfg.Kafka.TopicPrefix != "fundledger." || len(cfg.Kafka.Brokers) != 0 {
		t.Fatalf("kafka = %+v", cfg.Kafka)
	}
}

func TestParseFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://ledger@localhost/ledger")
	t.Setenv("POSTGRES_DRIVER", "pgx")
	t.Setenv("STORE_SEQUENTIAL_WRITES", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATES_PROVIDER_TIMEOUT", "750ms")
	t.Setenv("RECONCILE_GRACE", "2s")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.HTTP.Port != 9090 || len(cfg.HTTP.AllowedOrigins) != 2 {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.PostgresDriver != "pgx" || !cfg.Store.Sequential {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Rates.ProviderTimeout != 750*time.Millisecond || cfg.Reconciler.Grace != 2*time.Second {
		t.Fatalf("durations = %v %v", cfg.Rates.ProviderTimeout, cfg.Reconciler.Grace)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port out of range", map[string]string{"SERVER_PORT": "70000"}, "out of range"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}, "unsupported STORE_DRIVER"},
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "postgres"}, "POSTGRES_DSN"},
		{"zero provider timeout", map[string]string{"RATES_PROVIDER_TIMEOUT": "0s"}, "RATES_PROVIDER_TIMEOUT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
