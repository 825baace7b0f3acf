package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HealthService reports whether the ledger can serve requests.
type HealthService interface {
	Probe(ctx context.Context) error
}

const defaultProbeTimeout = 2 * time.Second

// DBHealthService pings the SQL backend that holds both ledger copies. The
// memory backend has no handle and is always healthy.
type DBHealthService struct {
	DB      *sql.DB
	Driver  string
	Timeout time.Duration
}

func (s DBHealthService) Probe(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger store %s unreachable: %w", s.Driver, err)
	}
	return nil
}
