package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sheikh-saqib/fund-ledger/internal/config"
)

// Server runs the ledger API. Every request context derives from a base
// context that Shutdown cancels first, so hijacked rate streams end with
// the server instead of holding it open.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func New(logger *slog.Logger, cfg config.HTTPConfig, handler http.Handler) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger:     logger,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("ledger api listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open rate streams and drains in-flight requests until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ledger api")
	s.cancelBase()
	return s.httpServer.Shutdown(ctx)
}
