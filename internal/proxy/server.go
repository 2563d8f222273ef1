package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/healthlink/pkg/config"
)

// Route is the pattern the gateway is mounted on.
const Route = "POST /fora-api/{path...}"

// Server exposes a Router over HTTP.
type Server struct {
	cfg    *config.Config
	router *Router
	logger *logrus.Logger
}

// NewServer wires router behind the configured middleware.
func NewServer(cfg *config.Config, router *Router, logger *logrus.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Server{cfg: cfg, router: router, logger: logger}
}

// Handler builds the request pipeline. Background work started here stops with ctx.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Route, s.router)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return SecurityHeaders(RateLimit(ctx, s.cfg.RateLimit, s.logger)(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"breaker": s.router.BreakerState().String(),
	})
}

// Start listens on the configured address and serves until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Proxy.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Proxy.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           s.Handler(handlerCtx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.Proxy.ResponseTimeout + s.cfg.Proxy.ConnTimeout + 5*time.Second,
		// In-flight requests must survive ctx so Shutdown can drain them.
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr":     ln.Addr().String(),
			"upstream": s.router.origin,
		}).Info("Proxy listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("proxy server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.Proxy.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	s.logger.Info("Shutting down proxy")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("proxy shutdown failed: %w", err)
	}
	return nil
}
