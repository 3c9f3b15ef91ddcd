// Package server is the HTTP front end of the engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/engine"
	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/metrics"
)

// Server serves runs over HTTP and websockets.
type Server struct {
	engine   *engine.Engine
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
}

// New creates a server for e.
func New(e *engine.Engine, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		engine: e,
		logger: log.Named("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routes wrapped with request metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/run", s.HandleRun)
	mux.HandleFunc("/ws/run", s.HandleRunWebSocket)
	mux.HandleFunc("/healthz", s.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return metrics.Middleware(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg am.ServerConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Server listening", logger.FieldPort, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "failed to listen on port %d", cfg.Port)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Infow("Server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}

// HandleHealth reports runner liveness. Any dead runner makes it 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	alive := s.engine.Alive()
	status := http.StatusOK
	if !s.engine.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"healthy": status == http.StatusOK,
		"runners": alive,
	})
}
