// internal/monitoring/server.go
package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/valpere/extractstudio/internal/utils"
)

// Server exposes /metrics and /health over HTTP.
type Server struct {
	collector *Collector
	health    *HealthManager
	logger    utils.Logger
	server    *http.Server
	listener  net.Listener
	done      chan struct{}
}

// NewServer creates a monitoring server listening on addr.
func NewServer(addr string, collector *Collector, health *HealthManager, logger utils.Logger) *Server {
	s := &Server{
		collector: collector,
		health:    health,
		logger:    utils.OrNop(logger),
		done:      make(chan struct{}),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the router, mainly for tests.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", s.collector.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health.HealthHandler()).Methods(http.MethodGet)
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Infof("monitoring server listening on %s", ln.Addr())

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("monitoring server stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}
