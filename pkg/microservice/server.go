// Package microservice provides the HTTP server shell of the svgify daemon:
// listener lifecycle, liveness and readiness probes and access logging.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultReadinessTimeout bounds the readiness checks of one /readyz probe.
const DefaultReadinessTimeout = 2 * time.Second

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Service defines the lifecycle of a server.
type Service interface {
	Start() error
	Shutdown(ctx context.Context) error
	Mux() *http.ServeMux
	GetHTTPPort() string
}

// BaseServer owns the listener and the mux. Routes added with Handle are
// access logged; /healthz and /readyz are registered up front.
type BaseServer struct {
	Logger   zerolog.Logger
	HTTPPort string

	httpServer *http.Server
	mux        *http.ServeMux

	mu         sync.RWMutex
	boundAddr  string
	checks     map[string]ReadinessCheck
	readyLimit time.Duration
}

// NewBaseServer creates a server for httpPort, e.g. ":8080" or ":0".
func NewBaseServer(logger zerolog.Logger, httpPort string) *BaseServer {
	s := &BaseServer{
		Logger:     logger,
		HTTPPort:   httpPort,
		mux:        http.NewServeMux(),
		checks:     make(map[string]ReadinessCheck),
		readyLimit: DefaultReadinessTimeout,
	}
	s.mux.HandleFunc("GET /healthz", HealthzHandler)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	s.httpServer = &http.Server{
		Addr:              httpPort,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handle registers handler for pattern behind the access logger.
func (s *BaseServer) Handle(pattern string, handler http.HandlerFunc) {
	s.mux.Handle(pattern, s.accessLog(handler))
}

// AddReadinessCheck registers a named check run by /readyz. A check with the
// same name is replaced.
func (s *BaseServer) AddReadinessCheck(name string, check ReadinessCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Start binds the port and serves in a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.HTTPPort, err)
	}

	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()
	s.Logger.Info().Str("address", listener.Addr().String()).Msg("Icon server listening.")

	go func() {
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("Icon server stopped unexpectedly.")
		}
	}()
	return nil
}

// Shutdown drains open requests until ctx ends.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("Icon server did not drain in time.")
		return err
	}
	s.Logger.Info().Msg("Icon server stopped.")
	return nil
}

// GetHTTPPort returns the bound port, which differs from HTTPPort when ":0"
// was requested.
func (s *BaseServer) GetHTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, port, err := net.SplitHostPort(s.boundAddr); err == nil {
		return ":" + port
	}
	return s.HTTPPort
}

// Mux returns the underlying ServeMux.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

// HealthzHandler is the liveness probe.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady runs every readiness check and answers 503 with the failing
// names when any of them fails.
func (s *BaseServer) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := make(map[string]ReadinessCheck, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	limit := s.readyLimit
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), limit)
	defer cancel()

	var failed []string
	for name, check := range checks {
		if err := check(ctx); err != nil {
			s.Logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed.")
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		http.Error(w, "not ready: "+strings.Join(failed, ", "), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *BaseServer) accessLog(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Served request.")
	})
}
