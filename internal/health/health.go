// Package health provides the daemon's liveness and readiness endpoints.
//
// /healthz answers 200 while the process serves HTTP at all. /readyz answers
// 200 only once the daemon is marked ready and every registered check
// passes; the body lists each check's outcome. Readiness changes are also
// forwarded to listeners such as the gRPC health service.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Check reports a component's health; nil means healthy.
type Check func() error

// Status is the body of both endpoints.
type Status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Server is a lightweight HTTP server that exposes /healthz and /readyz.
type Server struct {
	port   int
	ready  atomic.Bool
	server *http.Server

	mu        sync.Mutex
	checks    map[string]Check
	listeners []func(ready bool)
}

// New creates a new health check server.
func New(port int) *Server {
	return &Server{port: port, checks: make(map[string]Check)}
}

// AddCheck registers a readiness check under name.
func (s *Server) AddCheck(name string, c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = c
}

// OnReadyChange registers fn to be called with every readiness change.
func (s *Server) OnReadyChange(fn func(ready bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	if s.ready.Swap(ready) == ready {
		return
	}
	s.mu.Lock()
	listeners := append(([]func(bool))(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(ready)
	}
	slog.Info("readiness changed", "ready", ready)
}

// Handler returns the health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, Status{Status: "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, Status{Status: "not_ready"})
			return
		}
		st, ok := s.runChecks()
		if !ok {
			writeStatus(w, http.StatusServiceUnavailable, st)
			return
		}
		writeStatus(w, http.StatusOK, st)
	})

	return mux
}

func (s *Server) runChecks() (Status, bool) {
	s.mu.Lock()
	checks := make(map[string]Check, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	s.mu.Unlock()

	st := Status{Status: "ok"}
	if len(checks) == 0 {
		return st, true
	}
	st.Checks = make(map[string]string, len(checks))
	ok := true
	for name, c := range checks {
		if err := c(); err != nil {
			st.Checks[name] = err.Error()
			ok = false
			continue
		}
		st.Checks[name] = "ok"
	}
	if !ok {
		st.Status = "degraded"
	}
	return st, ok
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, st Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}
