// Package ctl implements the daemon control server and its client. The
// server is loopback-only and lets the CLI query and drive a mount owned
// by a daemonized tether process: status, refresh, unmount, plus the
// metrics scrape endpoint when metrics are enabled.
package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/tether/internal/cli/health"
	"github.com/marmos91/tether/internal/logger"
	"github.com/marmos91/tether/pkg/metrics"
	"github.com/marmos91/tether/pkg/mount"
)

// Config configures the control server.
type Config struct {
	// Addr is the listen address. Keep it on loopback; the server has no
	// authentication.
	Addr string

	// Version is reported by /healthz.
	Version string
}

// Server serves the daemon control API for one mount session.
type Server struct {
	server    *http.Server
	cfg       Config
	session   *mount.Session
	onUnmount func()
	startedAt time.Time

	shutdownOnce sync.Once
}

// NewServer builds a control server around a session. onUnmount is invoked
// (once, asynchronously) when a client requests an unmount; the daemon uses
// it to leave its wait loop and tear the session down.
func NewServer(cfg Config, session *mount.Session, onUnmount func()) *Server {
	s := &Server{
		cfg:       cfg,
		session:   session,
		onUnmount: onUnmount,
		startedAt: time.Now(),
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/unmount", s.handleUnmount)
	})
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("control server listening", logger.KeyAddr, s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("control server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("control server shutdown: %w", err)
		} else {
			logger.Debug("control server stopped")
		}
	})
	return shutdownErr
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startedAt)

	resp := health.Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	resp.Data.Service = "tether"
	resp.Data.Version = s.cfg.Version
	resp.Data.StartedAt = s.startedAt.UTC().Format(time.RFC3339)
	resp.Data.Uptime = uptime.Truncate(time.Second).String()
	resp.Data.UptimeSec = int64(uptime.Seconds())

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status(r.Context())

	resp := health.MountStatus{
		State:         st.State,
		Local:         st.Local,
		Remote:        st.Remote,
		Alive:         st.Alive,
		EnginePID:     st.EnginePID,
		SupervisorPID: st.SupervisorPID,
		Restarts:      st.Restarts,
	}
	if !st.MountedAt.IsZero() {
		resp.MountedAt = st.MountedAt.UTC().Format(time.RFC3339)
		resp.Uptime = st.Uptime.String()
		resp.UptimeSec = int64(st.Uptime.Seconds())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleUnmount(w http.ResponseWriter, r *http.Request) {
	// The actual teardown belongs to the daemon's main goroutine; the
	// handler only requests it so the HTTP response gets out before the
	// process exits.
	if s.onUnmount != nil {
		go s.onUnmount()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "unmounting"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write control response", logger.KeyError, err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// requestLogger logs control API requests at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("control request",
			"method", r.Method,
			logger.KeyPath, r.URL.Path,
			"status", ww.Status(),
			logger.KeyDurationMs, time.Since(start).Milliseconds())
	})
}
