// Package api exposes the read-only reporting interface for the monitor.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/listforge/dirwatch/internal/catalog"
	"github.com/listforge/dirwatch/internal/health"
	"github.com/listforge/dirwatch/internal/metrics"
)

// Server wires HTTP handlers to the health store and catalog.
type Server struct {
	router  chi.Router
	store   *health.Store
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store *health.Store, cat *catalog.Catalog, logger *zap.Logger) *Server {
	s := &Server{
		store:   store,
		catalog: cat,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Get("/alerts", s.getAlerts)
		r.Route("/directories", func(r chi.Router) {
			r.Get("/", s.listDirectories)
			r.Get("/{directory_id}", s.getDirectory)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The store is seeded from the catalog at startup, so a constructed
	// server is always ready to report.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Aggregate())
}

func (s *Server) getAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.store.ActiveAlerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

type directorySummary struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	URL              string  `json:"url"`
	Status           string  `json:"status"`
	ResponseTimeMs   float64 `json:"response_time_ms"`
	SuccessRate      float64 `json:"success_rate"`
	SelectorAccuracy float64 `json:"selector_accuracy"`
	ActiveAlerts     int     `json:"active_alerts"`
	LastCheckedAt    string  `json:"last_checked_at,omitempty"`
}

func (s *Server) listDirectories(w http.ResponseWriter, _ *http.Request) {
	records := s.store.All()
	out := make([]directorySummary, 0, len(records))
	for _, rec := range records {
		sum := directorySummary{
			ID:               rec.DirectoryID,
			Status:           string(rec.Status),
			ResponseTimeMs:   rec.ResponseTimeEMA,
			SuccessRate:      rec.SuccessRate(),
			SelectorAccuracy: rec.SelectorAccuracy,
			ActiveAlerts:     len(rec.ActiveAlerts),
		}
		if entry, ok := s.catalog.Get(rec.DirectoryID); ok {
			sum.Name = entry.Name
			sum.URL = entry.URL
		}
		if rec.Checked() {
			sum.LastCheckedAt = rec.LastCheckedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(out),
		"directories": out,
	})
}

func (s *Server) getDirectory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "directory_id")
	rec, ok := s.store.Snapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "directory not found")
		return
	}
	resp := map[string]any{"record": rec}
	if entry, found := s.catalog.Get(id); found {
		resp["directory"] = entry
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
