package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/pageview-counter/internal/config"
	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/credential"
	"github.com/JakeFAU/pageview-counter/internal/metrics"
)

// ChunkImporter runs one chunk import.
type ChunkImporter interface {
	RunChunk(ctx context.Context, index int) (counter.Summary, error)
}

// Aggregator computes resource totals and path counts.
type Aggregator interface {
	Aggregate(ctx context.Context, resourceID int64) (counter.ResourceTotal, error)
	CountForPath(ctx context.Context, path string) (int64, error)
	Variants(resourceID int64) []string
}

// Credentials reports and clears the analytics credential.
type Credentials interface {
	Status() credential.Status
	Revoke()
}

// Dependencies are the collaborators behind the HTTP routes.
type Dependencies struct {
	Importer    ChunkImporter
	Aggregator  Aggregator
	Pageviews   counter.PageviewStore
	Totals      counter.TotalsStore
	Credentials Credentials
	// Profiles is nil when no live provider is configured.
	Profiles counter.ProfileLister
	// Ready reports whether downstreams are usable; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the importer, aggregator and stores.
type Server struct {
	router  chi.Router
	deps    Dependencies
	logger  *zap.Logger
	timeout time.Duration
}

const (
	requestTimeout = 60 * time.Second
	readTimeout    = 3 * time.Second
)

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, auth config.AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{deps: deps, logger: logger, timeout: readTimeout}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if auth.Enabled {
			r.Use(apiKeyMiddleware(auth.APIKey))
		}
		r.Post("/import/chunks/{index}", s.importChunk)
		r.Route("/resources/{resource_id}", func(r chi.Router) {
			r.Get("/total", s.aggregateResource)
			r.Get("/stored-total", s.storedTotal)
			r.Get("/variants", s.variants)
		})
		r.Get("/paths/count", s.countPath)
		r.Get("/pageviews", s.listPageviews)
		r.Get("/profiles", s.listProfiles)
		r.Route("/auth", func(r chi.Router) {
			r.Get("/status", s.authStatus)
			r.Post("/revoke", s.revokeAuth)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeDomainError maps domain errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, action string) {
	var upErr *counter.UpstreamRequestError
	switch {
	case errors.Is(err, counter.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &upErr):
		writeError(w, http.StatusBadGateway, upErr.Error())
	case counter.IsConfigurationError(err):
		s.logger.Error(action+" misconfigured", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, counter.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, action+" timed out")
	default:
		s.logger.Error(action+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, action+" failed")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
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

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
