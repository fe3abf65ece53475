// Package server is the multi-user HTTP host: uploads open a session, and
// each session renders against shared reference data.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/regionmap/internal/cache"
	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/metrics"
	"github.com/sells-group/regionmap/internal/pipeline"
	"github.com/sells-group/regionmap/internal/session"
	"github.com/sells-group/regionmap/internal/table"
)

// Renderer runs render passes. *pipeline.Pipeline implements it.
type Renderer interface {
	Render(req pipeline.RenderRequest) (*pipeline.Result, error)
	DefaultThresholds(t *table.Table, s pipeline.Settings) ([]pipeline.ColumnThresholds, error)
	Forget(fingerprint string)
	CacheStats() map[string]cache.Stats
}

// Config holds the host's limits and the settings new sessions start with.
type Config struct {
	AllowedOrigins []string
	// RateLimit is the sustained render requests per second across all
	// sessions; RateBurst the burst above it.
	RateLimit      float64
	RateBurst      int
	MaxUploadBytes int64
	Defaults       pipeline.Settings
	// Levels are the levels the reference data can render.
	Levels []geography.Level
}

// Server serves the HTTP API.
type Server struct {
	renderer Renderer
	sessions *session.Store
	cfg      Config
	limiter  *rate.Limiter
	log      *zap.Logger
}

// New creates a Server.
func New(renderer Renderer, sessions *session.Store, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Server{
		renderer: renderer,
		sessions: sessions,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.RateBurst),
		log:      zap.L().With(zap.String("component", "server")),
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/levels", s.handleLevels)
		r.Get("/placeholder", s.handlePlaceholder)
		r.Get("/cache", s.handleCacheStats)
		r.Post("/sessions", s.handleUpload)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.With(s.rateLimit).Post("/render", s.handleRender)
			r.With(s.rateLimit).Get("/thresholds", s.handleThresholds)
			r.Put("/thresholds", s.handleSetThreshold)
		})
	})
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests, try again shortly.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("server: encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	s.writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: message, Details: details},
	})
}
