package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies. Every request gets
// its own orchestrator session built from the shared deps.
type Server struct {
	deps        orchestrator.Deps
	catalog     *diagnosis.Catalog
	logger      *slog.Logger
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	rateLimiter *RateLimiter
}

// RateLimitConfig configures the optional per-client limiter.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	RateLimit   RateLimitConfig
}

// modelStatus is implemented by classifiers that can report their load state.
type modelStatus interface {
	Ready() bool
	ModelName() string
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version,omitempty"`
	Time       string `json:"time"`
	Classifier string `json:"classifier,omitempty"`
	Model      string `json:"model,omitempty"`
}

// DiseasesResponse is returned by /diseases.
type DiseasesResponse struct {
	Diseases []diagnosis.Info `json:"diseases"`
	Count    int              `json:"count"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a server over the given analysis collaborators. A nil
// catalog selects the embedded knowledge base.
func NewServer(config Config, deps orchestrator.Deps, catalog *diagnosis.Catalog, logger *slog.Logger) (*Server, error) {
	// Validate once up front; sessions are created per request.
	if _, err := orchestrator.New(deps); err != nil {
		return nil, err
	}
	if config.MaxUploadMB <= 0 {
		return nil, errors.New("server: max upload size must be positive")
	}
	if catalog == nil {
		catalog = diagnosis.DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:        deps,
		catalog:     catalog,
		logger:      logger,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// session starts a fresh analysis session for one request.
func (s *Server) session(observer orchestrator.Observer, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if observer != nil {
		opts = append(opts, orchestrator.WithObserver(observer))
	}
	return orchestrator.New(s.deps, opts...)
}

// requestContext bounds an analysis by the configured timeout.
func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(s.timeoutSec)*time.Second)
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/diseases", s.corsMiddleware(s.diseasesHandler))
	mux.HandleFunc("/diseases/{id}", s.corsMiddleware(s.diseaseHandler))
	mux.HandleFunc("/analyze", s.corsMiddleware(s.rateLimitMiddleware(s.analyzeHandler)))
	mux.HandleFunc("/ws/analyze", s.rateLimitMiddleware(s.analyzeWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// PruneRateLimits drops stale limiter entries every interval until ctx is
// done. It returns immediately when rate limiting is disabled.
func (s *Server) PruneRateLimits(ctx context.Context, interval time.Duration) {
	if s.rateLimiter == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Prune(); n > 0 {
				s.logger.Debug("Pruned rate limit entries", "count", n)
			}
		}
	}
}
