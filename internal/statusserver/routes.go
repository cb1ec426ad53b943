package statusserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"jobredirect/internal/dispatcher"
	"jobredirect/internal/health"
	"jobredirect/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Controller    Controller
	View          ViewSource
	HealthChecker *health.Checker
	Dispatcher    dispatcher.Dispatcher
	Metrics       *observability.Metrics
	Token         string
}

// NewRouter creates the status server router.
func NewRouter(cfg RouterConfig) http.Handler {
	h := NewHandler(cfg.Controller, cfg.View, cfg.HealthChecker, cfg.Dispatcher)

	r := chi.NewRouter()
	r.Use(RecoveryMiddleware())
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}

	// Probes: no auth
	r.Get("/livez", h.Livez)
	r.Get("/readyz", h.Readyz)

	r.Get("/status", h.Status)
	r.Get("/debug/dispatcher", h.DispatcherStats)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Token))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/dismiss", h.Dismiss)
		r.Post("/cancel", h.Cancel)
	})

	return r
}

// NewServer wraps a handler in an http.Server with the usual timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
