package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/rollout/pkg/logger"
	"github.com/dmitrymomot/rollout/pkg/rollout"
)

type routerConfig struct {
	log     *slog.Logger
	metrics http.Handler
	checks  []Check
}

// RouterOption configures NewRouter.
type RouterOption func(*routerConfig)

// WithLogger sets the logger used for requests and handler errors.
// Build it with logger.WithContextValue("request_id", middleware.RequestIDKey)
// to tag records with the request id.
func WithLogger(l *slog.Logger) RouterOption {
	return func(c *routerConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(c *routerConfig) { c.metrics = h }
}

// WithReadinessChecks adds dependency probes to /readyz.
func WithReadinessChecks(checks ...Check) RouterOption {
	return func(c *routerConfig) { c.checks = append(c.checks, checks...) }
}

// NewRouter builds the admin API:
//
//	GET    /healthz
//	GET    /readyz
//	GET    /metrics
//	GET    /features
//	GET    /features/{name}
//	GET    /features/{name}/active?user=|ip=
//	GET    /features/{name}/events
//	POST   /features/{name}/activate
//	POST   /features/{name}/deactivate
//	PUT    /features/{name}/percentage
//	DELETE /features/{name}/percentage
//	POST   /features/{name}/users
//	DELETE /features/{name}/users/{id}
//	POST   /features/{name}/groups
//	DELETE /features/{name}/groups/{group}
//	POST   /features/{name}/ips
//	DELETE /features/{name}/ips/{ip}
func NewRouter(r *rollout.Rollout, opts ...RouterOption) http.Handler {
	cfg := &routerConfig{log: logger.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}
	h := NewHandler(r, cfg.log)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(cfg.log))

	router.Get("/healthz", HealthCheckHandler(cfg.log))
	router.Get("/readyz", HealthCheckHandler(cfg.log, cfg.checks...))
	if cfg.metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	router.Route("/features", func(fr chi.Router) {
		fr.Get("/", h.List)
		fr.Route("/{name}", func(fr chi.Router) {
			fr.Get("/", h.Get)
			fr.Get("/active", h.Active)
			fr.Get("/events", h.Events)
			fr.Post("/activate", h.Activate)
			fr.Post("/deactivate", h.Deactivate)
			fr.Put("/percentage", h.SetPercentage)
			fr.Delete("/percentage", h.ResetPercentage)
			fr.Post("/users", h.AddUser)
			fr.Delete("/users/{id}", h.RemoveUser)
			fr.Post("/groups", h.AddGroup)
			fr.Delete("/groups/{group}", h.RemoveGroup)
			fr.Post("/ips", h.AddIP)
			fr.Delete("/ips/{ip}", h.RemoveIP)
		})
	})

	return router
}

// requestLogger logs every request at debug level.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.DebugContext(r.Context(), "http request",
				logger.Group("http",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
				),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
