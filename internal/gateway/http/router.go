package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/service"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
	"github.com/aussiebroadwan/hwidgate/pkg/httpx"
	"github.com/aussiebroadwan/hwidgate/pkg/slogx"

	_ "github.com/aussiebroadwan/hwidgate/api/gateway" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// DefaultProtectedFiles are basenames that are never served, whatever the
// configured file locations are.
var DefaultProtectedFiles = []string{"hwids.json", ".env", "config.ini"}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store   store.Registry
	metrics *metrics.Metrics

	AuthorizeService  *service.AuthorizeService
	ContentService    *service.ContentService
	AccessRecorder    *service.AccessRecorder
	TrustProxyHeaders bool
}

// NewRouter builds a router. protectedFiles are added to
// DefaultProtectedFiles and refused before any route is matched.
func NewRouter(
	buildVersion string,
	st store.Registry,
	m *metrics.Metrics,
	logger *slog.Logger,
	protectedFiles ...string,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		metrics:      m,
	}

	denied := append(append([]string{}, DefaultProtectedFiles...), protectedFiles...)

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.DenyBasenames(denied...),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLoader()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			hwidgate Loader API
//	@version		0.1.0
//	@description	Serves a protected artifact to callers whose hardware identifier is authorized.
//	@description
//	@description	Denials are plain text tokens: not_authorized or expired.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/hwidgate
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@schemes		http https
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h with per-route instrumentation. Instrumentation wraps
// the route handler rather than the mux so the matched pattern is known.
func (r *Router) handle(pattern string, h http.Handler) {
	if r.metrics != nil {
		h = r.metrics.Instrument(h)
	}
	r.Mux.Handle(pattern, h)
}

func (r *Router) registerLoader() {
	h := &LoaderHandler{
		Authorizer:        r.AuthorizeService,
		Fetcher:           r.ContentService,
		TrustProxyHeaders: r.TrustProxyHeaders,
	}
	if r.AccessRecorder != nil {
		h.Recorder = r.AccessRecorder
	}

	// The root route keeps existing loader scripts working.
	r.handle("GET /{$}", h)
	r.handle("GET /v1/loader", h)
}

func (r *Router) registerSystem() {
	health := HealthHandler{Started: r.startTime, Version: r.buildVersion, Store: r.store}
	r.handle("GET /livez", http.HandlerFunc(health.Livez))
	r.handle("GET /readyz", http.HandlerFunc(health.Readyz))

	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}
}
