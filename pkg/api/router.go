package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/psantana5/crashloop/pkg/auth"
	"github.com/psantana5/crashloop/pkg/logging"
	"github.com/psantana5/crashloop/pkg/middleware"
	"github.com/psantana5/crashloop/pkg/ratelimit"
	"github.com/psantana5/crashloop/pkg/tracing"
)

// RouterOptions wires the cross-cutting middleware. Nil fields are skipped.
type RouterOptions struct {
	Tracer   *tracing.Provider
	Limiter  *ratelimit.Limiter
	Keys     *auth.KeyStore
	Recorder middleware.Recorder
	Logger   *logging.Logger
}

// publicPaths bypass API key checks. Browsers cannot attach headers to an
// EventSource, so the log stream is public too.
var publicPaths = []string{"/health", "/metrics", "/logs/stream"}

// NewRouter mounts h behind tracing, request logging, rate limiting and
// API key checks, in that order. CORS wraps the whole router so preflight
// requests never reach route matching.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	r := mux.NewRouter()
	if opts.Tracer != nil {
		r.Use(tracing.HTTPMiddleware(opts.Tracer))
	}
	r.Use(middleware.Observe(logger, opts.Recorder))
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware(ratelimit.IPKeyFunc))
	}
	if opts.Keys != nil {
		r.Use(auth.Middleware(opts.Keys, middleware.SkipPaths(publicPaths...)))
	}

	h.RegisterRoutes(r)
	return middleware.CORS(r)
}
