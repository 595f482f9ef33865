// router/router.go
package router

import (
	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/logging"
	"github.com/dalemusser/contactrelay/metrics"
	"github.com/dalemusser/contactrelay/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Options tune the shared middleware stack.
type Options struct {
	// TrustProxy enables chi's RealIP, which rewrites RemoteAddr from
	// X-Forwarded-For / X-Real-IP. Only enable behind a proxy you control.
	TrustProxy bool

	// QuietPaths are left out of the access log when they succeed.
	QuietPaths []string
}

// New creates a chi.Router with the standard middleware stack, outermost first:
//   - RequestID (and RealIP when trusted)
//   - Recoverer (buffers the response; panic → JSON 500)
//   - access log and HTTP metrics
//   - security headers, CORS
//   - body size limit
//   - JSON 404 / 405 handlers
//
// Routes, sessions, and rate limits are mounted by the caller.
func New(coreCfg *config.CoreConfig, logger *zap.Logger, opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(logging.Recoverer(logger))

	r.Use(logging.RequestLogger(logger, opts.QuietPaths...))
	r.Use(metrics.HTTPMetrics)

	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))
	r.Use(middleware.CORSFromConfig(coreCfg))

	r.Use(middleware.LimitBodySize(coreCfg.MaxRequestBodyBytes))

	r.NotFound(middleware.NotFoundHandler(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler(logger))

	return r
}
