// middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/contactrelay/config"
	"github.com/go-chi/cors"
)

// Contact forms are posted by browser fetch/XHR or plain form submission,
// so these cover every preflight the endpoint will see.
var (
	defaultCORSMethods = []string{http.MethodPost, http.MethodOptions}
	defaultCORSHeaders = []string{"Accept", "Content-Type", "X-Requested-With"}
)

// CORSFromConfig returns a middleware that applies CORS behavior based on the
// given CoreConfig's CORS section, or an identity middleware when CORS is off.
// Empty method and header lists fall back to what a form post needs.
func CORSFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.CORS.EnableCORS {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	c := coreCfg.CORS
	opts := cors.Options{
		AllowedOrigins:   c.CORSAllowedOrigins,
		AllowedMethods:   c.CORSAllowedMethods,
		AllowedHeaders:   c.CORSAllowedHeaders,
		ExposedHeaders:   c.CORSExposedHeaders,
		AllowCredentials: c.CORSAllowCredentials,
		MaxAge:           c.CORSMaxAge,
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = defaultCORSMethods
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = defaultCORSHeaders
	}

	return cors.Handler(opts)
}
