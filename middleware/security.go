// middleware/security.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/contactrelay/config"
)

// SecurityHeadersOptions configures the security headers middleware.
// An empty string disables the corresponding header.
type SecurityHeadersOptions struct {
	// Default: "DENY". JSON responses are never framed.
	XFrameOptions string

	// Default: "nosniff".
	XContentTypeOptions string

	// Default: "no-referrer".
	ReferrerPolicy string

	// Default: "default-src 'none'; frame-ancestors 'none'".
	ContentSecurityPolicy string

	// Default: "no-store". Form results must not be cached by proxies.
	CacheControl string

	// HSTSMaxAge sets the Strict-Transport-Security max-age in seconds.
	// Only sent when the request is over HTTPS. 0 disables HSTS.
	HSTSMaxAge int

	HSTSIncludeSubDomains bool
	HSTSPreload           bool
}

// DefaultSecurityHeadersOptions returns options suited to a JSON-only API.
func DefaultSecurityHeadersOptions() SecurityHeadersOptions {
	return SecurityHeadersOptions{
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		CacheControl:          "no-store",
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubDomains: true,
	}
}

// SecurityHeaders returns middleware that sets the configured headers on
// every response before the handler runs.
func SecurityHeaders(opts SecurityHeadersOptions) func(next http.Handler) http.Handler {
	var hsts string
	if opts.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(opts.HSTSMaxAge)
		if opts.HSTSIncludeSubDomains {
			hsts += "; includeSubDomains"
		}
		if opts.HSTSPreload {
			hsts += "; preload"
		}
	}

	static := [][2]string{
		{"X-Frame-Options", opts.XFrameOptions},
		{"X-Content-Type-Options", opts.XContentTypeOptions},
		{"Referrer-Policy", opts.ReferrerPolicy},
		{"Content-Security-Policy", opts.ContentSecurityPolicy},
		{"Cache-Control", opts.CacheControl},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range static {
				if kv[1] != "" {
					h.Set(kv[0], kv[1])
				}
			}
			// Only over TLS so plain-HTTP development stays usable.
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersFromConfig returns the default headers, with HSTS only
// when the service itself terminates TLS.
func SecurityHeadersFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	opts := DefaultSecurityHeadersOptions()
	if coreCfg == nil || !coreCfg.HTTP.UseHTTPS {
		opts.HSTSMaxAge = 0
	}
	return SecurityHeaders(opts)
}
