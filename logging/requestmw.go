// logging/requestmw.go
package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestLogger returns a middleware that logs one line per request with
// method, path, status, bytes, latency, remote IP, user agent, and request ID.
// 5xx responses log at error level and 4xx at warn. Paths in quiet (for
// example liveness probes) are only logged when they fail.
func RequestLogger(logger *zap.Logger, quiet ...string) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// A panic is logged as a 500 here and re-raised for the Recoverer
			// mounted outside.
			defer func() {
				rec := recover()
				status := ww.Status()
				if rec != nil {
					status = http.StatusInternalServerError
				}
				logRequest(logger, skip, r, ww, status, time.Since(start))
				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func logRequest(logger *zap.Logger, skip map[string]struct{}, r *http.Request, ww middleware.WrapResponseWriter, status int, latency time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	level := zapcore.InfoLevel
	switch {
	case status >= 500:
		level = zapcore.ErrorLevel
	case status >= 400:
		level = zapcore.WarnLevel
	}
	if _, ok := skip[r.URL.Path]; ok && level == zapcore.InfoLevel {
		return
	}

	if ce := logger.Check(level, "http_request"); ce != nil {
		ce.Write(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("scheme", schemeFromRequest(r)),
			zap.String("proto", r.Proto),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("remote_ip", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
			zap.String("referer", r.Referer()),
			zap.Duration("latency", latency),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
}

func schemeFromRequest(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		return xf
	}
	return "http"
}
