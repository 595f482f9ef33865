// session/middleware.go
package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type contextKey struct{}

// Middleware loads (or creates) the session for each request and makes it
// available via FromContext. A new or modified session is saved, and its
// cookie set, just before the first byte of the response is written.
func Middleware(m *Manager, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.Get(r)
			if err != nil {
				logger.Warn("session load failed; issuing a new session", zap.Error(err))
			}
			if s == nil {
				if s, err = m.New(); err != nil {
					logger.Error("session create failed", zap.Error(err))
					next.ServeHTTP(w, r)
					return
				}
			}

			r = r.WithContext(context.WithValue(r.Context(), contextKey{}, s))
			sw := &sessionWriter{ResponseWriter: w, request: r, session: s, manager: m, logger: logger}
			next.ServeHTTP(sw, r)
			sw.save()
		})
	}
}

// FromContext returns the request's session, or nil when Middleware is not installed.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// sessionWriter saves the session before the response headers go out.
type sessionWriter struct {
	http.ResponseWriter
	request *http.Request
	session *Session
	manager *Manager
	logger  *zap.Logger
	saved   bool
}

func (sw *sessionWriter) save() {
	if sw.saved || !sw.session.Modified() {
		return
	}
	sw.saved = true
	if err := sw.manager.Save(sw.ResponseWriter, sw.request, sw.session); err != nil {
		sw.logger.Warn("session save failed", zap.Error(err))
	}
}

func (sw *sessionWriter) WriteHeader(code int) {
	sw.save()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.save()
	return sw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController and to
// httputil.ResetResponse.
func (sw *sessionWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
