// middleware/notfound.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/contactrelay/httputil"
	"go.uber.org/zap"
)

// Messages for routing failures, in the same envelope as every other answer.
const (
	NotFoundMessage         = "Not found."
	MethodNotAllowedMessage = "Method not allowed."
)

// NotFoundHandler answers unknown paths with a JSON 404. Pass it to
// chi.Router.NotFound.
func NotFoundHandler(logger *zap.Logger) http.HandlerFunc {
	return routeError(logger, "not_found", http.StatusNotFound, NotFoundMessage)
}

// MethodNotAllowedHandler answers a known path with the wrong method. Pass
// it to chi.Router.MethodNotAllowed.
func MethodNotAllowedHandler(logger *zap.Logger) http.HandlerFunc {
	return routeError(logger, "method_not_allowed", http.StatusMethodNotAllowed, MethodNotAllowedMessage)
}

func routeError(logger *zap.Logger, event string, code int, message string) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Info(event,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_ip", r.RemoteAddr))
		httputil.Error(w, code, message)
	}
}
