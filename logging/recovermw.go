// logging/recovermw.go
package logging

import (
	"net/http"
	"runtime/debug"

	"github.com/dalemusser/contactrelay/httputil"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// PanicMessage is the client-facing message for an unhandled panic.
const PanicMessage = "An unexpected error occurred."

// Recoverer returns a middleware that buffers each response, recovers from
// panics, logs them with a stack trace, and replaces whatever was buffered
// with a JSON 500 status envelope.
//
// Handlers below it never commit bytes to the client themselves, so the
// envelope can always be written. The one exception is a handler that
// streams through http.ResponseController; those panics are logged only.
func Recoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bw := httputil.NewBufferedWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					_ = bw.Commit()
					return
				}
				if rec == http.ErrAbortHandler {
					// Let net/http abort the connection quietly.
					panic(rec)
				}

				logger.Error("panic recovered",
					zap.Any("panic_value", rec),
					zap.ByteString("stacktrace", debug.Stack()),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_ip", r.RemoteAddr),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)

				if bw.Committed() {
					logger.Warn("panic occurred after response was committed; response may be incomplete",
						zap.Int("status_already_sent", bw.Status()),
						zap.String("path", r.URL.Path))
					return
				}
				httputil.Error(bw, http.StatusInternalServerError, PanicMessage)
				_ = bw.Commit()
			}()

			next.ServeHTTP(bw, r)
		})
	}
}
