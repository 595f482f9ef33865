// middleware/sizelimit.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/contactrelay/httputil"
)

// TooLargeMessage is returned when a declared body exceeds the limit.
const TooLargeMessage = "Request body too large."

// LimitBodySize returns a middleware that limits the size of the request body
// to maxBytes. If maxBytes <= 0, it is a no-op and does not wrap the body.
//
// Requests that declare a larger Content-Length are refused with a JSON 413
// before the handler runs; chunked bodies are cut off by http.MaxBytesReader
// and surface as a read error in the handler.
func LimitBodySize(maxBytes int64) func(next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.Error(w, http.StatusRequestEntityTooLarge, TooLargeMessage)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
