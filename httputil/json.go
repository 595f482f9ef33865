// httputil/json.go
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
)

// Status values carried in the response envelope.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Status is the JSON envelope every endpoint answers with:
// {"status":"success"|"error","message":"..."}.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

var logger atomic.Pointer[zap.Logger]

// SetLogger sets where encoding failures are reported. Until it is called
// they are dropped.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

// WriteJSON writes v as JSON with the given code. Codes outside 100-599
// become 500. An encoding failure can only be logged since the header is
// already written.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	if code < 100 || code > 599 {
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		if l := logger.Load(); l != nil {
			l.Error("json encoding failed after header was sent",
				zap.String("type", fmt.Sprintf("%T", v)),
				zap.Error(err))
		}
	}
}

// WriteStatus discards anything already buffered for this response and
// writes the status envelope with the given HTTP code.
//
// The status field is "success" for 2xx codes and "error" otherwise.
func WriteStatus(w http.ResponseWriter, code int, message string) {
	ResetResponse(w)
	status := StatusError
	if code >= 200 && code < 300 {
		status = StatusSuccess
	}
	WriteJSON(w, code, Status{Status: status, Message: message})
}

// Error writes an error envelope with the given HTTP code.
func Error(w http.ResponseWriter, code int, message string) {
	WriteStatus(w, code, message)
}
