package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/contactrelay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitBodySize(t *testing.T) {
	var readErr error
	h := LimitBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Request body too large."}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader("0123456789"))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var tooLarge *http.MaxBytesError
	assert.ErrorAs(t, readErr, &tooLarge)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader("small")))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, readErr)
}

func TestLimitBodySize_Disabled(t *testing.T) {
	rec := httptest.NewRecorder()
	LimitBodySize(0)(okHandler()).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(strings.Repeat("x", 1<<20))))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouteErrorHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Not found."}`, rec.Body.String())

	rec = httptest.NewRecorder()
	MethodNotAllowedHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Method not allowed."}`, rec.Body.String())
}

func TestCORSFromConfig(t *testing.T) {
	cfg := &config.CoreConfig{}
	next := okHandler()
	req := httptest.NewRequest(http.MethodPost, "/contact", nil)
	req.Header.Set("Origin", "https://www.example.com")
	rec := httptest.NewRecorder()
	CORSFromConfig(cfg)(next).ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "CORS disabled")

	cfg.CORS.EnableCORS = true
	cfg.CORS.CORSAllowedOrigins = []string{"https://www.example.com"}
	h := CORSFromConfig(cfg)(next)

	req = httptest.NewRequest(http.MethodOptions, "/contact", nil)
	req.Header.Set("Origin", "https://www.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "https://www.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	req = httptest.NewRequest(http.MethodPost, "/contact", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
