package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidHost(t *testing.T) {
	good := []string{"example.com", "example.com:8443", "[::1]:443", "[fe80::1%eth0]", "localhost"}
	bad := []string{"", "evil.com\r\nX: y", "a b", "http://x", "/path", "example.com:0", "example.com:99999", "[nope]"}
	for _, h := range good {
		assert.True(t, validHost(h), h)
	}
	for _, h := range bad {
		assert.False(t, validHost(h), h)
	}
}

func TestRedirectHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/contact?x=1", nil)
	rec := httptest.NewRecorder()
	RedirectHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/contact?x=1", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "bad host"
	rec = httptest.NewRecorder()
	RedirectHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckKeyFile(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(key, []byte("k"), 0o600))
	assert.NoError(t, checkKeyFile(key))

	assert.Error(t, checkKeyFile(filepath.Join(dir, "missing.pem")))
	assert.Error(t, checkKeyFile(dir))

	if runtime.GOOS != "windows" {
		require.NoError(t, os.Chmod(key, 0o644))
		assert.Error(t, checkKeyFile(key))
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	cfg := &config.CoreConfig{}
	cfg.HTTP.HTTPPort = freePort(t)
	cfg.HTTP.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServeWithContext(ctx, cfg, http.NotFoundHandler(), nil)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestListenAndServeRejectsNil(t *testing.T) {
	assert.Error(t, ListenAndServeWithContext(context.Background(), nil, http.NotFoundHandler(), nil))
	assert.Error(t, ListenAndServeWithContext(context.Background(), &config.CoreConfig{}, nil, nil))
}

func freePort(t *testing.T) int {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	port := srv.Listener.Addr().(*net.TCPAddr).Port
	srv.Close()
	return port
}
