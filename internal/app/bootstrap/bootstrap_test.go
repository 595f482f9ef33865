package bootstrap

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/internal/contact"
	"github.com/dalemusser/contactrelay/internal/testutil"
	"github.com/dalemusser/contactrelay/middleware"
	"github.com/dalemusser/contactrelay/pantry/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAppConfig(t *testing.T) AppConfig {
	return AppConfig{
		ContactPath:    "/contact",
		SiteName:       "Example",
		HoneypotField:  "fax",
		MinInterval:    time.Minute,
		SessionBackend: BackendMemory,
		SessionCookie:  "contact_session",
		SessionMaxAge:  time.Hour,
		MailConfigPath: filepath.Join(t.TempDir(), "mail.toml"),
		Location:       time.UTC,
	}
}

func testCore() *config.CoreConfig {
	return &config.CoreConfig{Env: "dev", EnableMetrics: true, MaxRequestBodyBytes: 64 << 10}
}

func buildClient(t *testing.T, appCfg AppConfig) *testutil.Client {
	t.Helper()
	core := testCore()
	deps, err := Connect(context.Background(), core, appCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(deps) })

	require.NoError(t, Verify(context.Background(), core, appCfg, deps, zap.NewNop()))

	h, err := BuildHandler(core, appCfg, deps, zap.NewNop())
	require.NoError(t, err)
	return testutil.NewClient(t, h)
}

func TestAppConfigFrom(t *testing.T) {
	cfg, err := appConfigFrom(config.AppConfigValues{
		"contact_path":       "/api/contact",
		"site_name":          "Example",
		"honeypot_field":     "website",
		"min_interval":       "90s",
		"spam_terms":         []string{"crypto"},
		"session_backend":    "Memory",
		"session_max_age":    "2h",
		"mail_config":        "/etc/contactrelay/mail.toml",
		"timezone":           "America/Chicago",
		"ip_rate_per_minute": 10,
		"ip_burst":           2,
	})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.MinInterval)
	assert.Equal(t, 2*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, BackendMemory, cfg.SessionBackend)
	assert.Equal(t, []string{"crypto"}, cfg.SpamTerms)
	assert.Equal(t, "America/Chicago", cfg.Location.String())
}

func TestAppConfigValidate(t *testing.T) {
	base := config.AppConfigValues{
		"contact_path":    "/contact",
		"session_backend": "memory",
		"session_max_age": "24h",
		"mail_config":     "/etc/contactrelay/mail.toml",
	}
	_, err := appConfigFrom(base)
	require.NoError(t, err)

	bad := map[string]config.AppConfigValues{
		"relative path": {"contact_path": "contact"},
		"redis no url":  {"session_backend": "redis"},
		"unknown store": {"session_backend": "mongo"},
		"no mail file":  {"mail_config": ""},
		"bad timezone":  {"timezone": "Mars/Olympus"},
	}
	for name, override := range bad {
		t.Run(name, func(t *testing.T) {
			v := config.AppConfigValues{}
			for k, val := range base {
				v[k] = val
			}
			for k, val := range override {
				v[k] = val
			}
			_, err := appConfigFrom(v)
			assert.Error(t, err)
		})
	}
}

func TestRoutes(t *testing.T) {
	c := buildClient(t, testAppConfig(t))

	resp := c.Do(http.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = c.Do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = c.Do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "error", resp.Envelope().Status)

	resp = c.Do(http.MethodGet, "/contact", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	assert.Equal(t, middleware.MethodNotAllowedMessage, resp.Envelope().Message)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestHealthReportsMissingMailConfig(t *testing.T) {
	c := buildClient(t, testAppConfig(t))
	resp := c.Do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, string(resp.Body), `"sessions":"ok"`)
}

func TestContactWithoutMailConfig(t *testing.T) {
	c := buildClient(t, testAppConfig(t))
	resp := c.PostForm("/contact", url.Values{
		"name":    {"John"},
		"email":   {"john@example.com"},
		"message": {"Hello, this is a test message."},
	})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, contact.MsgConfigError, resp.Envelope().Message)
	assert.NotEmpty(t, c.Cookie("contact_session"))
}

func TestFloodGuard(t *testing.T) {
	appCfg := testAppConfig(t)
	appCfg.IPRatePerMinute = 1
	appCfg.IPBurst = 1
	c := buildClient(t, appCfg)

	first := c.PostForm("/contact", url.Values{"name": {"A"}})
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := c.PostForm("/contact", url.Values{"name": {"A"}})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, ratelimit.DefaultMessage, second.Envelope().Message)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))

	assert.Equal(t, http.StatusOK, c.Do(http.MethodGet, "/version", "", nil).Code)
}

func TestConnectRedisRetriesUntilDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	client, err := connectRedis(ctx, "redis://127.0.0.1:1/0", zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Less(t, time.Since(start), 3*time.Second)
}
