package bootstrap

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/dalemusser/contactrelay/app"
	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/internal/contact"
	"github.com/dalemusser/contactrelay/metrics"
	"github.com/dalemusser/contactrelay/pantry/health"
	"github.com/dalemusser/contactrelay/pantry/ratelimit"
	"github.com/dalemusser/contactrelay/pantry/session"
	"github.com/dalemusser/contactrelay/pantry/version"
	"github.com/dalemusser/contactrelay/router"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LoadConfig loads the core config and the contact settings from flags,
// CONTACT_* env vars, and an optional config file.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	core, values, err := config.Load(logger, os.Args[1:], appKeys...)
	if err != nil {
		return nil, AppConfig{}, err
	}
	appCfg, err := appConfigFrom(values)
	if err != nil {
		return nil, AppConfig{}, err
	}
	return core, appCfg, nil
}

// BuildHandler mounts /health, /version, /metrics, and the contact endpoint.
func BuildHandler(core *config.CoreConfig, appCfg AppConfig, deps Deps, logger *zap.Logger) (http.Handler, error) {
	r := router.New(core, logger, router.Options{
		TrustProxy: appCfg.TrustProxy,
		QuietPaths: []string{"/health", "/metrics"},
	})

	health.Mount(r, map[string]health.Check{
		"sessions": deps.Stamps.Ping,
		"mail":     mailCheck(deps),
	}, 5*time.Second, logger)
	version.Mount(r)
	if core.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	h := contact.NewHandler(contact.Config{
		SiteName:      appCfg.SiteName,
		HoneypotField: appCfg.HoneypotField,
		MinInterval:   appCfg.MinInterval,
		Location:      appCfg.Location,
		SpamTerms:     appCfg.SpamTerms,
	}, deps.Mail, deps.Stamps, logger)

	r.Group(func(r chi.Router) {
		if deps.Flood != nil {
			r.Use(ratelimit.Middleware(deps.Flood, ratelimit.Config{
				OnLimited: func(req *http.Request, key string) {
					metrics.Submission(metrics.OutcomeFlooded)
					logger.Warn("contact flood limit hit", zap.String("ip", key), zap.String("path", req.URL.Path))
				},
			}))
		}
		r.Use(session.Middleware(deps.Sessions, logger))
		h.Mount(r, appCfg.ContactPath)
	})

	return r, nil
}

func mailCheck(deps Deps) health.Check {
	return func(ctx context.Context) error {
		m, err := deps.Mail.Mailer()
		if err != nil {
			return err
		}
		return m.Transport.Check(ctx)
	}
}

// sessionConfig sets cookie flags. A form posted cross-origin over HTTPS
// needs SameSite=None for the browser to send the cookie back.
func sessionConfig(core *config.CoreConfig, appCfg AppConfig) session.Config {
	cfg := session.Config{
		CookieName: appCfg.SessionCookie,
		MaxAge:     appCfg.SessionMaxAge,
		Secure:     core.HTTP.UseHTTPS,
	}
	if core.CORS.EnableCORS && core.HTTP.UseHTTPS {
		cfg.SameSite = http.SameSiteNoneMode
	}
	return cfg
}

// Hooks wires the contact service into app.Run.
var Hooks = app.Hooks[AppConfig, Deps]{
	Name:         "contactd",
	LoadConfig:   LoadConfig,
	Connect:      Connect,
	Verify:       Verify,
	BuildHandler: BuildHandler,
	Close:        Close,
}
