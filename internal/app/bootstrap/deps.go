package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/pantry/email"
	"github.com/dalemusser/contactrelay/pantry/ratelimit"
	"github.com/dalemusser/contactrelay/pantry/retry"
	"github.com/dalemusser/contactrelay/pantry/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the backends shared by every request.
type Deps struct {
	Sessions *session.Manager
	Stamps   session.Stamps
	Mail     *email.Provider

	// Flood is nil when the per-IP limit is disabled.
	Flood *ratelimit.KeyLimiter
}

// Connect opens the session and stamp stores and prepares the mail provider.
// The mail config itself is read on demand, so a missing file does not stop
// the service from starting.
func Connect(ctx context.Context, core *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (Deps, error) {
	var deps Deps

	var store session.Store
	switch appCfg.SessionBackend {
	case BackendRedis:
		client, err := connectRedis(ctx, appCfg.RedisURL, logger)
		if err != nil {
			return deps, err
		}
		store = session.NewRedisStore(client, session.DefaultSessionPrefix, true)
		deps.Stamps = session.NewRedisStamps(client, session.DefaultStampPrefix, appCfg.SessionMaxAge, false)
	default:
		store = session.NewMemoryStore(10 * time.Minute)
		deps.Stamps = session.NewMemoryStamps(appCfg.SessionMaxAge)
	}

	deps.Sessions = session.NewManager(store, sessionConfig(core, appCfg))
	deps.Mail = email.NewProvider(appCfg.MailConfigPath, core.Env == "prod", logger)

	if appCfg.IPRatePerMinute > 0 {
		deps.Flood = ratelimit.NewKeyLimiter(float64(appCfg.IPRatePerMinute), appCfg.IPBurst, time.Hour)
	}

	logger.Info("backends ready",
		zap.String("session_backend", appCfg.SessionBackend),
		zap.String("mail_config", appCfg.MailConfigPath))
	return deps, nil
}

// connectRedis retries the initial ping so the service can start alongside
// a redis that is still coming up. The startup timeout bounds the attempts.
func connectRedis(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	var client *redis.Client
	err := retry.Do(ctx, retry.Config{
		Attempts: 5,
		Jitter:   0.2,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logger.Warn("redis not reachable; retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	}, func(ctx context.Context) error {
		c, err := session.ConnectRedisURL(ctx, url)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client, err
}

// Verify reports the state of the mail config and stamp store at startup.
// A missing or broken mail config is logged, not fatal: requests that reach
// the send step answer with a configuration error until it is fixed.
func Verify(ctx context.Context, _ *config.CoreConfig, _ AppConfig, deps Deps, logger *zap.Logger) error {
	if err := deps.Stamps.Ping(ctx); err != nil {
		return fmt.Errorf("stamp store: %w", err)
	}
	m, err := deps.Mail.Mailer()
	if err != nil {
		logger.Warn("mail config not usable yet; submissions will fail until it is", zap.Error(err))
		return nil
	}
	logger.Info("mail transport selected", zap.String("transport", m.Transport.Name()))
	return nil
}

// Close releases the stores and the flood limiter.
func Close(deps Deps) error {
	if deps.Flood != nil {
		deps.Flood.Close()
	}
	var errs []error
	if deps.Stamps != nil {
		errs = append(errs, deps.Stamps.Close())
	}
	if deps.Sessions != nil {
		errs = append(errs, deps.Sessions.Close())
	}
	return errors.Join(errs...)
}
