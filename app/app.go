// app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/httputil"
	"github.com/dalemusser/contactrelay/logging"
	"github.com/dalemusser/contactrelay/metrics"
	"github.com/dalemusser/contactrelay/server"
	"go.uber.org/zap"
)

// DefaultStartupTimeout bounds Hooks.Connect and Hooks.Verify.
const DefaultStartupTimeout = 15 * time.Second

// Hooks are the integration points a service supplies to Run. C is the
// service config and D the bundle of connected backends.
type Hooks[C any, D any] struct {
	// Name is used only for logging.
	Name string

	// LoadConfig returns the core config and the service config.
	LoadConfig func(logger *zap.Logger) (*config.CoreConfig, C, error)

	// Connect opens stores and other backends.
	Connect func(ctx context.Context, core *config.CoreConfig, appCfg C, logger *zap.Logger) (D, error)

	// Verify runs optional startup checks against the connected backends.
	// A returned error aborts startup.
	Verify func(ctx context.Context, core *config.CoreConfig, appCfg C, deps D, logger *zap.Logger) error

	// BuildHandler assembles the router, middleware, and routes.
	BuildHandler func(core *config.CoreConfig, appCfg C, deps D, logger *zap.Logger) (http.Handler, error)

	// Close releases the backends after the server has stopped.
	Close func(deps D) error

	// StartupTimeout defaults to DefaultStartupTimeout.
	StartupTimeout time.Duration
}

// Run executes the startup sequence:
//
//  1. Bootstrap logger
//  2. Load config (Hooks.LoadConfig)
//  3. Final logger from config
//  4. Metrics registration
//  5. Connect backends (Hooks.Connect)
//  6. Startup checks (Hooks.Verify, if provided)
//  7. Shutdown signals wired to a context
//  8. Build the handler (Hooks.BuildHandler)
//  9. Serve until shutdown, then Hooks.Close
func Run[C any, D any](ctx context.Context, hooks Hooks[C, D]) (err error) {
	bootstrap := logging.BootstrapLogger()
	defer func() { _ = bootstrap.Sync() }()

	coreCfg, appCfg, err := hooks.LoadConfig(bootstrap)
	if err != nil {
		bootstrap.Error("config load failed", zap.Error(err))
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.BuildLogger(coreCfg.LogLevel, coreCfg.Env, logging.FileOutput{
		Path:       coreCfg.Log.File,
		MaxSizeMB:  coreCfg.Log.MaxSizeMB,
		MaxBackups: coreCfg.Log.MaxBackups,
		MaxAgeDays: coreCfg.Log.MaxAgeDays,
	})
	if err != nil {
		bootstrap.Error("logger build failed", zap.Error(err))
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	httputil.SetLogger(logger)
	logger.Info("starting",
		zap.String("app", hooks.Name),
		zap.String("env", coreCfg.Env),
		zap.String("log_level", coreCfg.LogLevel))

	if coreCfg.EnableMetrics {
		metrics.RegisterDefault(logger)
	}

	timeout := hooks.StartupTimeout
	if timeout <= 0 {
		timeout = DefaultStartupTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	deps, err := hooks.Connect(connectCtx, coreCfg, appCfg, logger)
	cancel()
	if err != nil {
		logger.Error("backend connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}
	if hooks.Close != nil {
		defer func() {
			if cerr := hooks.Close(deps); cerr != nil {
				logger.Warn("backend close failed", zap.Error(cerr))
				err = errors.Join(err, cerr)
			}
		}()
	}

	if hooks.Verify != nil {
		verifyCtx, cancel := context.WithTimeout(ctx, timeout)
		err := hooks.Verify(verifyCtx, coreCfg, appCfg, deps, logger)
		cancel()
		if err != nil {
			logger.Error("startup check failed", zap.Error(err))
			return fmt.Errorf("verify: %w", err)
		}
	}

	ctx, stop := server.WithShutdownSignals(ctx, logger)
	defer stop()

	handler, err := hooks.BuildHandler(coreCfg, appCfg, deps, logger)
	if err != nil {
		logger.Error("handler build failed", zap.Error(err))
		return fmt.Errorf("build handler: %w", err)
	}

	if err := server.ListenAndServeWithContext(ctx, coreCfg, handler, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
