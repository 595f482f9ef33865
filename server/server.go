// server/server.go
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/dalemusser/contactrelay/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme/autocert"
)

// WithShutdownSignals returns a context canceled on SIGINT or SIGTERM. The
// cancel func also stops signal delivery.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Stringer("signal", sig))
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ListenAndServeWithContext serves handler over plain HTTP, HTTPS with the
// configured certificate, or HTTPS with Let's Encrypt (HTTP-01), and blocks
// until ctx is canceled or a listener fails. In both HTTPS modes port 80
// redirects to HTTPS (and answers ACME challenges).
func ListenAndServeWithContext(ctx context.Context, cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) error {
	if cfg == nil {
		return errors.New("server: cfg is nil")
	}
	if handler == nil {
		return errors.New("server: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := newServer(cfg, handler, logger)
	var aux *http.Server

	var ln net.Listener
	switch {
	case !cfg.HTTP.UseHTTPS:
		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPPort)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", addr, err)
		}
		ln = l
		logger.Info("HTTP server listening", zap.String("addr", l.Addr().String()))

	case cfg.TLS.UseLetsEncrypt:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
			Email:      cfg.TLS.LetsEncryptEmail,
		}
		aux = newServer(cfg, m.HTTPHandler(RedirectHandler()), logger)
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: m.GetCertificate}

	default:
		if err := checkKeyFile(cfg.TLS.KeyFile); err != nil {
			if cfg.Env == "prod" {
				return err
			}
			logger.Warn("TLS key file check failed (fatal in prod)", zap.Error(err))
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("server: load TLS cert/key: %w", err)
		}
		aux = newServer(cfg, RedirectHandler(), logger)
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
	}

	if ln == nil {
		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPSPort)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", addr, err)
		}
		ln = tls.NewListener(l, srv.TLSConfig)
		logger.Info("HTTPS server listening",
			zap.String("addr", l.Addr().String()),
			zap.Bool("lets_encrypt", cfg.TLS.UseLetsEncrypt),
			zap.String("domain", cfg.TLS.Domain))
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Serve(ln) }()

	if aux != nil {
		aux.Addr = ":80"
		go func() { errCh <- aux.ListenAndServe() }()
		logger.Info("redirect server listening", zap.String("addr", aux.Addr))
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if aux != nil {
		_ = aux.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server: shutdown: %w", err)
	}
	if runErr == nil {
		logger.Info("server stopped gracefully")
	}
	return runErr
}

func newServer(cfg *config.CoreConfig, h http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}

// RedirectHandler sends every request to the same host and path over HTTPS.
// Hosts or paths that could smuggle headers get a 400.
func RedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.RequestURI()
		if !validHost(r.Host) || strings.ContainsFunc(uri, isControl) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+uri, http.StatusMovedPermanently)
	})
}

func isControl(c rune) bool { return c < 0x20 || c == 0x7f }

func validHost(host string) bool {
	if host == "" || strings.Contains(host, "://") || strings.HasPrefix(host, "/") {
		return false
	}
	name := host
	if h, port, err := net.SplitHostPort(host); err == nil {
		n, perr := strconv.Atoi(port)
		if perr != nil || n <= 0 || n > 65535 {
			return false
		}
		name = h
	}
	if name == "" || strings.ContainsFunc(name, isControl) || strings.ContainsAny(name, " \t") {
		return false
	}
	if strings.HasPrefix(name, "[") {
		inner := strings.TrimSuffix(strings.TrimPrefix(name, "["), "]")
		if i := strings.IndexByte(inner, '%'); i >= 0 {
			inner = inner[:i]
		}
		return net.ParseIP(inner) != nil
	}
	return true
}

// checkKeyFile refuses a TLS key that group or others can read.
func checkKeyFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("server: TLS key file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("server: TLS key path %s is a directory", path)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && runtime.GOOS != "windows" {
		return fmt.Errorf("server: TLS key file %s has mode %o (recommended: 0600)", path, perm)
	}
	return nil
}
