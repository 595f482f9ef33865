// pantry/email/provider.go
package email

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"go.uber.org/zap"
)

// FromConfig builds the transport selected by cfg.Transport.
func FromConfig(cfg *config.MailConfig) (Transport, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		return NewSMTPTransport(SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Security: cfg.SMTP.Security,
			Timeout:  cfg.SMTPTimeout(),
		}), nil
	case config.TransportSendmail:
		return NewSendmailTransport(cfg.Sendmail.Path, cfg.Sendmail.Args...), nil
	case config.TransportRelay:
		return NewRelayTransport(RelayConfig{
			Addr:         cfg.Relay.Addr,
			Username:     cfg.Relay.Username,
			Password:     cfg.Relay.Password,
			DKIMKeyFile:  cfg.Relay.DKIMKeyFile,
			DKIMSelector: cfg.Relay.DKIMSelector,
			DKIMDomain:   cfg.Relay.DKIMDomain,
		})
	}
	return nil, fmt.Errorf("email: unknown transport %q", cfg.Transport)
}

// Mailer is a loaded mail config together with its transport.
type Mailer struct {
	Config    *config.MailConfig
	Transport Transport
}

// Provider loads the mail config file on demand and rebuilds the transport
// whenever the file changes, so credentials can be rotated without a
// restart. A missing or invalid file is reported on every call rather than
// at startup.
type Provider struct {
	path        string
	strictPerms bool
	logger      *zap.Logger
	build       func(*config.MailConfig) (Transport, error)

	mu      sync.Mutex
	modTime time.Time
	size    int64
	perm    os.FileMode
	current *Mailer
	warned  bool
}

// NewProvider watches path. With strictPerms, a file readable by group or
// others is refused; otherwise it is used with a one-time warning.
func NewProvider(path string, strictPerms bool, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{path: path, strictPerms: strictPerms, logger: logger, build: FromConfig}
}

// NewStaticProvider always returns m. Used by tests and one-shot tools.
func NewStaticProvider(m *Mailer) *Provider {
	return &Provider{current: m, logger: zap.NewNop()}
}

// Path returns the watched config path.
func (p *Provider) Path() string { return p.path }

// Mailer returns the current config and transport. Errors wrap
// ErrNotConfigured.
func (p *Provider) Mailer() (*Mailer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		if p.current == nil {
			return nil, fmt.Errorf("%w: no mail config path", ErrNotConfigured)
		}
		return p.current, nil
	}

	info, err := os.Stat(p.path)
	if err != nil {
		p.current = nil
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %w", ErrNotConfigured, config.ErrMailConfigMissing)
		}
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	// chmod leaves mtime alone, so the mode is part of the cache key.
	if p.current != nil && info.ModTime().Equal(p.modTime) && info.Size() == p.size && info.Mode().Perm() == p.perm {
		return p.current, nil
	}
	p.current = nil

	if err := config.CheckMailConfigPerms(p.path); err != nil {
		if p.strictPerms || !errors.Is(err, config.ErrMailConfigExposed) {
			return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
		}
		if !p.warned {
			p.logger.Warn("mail config is readable by other users; chmod 600 it", zap.Error(err))
			p.warned = true
		}
	}

	cfg, err := config.LoadMailConfig(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	tr, err := p.build(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	p.current = &Mailer{Config: cfg, Transport: tr}
	p.modTime = info.ModTime()
	p.size = info.Size()
	p.perm = info.Mode().Perm()
	p.logger.Info("mail config loaded",
		zap.String("path", p.path),
		zap.String("transport", tr.Name()),
		zap.String("recipient", cfg.Message.Recipient))
	return p.current, nil
}
