// pantry/email/smtp.go
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP submission settings.
type SMTPConfig struct {
	// Host is the SMTP server hostname (e.g., "smtp.office365.com").
	Host string

	// Port is typically 587 for STARTTLS or 465 for implicit TLS.
	Port int

	Username string
	Password string

	// Security is "starttls", "ssl", or "none".
	Security string

	// Timeout bounds connect and each SMTP command. Default 30s.
	Timeout time.Duration
}

// SMTPTransport submits mail to an authenticated SMTP server.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport applies defaults and returns the transport.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Security == "" {
		cfg.Security = "starttls"
		if cfg.Port == 465 {
			cfg.Security = "ssl"
		}
	}
	return &SMTPTransport{cfg: cfg}
}

// Name implements Transport.
func (t *SMTPTransport) Name() string { return "smtp" }

// Addr returns host:port for diagnostics.
func (t *SMTPTransport) Addr() string { return fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port) }

func (t *SMTPTransport) client() (*mail.Client, error) {
	var opts []mail.Option
	switch t.cfg.Security {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	// Port goes after the TLS options, which may pick their own default.
	opts = append(opts, mail.WithPort(t.cfg.Port), mail.WithTimeout(t.cfg.Timeout))

	if t.cfg.Username != "" {
		auth := mail.SMTPAuthPlain
		if t.cfg.Security == "none" {
			auth = mail.SMTPAuthPlainNoEnc
		}
		opts = append(opts,
			mail.WithSMTPAuth(auth),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}

	c, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: failed to create client: %w", err)
	}
	return c, nil
}

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(msg)
	if err != nil {
		return err
	}
	c, err := t.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: smtp send via %s: %w", t.Addr(), err)
	}
	return nil
}

// Check dials, negotiates TLS, authenticates, and hangs up.
func (t *SMTPTransport) Check(ctx context.Context) error {
	c, err := t.client()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("email: smtp connect %s: %w", t.Addr(), err)
	}
	return c.Close()
}

// buildMsg converts a Message into a go-mail message. Shared by the SMTP
// and sendmail transports.
func buildMsg(msg Message) (*mail.Msg, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	m.SetEncoding(mail.EncodingQP)

	if msg.FromName != "" {
		if err := m.FromFormat(msg.FromName, msg.FromAddress); err != nil {
			return nil, fmt.Errorf("email: invalid from address: %w", err)
		}
	} else if err := m.From(msg.FromAddress); err != nil {
		return nil, fmt.Errorf("email: invalid from address: %w", err)
	}

	if err := m.EnvelopeFrom(msg.envelopeFrom()); err != nil {
		return nil, fmt.Errorf("email: invalid envelope-from address: %w", err)
	}

	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("email: invalid to address: %w", err)
	}

	if msg.ReplyToAddress != "" {
		var err error
		if msg.ReplyToName != "" {
			err = m.ReplyToFormat(msg.ReplyToName, msg.ReplyToAddress)
		} else {
			err = m.ReplyTo(msg.ReplyToAddress)
		}
		if err != nil {
			return nil, fmt.Errorf("email: invalid reply-to address: %w", err)
		}
	}

	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	return m, nil
}
