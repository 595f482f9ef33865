// pantry/email/relay.go
package email

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-msgauth/dkim"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// RelayConfig configures handing mail to a nearby MTA.
type RelayConfig struct {
	// Addr is host:port of the MTA, usually localhost:25.
	Addr string

	// Username/Password enable SASL PLAIN when set.
	Username string
	Password string

	// DKIMKeyFile is a PEM RSA or Ed25519 private key. Empty disables signing.
	DKIMKeyFile  string
	DKIMSelector string

	// DKIMDomain defaults to the domain of the From address.
	DKIMDomain string
}

// RelayTransport writes RFC 5322 messages with go-message, optionally
// DKIM-signs them, and submits them with go-smtp. STARTTLS is used when
// the MTA offers it.
type RelayTransport struct {
	cfg    RelayConfig
	signer crypto.Signer
	now    func() time.Time
}

// NewRelayTransport loads the DKIM key, if any.
func NewRelayTransport(cfg RelayConfig) (*RelayTransport, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:25"
	}
	if cfg.DKIMSelector == "" {
		cfg.DKIMSelector = "default"
	}
	t := &RelayTransport{cfg: cfg, now: time.Now}
	if cfg.DKIMKeyFile != "" {
		signer, err := loadDKIMKey(cfg.DKIMKeyFile)
		if err != nil {
			return nil, err
		}
		t.signer = signer
	}
	return t, nil
}

// Name implements Transport.
func (t *RelayTransport) Name() string { return "relay" }

// Addr returns the MTA address for diagnostics.
func (t *RelayTransport) Addr() string { return t.cfg.Addr }

// Send implements Transport.
func (t *RelayTransport) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	raw, err := t.render(msg)
	if err != nil {
		return err
	}
	if t.signer != nil {
		if raw, err = t.sign(raw, msg.FromAddress); err != nil {
			return err
		}
	}

	var auth sasl.Client
	if t.cfg.Username != "" {
		auth = sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
	}

	// smtp.SendMail has no context; bound it from the outside.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(t.cfg.Addr, auth, msg.envelopeFrom(), msg.To, bytes.NewReader(raw))
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: relay via %s: %w", t.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email: relay via %s: %w", t.cfg.Addr, ctx.Err())
	}
}

// Check connects, greets, and quits.
func (t *RelayTransport) Check(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		c, err := smtp.Dial(t.cfg.Addr)
		if err != nil {
			done <- err
			return
		}
		defer c.Close()
		if err := c.Hello("localhost"); err != nil {
			done <- err
			return
		}
		done <- c.Quit()
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: relay %s: %w", t.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email: relay %s: %w", t.cfg.Addr, ctx.Err())
	}
}

// render produces the CRLF-terminated message bytes.
func (t *RelayTransport) render(msg Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(t.now())
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.FromAddress}})
	to := make([]*mail.Address, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, &mail.Address{Address: a})
	}
	h.SetAddressList("To", to)
	if msg.ReplyToAddress != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Name: msg.ReplyToName, Address: msg.ReplyToAddress}})
	}
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("email: message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	h.Set("MIME-Version", "1.0")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("email: create message: %w", err)
	}
	if _, err := w.Write([]byte(msg.TextBody)); err != nil {
		return nil, fmt.Errorf("email: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("email: close message: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *RelayTransport) sign(raw []byte, from string) ([]byte, error) {
	domain := t.cfg.DKIMDomain
	if domain == "" {
		if i := strings.LastIndex(from, "@"); i >= 0 {
			domain = from[i+1:]
		}
	}
	if domain == "" {
		return nil, errors.New("email: dkim: cannot determine signing domain")
	}

	var out bytes.Buffer
	opts := &dkim.SignOptions{
		Domain:   domain,
		Selector: t.cfg.DKIMSelector,
		Signer:   t.signer,
	}
	if err := dkim.Sign(&out, bytes.NewReader(raw), opts); err != nil {
		return nil, fmt.Errorf("email: dkim sign: %w", err)
	}
	return out.Bytes(), nil
}

// loadDKIMKey reads a PKCS#1 or PKCS#8 PEM private key.
func loadDKIMKey(path string) (crypto.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("email: dkim key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("email: dkim key %s: no PEM block", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("email: dkim key %s: %w", path, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("email: dkim key %s: unsupported key type %T", path, key)
	}
	return signer, nil
}
