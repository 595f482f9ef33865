package email

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		FromAddress:    "forms@example.com",
		FromName:       "Website Contact Form",
		To:             []string{"owner@example.com"},
		ReplyToAddress: "jane@example.org",
		ReplyToName:    "Jane Doe",
		EnvelopeFrom:   "bounces@example.com",
		Subject:        "New Contact Form Submission from Example",
		TextBody:       "Name: Jane Doe\nMessage:\nHello there, friend.\n",
	}
}

func TestMessageValidate(t *testing.T) {
	assert.NoError(t, sampleMessage().Validate())

	m := sampleMessage()
	m.To = nil
	assert.ErrorIs(t, m.Validate(), ErrNoRecipients)

	m = sampleMessage()
	m.TextBody = "  \n"
	assert.ErrorIs(t, m.Validate(), ErrEmptyBody)

	m = sampleMessage()
	m.FromAddress = "not an address"
	assert.Error(t, m.Validate())

	m = sampleMessage()
	m.ReplyToAddress = "jane@"
	assert.Error(t, m.Validate())
}

func TestEnvelopeFromDefaultsToFrom(t *testing.T) {
	m := sampleMessage()
	assert.Equal(t, "bounces@example.com", m.envelopeFrom())
	m.EnvelopeFrom = ""
	assert.Equal(t, "forms@example.com", m.envelopeFrom())
}

func TestBuildMsgHeaders(t *testing.T) {
	m, err := buildMsg(sampleMessage())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "Subject: New Contact Form Submission from Example")
	assert.Contains(t, out, "<owner@example.com>")
	assert.Contains(t, out, "Reply-To:")
	assert.Contains(t, out, "jane@example.org")
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "Hello there, friend.")
}

func TestBuildMsgRejectsInvalid(t *testing.T) {
	m := sampleMessage()
	m.To = nil
	_, err := buildMsg(m)
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestSMTPTransportDefaults(t *testing.T) {
	tr := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com"})
	assert.Equal(t, "smtp", tr.Name())
	assert.Equal(t, "smtp.example.com:587", tr.Addr())
	assert.Equal(t, "starttls", tr.cfg.Security)
	assert.Equal(t, 30*time.Second, tr.cfg.Timeout)

	tr = NewSMTPTransport(SMTPConfig{Host: "smtp.example.com", Port: 465})
	assert.Equal(t, "ssl", tr.cfg.Security)
}

func TestSMTPTransportSendFailsWithoutServer(t *testing.T) {
	tr := NewSMTPTransport(SMTPConfig{
		Host:     "127.0.0.1",
		Port:     1,
		Security: "none",
		Timeout:  time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, tr.Send(ctx, sampleMessage()))
}

func TestSendmailCheck(t *testing.T) {
	tr := NewSendmailTransport(filepath.Join(t.TempDir(), "no-such-sendmail"))
	assert.Equal(t, "sendmail", tr.Name())
	assert.Error(t, tr.Check(context.Background()))

	assert.Equal(t, "/usr/sbin/sendmail", NewSendmailTransport("").Path())
}

func TestSendmailSendPipesMessage(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script transport")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "captured.eml")
	script := filepath.Join(dir, "fake-sendmail")
	body := "#!/bin/sh\ncat > " + out + "\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	tr := NewSendmailTransport(script)
	require.NoError(t, tr.Check(context.Background()))
	require.NoError(t, tr.Send(context.Background(), sampleMessage()))

	captured, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(captured), "Subject: New Contact Form Submission from Example")
	assert.Contains(t, string(captured), "Hello there, friend.")
}

func TestRelayRender(t *testing.T) {
	tr, err := NewRelayTransport(RelayConfig{})
	require.NoError(t, err)
	assert.Equal(t, "relay", tr.Name())
	assert.Equal(t, "localhost:25", tr.Addr())

	tr.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	raw, err := tr.render(sampleMessage())
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, "Subject: New Contact Form Submission from Example")
	assert.Contains(t, out, "<forms@example.com>")
	assert.Contains(t, out, "Reply-To:")
	assert.Contains(t, out, "Message-Id:")
	assert.Contains(t, out, "04 Mar 2026")
	assert.Contains(t, out, "Hello there, friend.")
}

func writeEd25519Key(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dkim.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))
	return path
}

func TestRelayDKIMSign(t *testing.T) {
	tr, err := NewRelayTransport(RelayConfig{DKIMKeyFile: writeEd25519Key(t), DKIMSelector: "mail"})
	require.NoError(t, err)

	raw, err := tr.render(sampleMessage())
	require.NoError(t, err)
	signed, err := tr.sign(raw, "forms@example.com")
	require.NoError(t, err)

	out := string(signed)
	assert.True(t, strings.HasPrefix(out, "DKIM-Signature:"))
	assert.Contains(t, out, "d=example.com")
	assert.Contains(t, out, "s=mail")
}

func TestRelayBadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))
	_, err := NewRelayTransport(RelayConfig{DKIMKeyFile: path})
	assert.Error(t, err)
}

func TestMemoryTransport(t *testing.T) {
	tr := &MemoryTransport{}
	require.NoError(t, tr.Send(context.Background(), sampleMessage()))
	assert.Len(t, tr.Sent(), 1)

	tr.Err = errors.New("boom")
	assert.Error(t, tr.Send(context.Background(), sampleMessage()))
	assert.Error(t, tr.Check(context.Background()))
	assert.Len(t, tr.Sent(), 1)
}

const sendmailConfig = `transport = "sendmail"

[sendmail]
path = "/usr/sbin/sendmail"

[message]
from_address = "forms@example.com"
recipient = "owner@example.com"
`

func TestFromConfig(t *testing.T) {
	tr, err := FromConfig(&config.MailConfig{Transport: config.TransportSMTP, SMTP: config.SMTPSection{Host: "h", Port: 587}})
	require.NoError(t, err)
	assert.Equal(t, "smtp", tr.Name())

	tr, err = FromConfig(&config.MailConfig{Transport: config.TransportRelay})
	require.NoError(t, err)
	assert.Equal(t, "relay", tr.Name())

	_, err = FromConfig(&config.MailConfig{Transport: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestProviderLoadsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail.toml")
	require.NoError(t, os.WriteFile(path, []byte(sendmailConfig), 0o600))

	p := NewProvider(path, true, nil)
	m, err := p.Mailer()
	require.NoError(t, err)
	assert.Equal(t, "sendmail", m.Transport.Name())
	assert.Equal(t, "owner@example.com", m.Config.Message.Recipient)

	again, err := p.Mailer()
	require.NoError(t, err)
	assert.Same(t, m, again)

	changed := strings.Replace(sendmailConfig, "owner@example.com", "someone.else@example.com", 1)
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o600))
	m, err = p.Mailer()
	require.NoError(t, err)
	assert.Equal(t, "someone.else@example.com", m.Config.Message.Recipient)
}

func TestProviderMissingFile(t *testing.T) {
	p := NewProvider(filepath.Join(t.TempDir(), "absent.toml"), true, nil)
	_, err := p.Mailer()
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, err, config.ErrMailConfigMissing)
}

func TestProviderPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "mail.toml")
	require.NoError(t, os.WriteFile(path, []byte(sendmailConfig), 0o600))
	require.NoError(t, os.Chmod(path, 0o644))

	_, err := NewProvider(path, true, nil).Mailer()
	assert.ErrorIs(t, err, config.ErrMailConfigExposed)

	m, err := NewProvider(path, false, nil).Mailer()
	require.NoError(t, err)
	assert.Equal(t, "sendmail", m.Transport.Name())
}

func TestProviderRechecksPermissionsAfterChmod(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "mail.toml")
	require.NoError(t, os.WriteFile(path, []byte(sendmailConfig), 0o600))

	p := NewProvider(path, true, nil)
	_, err := p.Mailer()
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	_, err = p.Mailer()
	assert.ErrorIs(t, err, config.ErrMailConfigExposed)

	require.NoError(t, os.Chmod(path, 0o600))
	m, err := p.Mailer()
	require.NoError(t, err)
	assert.Equal(t, "sendmail", m.Transport.Name())
}

func TestStaticProvider(t *testing.T) {
	tr := &MemoryTransport{}
	p := NewStaticProvider(&Mailer{Config: &config.MailConfig{}, Transport: tr})
	m, err := p.Mailer()
	require.NoError(t, err)
	assert.Same(t, tr, m.Transport)

	_, err = (&Provider{}).Mailer()
	assert.ErrorIs(t, err, ErrNotConfigured)
}
