package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMailConfig(t *testing.T, body string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mail.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), mode))
	require.NoError(t, os.Chmod(path, mode))
	return path
}

const validSMTPConfig = `
transport = "smtp"

[smtp]
host = "smtp.example.com"
port = 465
username = "web@example.com"
password = "hunter2"
timeout = "10s"

[message]
from_address = "web@example.com"
from_name = "Website"
recipient = "owner@example.com"
`

func TestLoadMailConfig_Valid(t *testing.T) {
	path := writeMailConfig(t, validSMTPConfig, 0o600)

	cfg, err := LoadMailConfig(path)
	require.NoError(t, err)

	assert.Equal(t, TransportSMTP, cfg.Transport)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "ssl", cfg.SMTP.Security, "port 465 implies implicit TLS")
	assert.Equal(t, 10*time.Second, cfg.SMTPTimeout())
	assert.Equal(t, "web@example.com", cfg.Message.NoReplyAddress, "noreply defaults to from_address")
	assert.Equal(t, "/usr/sbin/sendmail", cfg.Sendmail.Path)
	assert.Equal(t, "localhost:25", cfg.Relay.Addr)
}

func TestLoadMailConfig_Missing(t *testing.T) {
	_, err := LoadMailConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMailConfigMissing))

	_, err = LoadMailConfig("  ")
	assert.True(t, errors.Is(err, ErrMailConfigMissing))
}

func TestLoadMailConfig_TemplateIsRejected(t *testing.T) {
	path := writeMailConfig(t, MailConfigTemplate, 0o600)

	_, err := LoadMailConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp.host")
	assert.Contains(t, err.Error(), "message.recipient")
	assert.Contains(t, err.Error(), "smtp.password")
}

func TestLoadMailConfig_UnknownKey(t *testing.T) {
	path := writeMailConfig(t, validSMTPConfig+"\n[extra]\nfoo = 1\n", 0o600)

	_, err := LoadMailConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestLoadMailConfig_BadTransport(t *testing.T) {
	path := writeMailConfig(t, `
transport = "pigeon"
[message]
from_address = "a@example.com"
recipient = "b@example.com"
`, 0o600)

	_, err := LoadMailConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pigeon")
}

func TestLoadMailConfig_SendmailDefaults(t *testing.T) {
	path := writeMailConfig(t, `
transport = "sendmail"
[message]
from_address = "a@example.com"
recipient = "b@example.com"
`, 0o600)

	cfg, err := LoadMailConfig(path)
	require.NoError(t, err)
	assert.Equal(t, TransportSendmail, cfg.Transport)
	assert.Equal(t, "/usr/sbin/sendmail", cfg.Sendmail.Path)
}

func TestLoadMailConfig_InvalidAddress(t *testing.T) {
	path := writeMailConfig(t, `
transport = "relay"
[message]
from_address = "not an address"
recipient = "b@example.com"
`, 0o600)

	_, err := LoadMailConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message.from_address is not a valid address")
}

func TestCheckMailConfigPerms(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}

	private := writeMailConfig(t, validSMTPConfig, 0o600)
	assert.NoError(t, CheckMailConfigPerms(private))

	exposed := writeMailConfig(t, validSMTPConfig, 0o644)
	err := CheckMailConfigPerms(exposed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMailConfigExposed))

	err = CheckMailConfigPerms(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.Is(err, ErrMailConfigMissing))
}

func TestMailConfig_Redacted(t *testing.T) {
	cfg := MailConfig{SMTP: SMTPSection{Password: "secret"}}
	r := cfg.Redacted()
	assert.Equal(t, "[REDACTED]", r.SMTP.Password)
	assert.Equal(t, "", r.Relay.Password)
	assert.Equal(t, "secret", cfg.SMTP.Password, "original is untouched")
}
