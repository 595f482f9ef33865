// config/mailconfig.go
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Transport names accepted in the mail config.
const (
	TransportSMTP     = "smtp"
	TransportSendmail = "sendmail"
	TransportRelay    = "relay"
)

// placeholderPrefix marks values left unedited from the generated template.
const placeholderPrefix = "INSERT_"

var (
	// ErrMailConfigMissing is returned when the mail config file does not exist.
	ErrMailConfigMissing = errors.New("config: mail config file is missing")

	// ErrMailConfigExposed is returned when the mail config file is readable
	// by group or others.
	ErrMailConfigExposed = errors.New("config: mail config file permissions are too open")
)

// SMTPSection configures the authenticated SMTP submission transport.
type SMTPSection struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	// Security is "starttls" (default), "ssl", or "none".
	Security string `toml:"security"`
	Timeout  string `toml:"timeout"`
}

// SendmailSection configures local dispatch through a sendmail-compatible binary.
type SendmailSection struct {
	Path string   `toml:"path"`
	Args []string `toml:"args"`
}

// RelaySection configures delivery to a nearby MTA (usually localhost:25)
// without submission TLS, optionally DKIM-signing each message.
type RelaySection struct {
	Addr         string `toml:"addr"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	DKIMKeyFile  string `toml:"dkim_key_file"`
	DKIMSelector string `toml:"dkim_selector"`
	DKIMDomain   string `toml:"dkim_domain"`
}

// MessageSection holds the static addressing for every contact message.
type MessageSection struct {
	FromAddress    string `toml:"from_address"`
	FromName       string `toml:"from_name"`
	NoReplyAddress string `toml:"noreply_address"`
	Recipient      string `toml:"recipient"`
	Subject        string `toml:"subject"`
}

// MailConfig is the mail configuration artifact. It carries credentials, so
// it is kept in its own file outside any served directory and is never
// merged into CoreConfig.
type MailConfig struct {
	Transport string          `toml:"transport"`
	SMTP      SMTPSection     `toml:"smtp"`
	Sendmail  SendmailSection `toml:"sendmail"`
	Relay     RelaySection    `toml:"relay"`
	Message   MessageSection  `toml:"message"`
}

// SMTPTimeout returns the parsed SMTP timeout (default 30s).
func (m *MailConfig) SMTPTimeout() time.Duration {
	d, _ := parseDurationFlexible(m.SMTP.Timeout, 30*time.Second)
	return d
}

// Redacted returns a copy safe for logging or printing.
func (m MailConfig) Redacted() MailConfig {
	if m.SMTP.Password != "" {
		m.SMTP.Password = "[REDACTED]"
	}
	if m.Relay.Password != "" {
		m.Relay.Password = "[REDACTED]"
	}
	return m
}

// LoadMailConfig reads and validates the mail config at path.
// A missing file yields an error wrapping ErrMailConfigMissing.
func LoadMailConfig(path string) (*MailConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrMailConfigMissing)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMailConfigMissing, path)
		}
		return nil, fmt.Errorf("config: cannot access mail config %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config: mail config path is a directory: %s", path)
	}

	var cfg MailConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: cannot decode mail config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("config: unknown keys in mail config %s: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CheckMailConfigPerms reports ErrMailConfigExposed when group or others
// have any access to the file. Always nil on Windows.
func CheckMailConfigPerms(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMailConfigMissing, path)
		}
		return err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("%w: %s has mode %o (recommended: 0600)", ErrMailConfigExposed, path, perm)
	}
	return nil
}

func (m *MailConfig) applyDefaults() {
	m.Transport = strings.ToLower(strings.TrimSpace(m.Transport))
	if m.Transport == "" {
		m.Transport = TransportSMTP
	}
	if m.SMTP.Port == 0 {
		m.SMTP.Port = 587
	}
	m.SMTP.Security = strings.ToLower(strings.TrimSpace(m.SMTP.Security))
	if m.SMTP.Security == "" {
		if m.SMTP.Port == 465 {
			m.SMTP.Security = "ssl"
		} else {
			m.SMTP.Security = "starttls"
		}
	}
	if m.Sendmail.Path == "" {
		m.Sendmail.Path = "/usr/sbin/sendmail"
	}
	if m.Relay.Addr == "" {
		m.Relay.Addr = "localhost:25"
	}
	if m.Relay.DKIMSelector == "" {
		m.Relay.DKIMSelector = "default"
	}
	if m.Message.NoReplyAddress == "" {
		m.Message.NoReplyAddress = m.Message.FromAddress
	}
}

// Validate checks the config for missing, placeholder, or malformed values.
func (m *MailConfig) Validate() error {
	var missing, invalid []string

	req := func(name, val string) {
		v := strings.TrimSpace(val)
		if v == "" || strings.HasPrefix(v, placeholderPrefix) {
			missing = append(missing, name)
		}
	}
	addr := func(name, val string) {
		if val == "" || strings.HasPrefix(val, placeholderPrefix) {
			return
		}
		if _, err := mail.ParseAddress(val); err != nil {
			invalid = append(invalid, name+" is not a valid address")
		}
	}

	req("message.from_address", m.Message.FromAddress)
	req("message.recipient", m.Message.Recipient)
	addr("message.from_address", m.Message.FromAddress)
	addr("message.recipient", m.Message.Recipient)
	addr("message.noreply_address", m.Message.NoReplyAddress)

	switch m.Transport {
	case TransportSMTP:
		req("smtp.host", m.SMTP.Host)
		if strings.HasPrefix(m.SMTP.Username, placeholderPrefix) {
			missing = append(missing, "smtp.username")
		}
		if strings.HasPrefix(m.SMTP.Password, placeholderPrefix) {
			missing = append(missing, "smtp.password")
		}
		if m.SMTP.Port <= 0 || m.SMTP.Port > 65535 {
			invalid = append(invalid, "smtp.port must be in 1..65535")
		}
		switch m.SMTP.Security {
		case "starttls", "ssl", "none":
		default:
			invalid = append(invalid, `smtp.security must be "starttls", "ssl" or "none"`)
		}
		if m.SMTP.Timeout != "" {
			if _, err := parseDurationFlexible(m.SMTP.Timeout, 0); err != nil {
				invalid = append(invalid, "smtp.timeout: "+err.Error())
			}
		}
	case TransportSendmail:
		req("sendmail.path", m.Sendmail.Path)
	case TransportRelay:
		req("relay.addr", m.Relay.Addr)
		if m.Relay.DKIMKeyFile != "" && m.Relay.DKIMDomain == "" && !strings.Contains(m.Message.FromAddress, "@") {
			missing = append(missing, "relay.dkim_domain")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("transport %q must be smtp, sendmail or relay", m.Transport))
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(invalid, ", "))
	}
	return fmt.Errorf("mail configuration errors: %s", strings.Join(parts, " | "))
}

// MailConfigTemplate is written by `contactctl init`. Every INSERT_ value
// must be replaced before the service will accept the file.
const MailConfigTemplate = `# Mail configuration for the contact form relay.
# Keep this file outside any directory served over HTTP and readable
# only by the service user (chmod 600).

# smtp | sendmail | relay
transport = "smtp"

[smtp]
host = "INSERT_SMTP_HOST_HERE"        # e.g. smtp.office365.com or mail.yourdomain.com
port = 587                            # 587 (STARTTLS) or 465 (SSL)
username = "INSERT_EMAIL_ADDRESS_HERE" # your full email address
password = "INSERT_PASSWORD_HERE"     # an app password is recommended
security = "starttls"                 # starttls | ssl | none
timeout = "30s"

[sendmail]
path = "/usr/sbin/sendmail"

[relay]
addr = "localhost:25"
# dkim_key_file = "/etc/contactrelay/dkim.pem"
# dkim_selector = "default"

[message]
from_address = "INSERT_EMAIL_ADDRESS_HERE" # usually the same as smtp.username
from_name = "Website Contact Form"
noreply_address = ""                       # bounce address; defaults to from_address
recipient = "INSERT_DESTINATION_EMAIL_HERE" # where submissions go
subject = ""                               # defaults to "New Contact Form Submission from <site_name>"
`
