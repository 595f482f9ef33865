package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/internal/contact"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// appKeys are loaded by config.Load alongside the core keys; each is also a
// --flag and a CONTACT_* env var.
var appKeys = []config.AppKey{
	{Name: "contact_path", Default: "/contact", Desc: "Path of the contact form endpoint"},
	{Name: "site_name", Default: "Website", Desc: "Site name used in the default mail subject"},
	{Name: "honeypot_field", Default: contact.DefaultHoneypot, Desc: "Hidden form field that only bots fill in"},
	{Name: "min_interval", Default: "60s", Desc: "Minimum time between sends from one session"},
	{Name: "spam_terms", Default: []string{}, Desc: "Spam denylist (JSON array); empty uses the built-in list"},
	{Name: "session_backend", Default: BackendMemory, Desc: "Session and stamp storage: memory or redis"},
	{Name: "session_cookie", Default: "contact_session", Desc: "Session cookie name"},
	{Name: "session_max_age", Default: "24h", Desc: "Session lifetime"},
	{Name: "redis_url", Default: "", Desc: "redis:// URL when session_backend=redis"},
	{Name: "mail_config", Default: "/etc/contactrelay/mail.toml", Desc: "Path to the mail config TOML (keep outside any served directory)"},
	{Name: "timezone", Default: "", Desc: "IANA zone for the Submitted line (default: local)"},
	{Name: "ip_rate_per_minute", Default: 20, Desc: "Per-IP request rate on the contact path; 0 disables"},
	{Name: "ip_burst", Default: 5, Desc: "Per-IP burst on the contact path"},
	{Name: "trust_proxy", Default: false, Desc: "Trust X-Forwarded-For / X-Real-IP from a reverse proxy"},
}

// AppConfig holds the contact service settings.
type AppConfig struct {
	ContactPath   string
	SiteName      string
	HoneypotField string
	MinInterval   time.Duration
	SpamTerms     []string

	SessionBackend string
	SessionCookie  string
	SessionMaxAge  time.Duration
	RedisURL       string

	MailConfigPath string
	Location       *time.Location

	IPRatePerMinute int
	IPBurst         int
	TrustProxy      bool
}

func appConfigFrom(v config.AppConfigValues) (AppConfig, error) {
	cfg := AppConfig{
		ContactPath:     v.String("contact_path"),
		SiteName:        v.String("site_name"),
		HoneypotField:   v.String("honeypot_field"),
		MinInterval:     v.Duration("min_interval", contact.DefaultMinInterval),
		SessionBackend:  strings.ToLower(strings.TrimSpace(v.String("session_backend"))),
		SessionCookie:   v.String("session_cookie"),
		SessionMaxAge:   v.Duration("session_max_age", 24*time.Hour),
		RedisURL:        v.String("redis_url"),
		MailConfigPath:  v.String("mail_config"),
		IPRatePerMinute: v.Int("ip_rate_per_minute"),
		IPBurst:         v.Int("ip_burst"),
		TrustProxy:      v.Bool("trust_proxy"),
		Location:        time.Local,
	}
	if terms := v.StringSlice("spam_terms"); len(terms) > 0 {
		cfg.SpamTerms = terms
	}
	if tz := strings.TrimSpace(v.String("timezone")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("timezone %q: %w", tz, err)
		}
		cfg.Location = loc
	}
	return cfg, cfg.validate()
}

func (c AppConfig) validate() error {
	var problems []string
	if !strings.HasPrefix(c.ContactPath, "/") {
		problems = append(problems, "contact_path must start with /")
	}
	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			problems = append(problems, "redis_url is required when session_backend=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("session_backend %q must be memory or redis", c.SessionBackend))
	}
	if c.MinInterval < 0 {
		problems = append(problems, "min_interval must not be negative")
	}
	if c.SessionMaxAge < c.MinInterval {
		problems = append(problems, "session_max_age must be at least min_interval")
	}
	if strings.TrimSpace(c.MailConfigPath) == "" {
		problems = append(problems, "mail_config is required")
	}
	if c.IPRatePerMinute < 0 || c.IPBurst < 0 {
		problems = append(problems, "ip_rate_per_minute and ip_burst must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("app configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}
