// config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix for every environment variable the service reads,
// e.g. CONTACT_HTTP_PORT or CONTACT_MAIL_CONFIG.
const EnvPrefix = "CONTACT"

// HTTPConfig groups HTTP/HTTPS port, protocol, and timeout settings.
type HTTPConfig struct {
	HTTPPort  int  `mapstructure:"http_port"`
	HTTPSPort int  `mapstructure:"https_port"`
	UseHTTPS  bool `mapstructure:"use_https"`

	ReadTimeout       time.Duration `mapstructure:"-"`
	ReadHeaderTimeout time.Duration `mapstructure:"-"`
	WriteTimeout      time.Duration `mapstructure:"-"`
	IdleTimeout       time.Duration `mapstructure:"-"`
	ShutdownTimeout   time.Duration `mapstructure:"-"`
}

// TLSConfig groups manual TLS and Let's Encrypt (HTTP-01) settings.
type TLSConfig struct {
	CertFile            string `mapstructure:"cert_file"`
	KeyFile             string `mapstructure:"key_file"`
	UseLetsEncrypt      bool   `mapstructure:"use_lets_encrypt"`
	LetsEncryptEmail    string `mapstructure:"lets_encrypt_email"`
	LetsEncryptCacheDir string `mapstructure:"lets_encrypt_cache_dir"`
	Domain              string `mapstructure:"domain"`
}

// CORSConfig groups all CORS behavior and lists. Contact forms are usually
// posted from a static site on another origin, so this is commonly enabled.
type CORSConfig struct {
	EnableCORS           bool     `mapstructure:"enable_cors"`
	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string `mapstructure:"cors_allowed_headers"`
	CORSExposedHeaders   []string `mapstructure:"cors_exposed_headers"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int      `mapstructure:"cors_max_age"`
}

// LogConfig controls the optional rotating log file. When File is empty,
// logs go to stderr only.
type LogConfig struct {
	File       string `mapstructure:"log_file"`
	MaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	MaxBackups int    `mapstructure:"log_max_backups"`
	MaxAgeDays int    `mapstructure:"log_max_age_days"`
}

// CoreConfig holds the service-level configuration.
type CoreConfig struct {
	// runtime
	Env      string `mapstructure:"env"`       // "dev" | "prod"
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error …

	// grouped config
	HTTP HTTPConfig `mapstructure:",squash"`
	TLS  TLSConfig  `mapstructure:",squash"`
	CORS CORSConfig `mapstructure:",squash"`
	Log  LogConfig  `mapstructure:",squash"`

	// HTTP behavior
	MaxRequestBodyBytes int64 `mapstructure:"max_request_body_bytes"`

	// misc
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// Dump returns a pretty JSON string of the config for debugging.
// CoreConfig carries no secrets; the mail credentials live in MailConfig.
func (c CoreConfig) Dump() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

// coreKeys are the service-independent settings. Durations are strings so
// they read naturally in every source ("15s").
var coreKeys = []AppKey{
	{"env", "dev", `Runtime environment "dev"|"prod"`},
	{"log_level", "debug", "Log level"},
	{"log_file", "", "Optional log file (rotated); empty logs to stderr only"},
	{"log_max_size_mb", 100, "Log file size in MB before rotation"},
	{"log_max_backups", 3, "Rotated log files to keep"},
	{"log_max_age_days", 28, "Days to keep rotated log files"},

	{"http_port", 8080, "HTTP port"},
	{"https_port", 443, "HTTPS port"},
	{"use_https", false, "Serve HTTPS"},

	{"use_lets_encrypt", false, "Use Let's Encrypt (http-01)"},
	{"lets_encrypt_email", "", "ACME account e-mail"},
	{"lets_encrypt_cache_dir", "letsencrypt-cache", "ACME cache dir"},
	{"cert_file", "", "TLS cert file (manual TLS)"},
	{"key_file", "", "TLS key file (manual TLS)"},
	{"domain", "", "Domain for TLS or ACME"},

	{"read_timeout", "15s", "HTTP read timeout"},
	{"read_header_timeout", "10s", "HTTP read header timeout"},
	{"write_timeout", "60s", "HTTP write timeout (covers the mail send)"},
	{"idle_timeout", "120s", "HTTP keep-alive idle timeout"},
	{"shutdown_timeout", "15s", "Graceful shutdown window"},

	{"enable_metrics", true, "Expose /metrics"},
	{"enable_cors", false, "Enable CORS"},
	{"cors_allowed_origins", []string{}, `Allowed origins, e.g. '["https://www.example.com"]'`},
	{"cors_allowed_methods", []string{}, `Allowed methods, e.g. '["POST"]'`},
	{"cors_allowed_headers", []string{}, `Allowed headers, e.g. '["Accept","Content-Type"]'`},
	{"cors_exposed_headers", []string{}, "Exposed headers"},
	{"cors_allow_credentials", false, "CORS: allow credentials"},
	{"cors_max_age", 0, "CORS: max age seconds (0 disables cache)"},

	{"max_request_body_bytes", int64(64 << 10), "Max HTTP request body size in bytes (0 = unlimited)"},
}

// Load merges defaults, config.* files, env vars, and explicitly set flags
// into one CoreConfig plus the values of appKeys. Precedence, highest
// first: flags > env > config file > defaults.
//
// args excludes the program name.
func Load(logger *zap.Logger, args []string, appKeys ...AppKey) (*CoreConfig, AppConfigValues, error) {
	// A .env file never overrides variables already in the environment.
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info("loaded .env file")
	}

	flags := pflag.NewFlagSet("contactrelay", pflag.ContinueOnError)
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := registerKeys(flags, v, coreKeys); err != nil {
		return nil, nil, err
	}
	if err := registerKeys(flags, v, appKeys); err != nil {
		return nil, nil, err
	}
	if err := flags.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("parse flags: %w", err)
	}

	mergeConfigFiles(logger, v)

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	for _, k := range coreKeys {
		if _, ok := k.Default.([]string); !ok {
			continue
		}
		list, err := toStringSlice(v.Get(k.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("config key %q: %w", k.Name, err)
		}
		v.Set(k.Name, list)
	}

	var cfg CoreConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unable to decode core config: %w", err)
	}
	cfg.HTTP.ReadTimeout = durationKey(logger, v, "read_timeout", 15*time.Second)
	cfg.HTTP.ReadHeaderTimeout = durationKey(logger, v, "read_header_timeout", 10*time.Second)
	cfg.HTTP.WriteTimeout = durationKey(logger, v, "write_timeout", 60*time.Second)
	cfg.HTTP.IdleTimeout = durationKey(logger, v, "idle_timeout", 120*time.Second)
	cfg.HTTP.ShutdownTimeout = durationKey(logger, v, "shutdown_timeout", 15*time.Second)

	if err := validateCoreConfig(cfg); err != nil {
		return nil, nil, err
	}

	appCfg, err := appValues(logger, v, appKeys)
	if err != nil {
		return nil, nil, err
	}
	return &cfg, appCfg, nil
}

// mergeConfigFiles reads config.yaml, config.yml, config.json, and
// config.toml from the working directory, in that order, when present.
// Unreadable files are logged and skipped.
func mergeConfigFiles(logger *zap.Logger, v *viper.Viper) {
	for _, ext := range [...]string{"yaml", "yml", "json", "toml"} {
		file := "config." + ext
		b, err := os.ReadFile(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err == nil {
			v.SetConfigType(ext)
			err = v.MergeConfig(bytes.NewReader(b))
		}
		if err != nil {
			if logger != nil {
				logger.Warn("config file skipped", zap.String("file", file), zap.Error(err))
			}
			continue
		}
		if logger != nil {
			logger.Info("loaded config file", zap.String("file", file))
		}
	}
}

func durationKey(logger *zap.Logger, v *viper.Viper, key string, def time.Duration) time.Duration {
	dur, err := parseDurationFlexible(v.Get(key), def)
	if err != nil && logger != nil {
		logger.Warn("invalid duration; using default",
			zap.String("key", key),
			zap.Any("value", v.Get(key)),
			zap.Duration("default", def),
			zap.Error(err))
	}
	return dur
}

func validateCoreConfig(cfg CoreConfig) error {
	var missing []string
	var invalid []string

	// TLS / ACME consistency
	if cfg.TLS.UseLetsEncrypt && !cfg.HTTP.UseHTTPS {
		invalid = append(invalid, "use_lets_encrypt=true requires use_https=true")
	}
	if cfg.TLS.UseLetsEncrypt && (strings.TrimSpace(cfg.TLS.CertFile) != "" || strings.TrimSpace(cfg.TLS.KeyFile) != "") {
		invalid = append(invalid, "use_lets_encrypt=true cannot be combined with cert_file/key_file")
	}

	if cfg.TLS.UseLetsEncrypt {
		if strings.TrimSpace(cfg.TLS.Domain) == "" {
			missing = append(missing, "CONTACT_DOMAIN (or --domain) for Let's Encrypt")
		}
		if s := strings.TrimSpace(cfg.TLS.LetsEncryptEmail); s == "" {
			missing = append(missing, "CONTACT_LETS_ENCRYPT_EMAIL (or --lets_encrypt_email)")
		} else if !strings.Contains(cfg.TLS.LetsEncryptEmail, "@") {
			invalid = append(invalid, "lets_encrypt_email must look like an email address")
		}
	}

	// Manual TLS requirements
	if cfg.HTTP.UseHTTPS && !cfg.TLS.UseLetsEncrypt {
		if strings.TrimSpace(cfg.TLS.CertFile) == "" || strings.TrimSpace(cfg.TLS.KeyFile) == "" {
			missing = append(missing, "CONTACT_CERT_FILE and CONTACT_KEY_FILE (or --cert_file/--key_file) for manual TLS")
		}
	}

	// Port sanity
	if cfg.HTTP.HTTPPort <= 0 || cfg.HTTP.HTTPPort > 65535 {
		invalid = append(invalid, "http_port must be in 1..65535")
	}
	if cfg.HTTP.HTTPSPort <= 0 || cfg.HTTP.HTTPSPort > 65535 {
		invalid = append(invalid, "https_port must be in 1..65535")
	}
	if cfg.HTTP.UseHTTPS {
		if cfg.HTTP.HTTPPort == cfg.HTTP.HTTPSPort {
			invalid = append(invalid, "http_port and https_port cannot be equal when use_https=true")
		}
		if cfg.HTTP.HTTPSPort == 80 {
			invalid = append(invalid, "https_port cannot be 80; port 80 is used by the ACME/redirect server")
		}
	}

	// CORS sanity
	if cfg.CORS.EnableCORS {
		if len(cfg.CORS.CORSAllowedOrigins) == 0 {
			missing = append(missing, "CORS: cors_allowed_origins (JSON array) required when enable_cors=true")
		}
		for _, o := range cfg.CORS.CORSAllowedOrigins {
			if o == "*" && cfg.CORS.CORSAllowCredentials {
				invalid = append(invalid, `CORS: cannot use "*" in cors_allowed_origins when cors_allow_credentials=true`)
				break
			}
		}
		if cfg.CORS.CORSMaxAge < 0 {
			invalid = append(invalid, "CORS: cors_max_age must be >= 0")
		}
	}

	if cfg.MaxRequestBodyBytes < 0 {
		invalid = append(invalid, "max_request_body_bytes must be >= 0")
	}
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB <= 0 {
		invalid = append(invalid, "log_max_size_mb must be > 0 when log_file is set")
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
	return fmt.Errorf("core configuration errors: %s", strings.Join(parts, " | "))
}
