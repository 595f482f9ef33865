// config/appconfig.go
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppKey declares one configuration key. The service's own keys and the
// core keys share this shape: each becomes a --flag, an env var
// (CONTACT_<NAME>), and a config-file entry.
type AppKey struct {
	// Name is used as-is for flags and config files.
	Name string

	// Default also fixes the key's type: string, int, int64, bool, or
	// []string. List keys take a JSON array on the command line.
	Default any

	Desc string
}

// AppConfigValues holds the loaded values of the service's keys, already
// coerced to each key's default type.
type AppConfigValues map[string]any

func (a AppConfigValues) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int accepts int or int64 values.
func (a AppConfigValues) Int(key string) int {
	return int(a.Int64(key))
}

func (a AppConfigValues) Int64(key string) int64 {
	switch n := a[key].(type) {
	case int:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func (a AppConfigValues) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

func (a AppConfigValues) StringSlice(key string) []string {
	s, _ := a[key].([]string)
	return s
}

// Duration reads "90s" / "1h30m" or bare seconds. A missing or malformed
// value yields def.
func (a AppConfigValues) Duration(key string, def time.Duration) time.Duration {
	d, err := parseDurationFlexible(a[key], def)
	if err != nil {
		return def
	}
	return d
}

// registerKeys adds a flag per key, binds its env var, and sets its default.
func registerKeys(fs *pflag.FlagSet, v *viper.Viper, keys []AppKey) error {
	for _, k := range keys {
		if fs.Lookup(k.Name) != nil {
			return fmt.Errorf("config key %q conflicts with existing flag", k.Name)
		}
		switch d := k.Default.(type) {
		case string:
			fs.String(k.Name, d, k.Desc)
		case int:
			fs.Int(k.Name, d, k.Desc)
		case int64:
			fs.Int64(k.Name, d, k.Desc)
		case bool:
			fs.Bool(k.Name, d, k.Desc)
		case []string:
			fs.String(k.Name, "", k.Desc+" (JSON array)")
		default:
			return fmt.Errorf("config key %q has unsupported default type %T", k.Name, k.Default)
		}
		v.SetDefault(k.Name, k.Default)
		_ = v.BindEnv(k.Name)
	}
	return nil
}

// appValues reads the service's keys out of the merged viper instance.
func appValues(logger *zap.Logger, v *viper.Viper, keys []AppKey) (AppConfigValues, error) {
	out := make(AppConfigValues, len(keys))
	for _, k := range keys {
		switch k.Default.(type) {
		case string:
			out[k.Name] = v.GetString(k.Name)
		case int:
			out[k.Name] = v.GetInt(k.Name)
		case int64:
			out[k.Name] = v.GetInt64(k.Name)
		case bool:
			out[k.Name] = v.GetBool(k.Name)
		case []string:
			list, err := toStringSlice(v.Get(k.Name))
			if err != nil {
				return nil, fmt.Errorf("config key %q: %w", k.Name, err)
			}
			out[k.Name] = list
		}
	}

	if logger != nil && len(keys) > 0 {
		fields := make([]zap.Field, 0, len(keys))
		for _, k := range keys {
			if secretish(k.Name) {
				fields = append(fields, zap.String(k.Name, "[REDACTED]"))
				continue
			}
			fields = append(fields, zap.Any(k.Name, out[k.Name]))
		}
		logger.Info("app config loaded", fields...)
	}
	return out, nil
}

// secretish reports names whose values are kept out of the logs. URLs are
// included because redis URLs carry passwords.
func secretish(name string) bool {
	n := strings.ToLower(name)
	for _, s := range []string{"key", "secret", "password", "token", "url"} {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// toStringSlice accepts a []string, a []any from a config file, or a JSON
// array string from a flag or env var. A string that is not JSON is split
// on commas.
func toStringSlice(raw any) ([]string, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if !strings.HasPrefix(s, "[") {
			parts := strings.Split(s, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts, nil
		}
		var arr []string
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, fmt.Errorf("expects a JSON array, got %q: %w", s, err)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected list type %T", raw)
}
