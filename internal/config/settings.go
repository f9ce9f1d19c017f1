package config

import (
	"os"
	"strings"
	"time"

	"energy-mca/internal/mca"
	"energy-mca/internal/model"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every settings environment variable, e.g. MCA_TOLERANCE.
const EnvPrefix = "MCA_"

// SettingsEnv names a settings file when no path is passed explicitly.
const SettingsEnv = "MCA_SETTINGS"

// Settings are the process settings: solver constants plus logging and
// server knobs.
type Settings struct {
	mca.Settings `koanf:",squash"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// CacheTTL is how long finished simulations stay retrievable over HTTP.
	CacheTTL time.Duration `koanf:"cache_ttl"`
	// MaxBodyBytes caps the size of a posted model.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// DefaultSettings returns the defaults applied before any file or env layer.
func DefaultSettings() *Settings {
	return &Settings{
		Settings:     mca.DefaultSettings(),
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":8080",
		CacheTTL:     time.Hour,
		MaxBodyBytes: 4 << 20,
	}
}

// LoadSettings builds Settings by layering defaults, an optional YAML file
// and env vars. Order of precedence (low -> high):
//  1. defaults (DefaultSettings)
//  2. file (YAML) at path, or at $MCA_SETTINGS when path is empty
//  3. env (prefix MCA_)
func LoadSettings(path string) (*Settings, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(SettingsEnv)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// MCA_PRICE_CEILING -> price_ceiling. Keys stay flat to match the
	// koanf tags on the struct.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	s := DefaultSettings()
	if err := k.UnmarshalWithConf("", s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the solver constants and process knobs.
func (s *Settings) Validate() error {
	if err := s.Settings.Validate(); err != nil {
		return err
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return model.Configf("settings.log_format", "must be text or json, got %q", s.LogFormat)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return model.Configf("settings.log_level", "unknown level %q", s.LogLevel)
	}
	if s.MaxBodyBytes <= 0 {
		return model.Configf("settings.max_body_bytes", "must be > 0")
	}
	return nil
}
