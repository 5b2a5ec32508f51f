// Package config loads and persists xdg-portal-wayfar's startup configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// General holds toplevel-registry activation policy.
type General struct {
	// ToplevelDynamicBind, when true, defers toplevel registry activation
	// until a session actually requests a window selection instead of
	// activating it pre-emptively at session creation.
	ToplevelDynamicBind bool `yaml:"toplevel_dynamic_bind"`
}

// Screencopy holds capture-pipeline tunables.
type Screencopy struct {
	// MaxFPS upper-clamps session framerate; 0 means "use the output's
	// reported refresh rate unclamped".
	MaxFPS int `yaml:"max_fps"`
	// AllowTokenByDefault is passed to the picker as the default answer
	// to "may this selection be remembered".
	AllowTokenByDefault bool `yaml:"allow_token_by_default"`
	// CustomPickerBinary overrides the picker executable path; empty
	// means use the built-in default.
	CustomPickerBinary string `yaml:"custom_picker_binary"`
}

// Log holds logging output settings.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Debug holds the optional local introspection HTTP server settings.
type Debug struct {
	HTTPAddr string `yaml:"http_addr"`
}

// Config is the full set of startup settings for the daemon.
type Config struct {
	General    General    `yaml:"general"`
	Screencopy Screencopy `yaml:"screencopy"`
	Log        Log        `yaml:"log"`
	Debug      Debug      `yaml:"debug"`
}

func defaults() *Config {
	return &Config{
		General: General{
			ToplevelDynamicBind: false,
		},
		Screencopy: Screencopy{
			MaxFPS:              0,
			AllowTokenByDefault: false,
			CustomPickerBinary:  "",
		},
		Log: Log{
			Level:  "info",
			Pretty: false,
		},
		Debug: Debug{
			HTTPAddr: "",
		},
	}
}

// Manager owns the on-disk config file and the layered viper instance used
// to apply flag/environment overrides on top of it.
type Manager struct {
	v          *viper.Viper
	configFile string
	cfg        *Config
}

// DefaultConfigPath returns ~/.config/xdg-portal-wayfar/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "xdg-portal-wayfar", "config.yaml"), nil
}

// NewManager creates a Manager bound to configFile. If configFile is empty,
// DefaultConfigPath is used.
func NewManager(configFile string) (*Manager, error) {
	if configFile == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		configFile = p
	}

	v := viper.New()
	v.SetEnvPrefix("XDPW")
	v.AutomaticEnv()

	m := &Manager{v: v, configFile: configFile}
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads the config file, creating it with defaults if absent, then
// applies environment overrides.
func (m *Manager) Load() error {
	cfg := defaults()

	if data, err := os.ReadFile(m.configFile); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", m.configFile, err)
		}
	} else if os.IsNotExist(err) {
		if err := m.save(cfg); err != nil {
			return fmt.Errorf("write default config %s: %w", m.configFile, err)
		}
	} else {
		return fmt.Errorf("read config %s: %w", m.configFile, err)
	}

	if v := m.v.GetString("log.level"); v != "" {
		cfg.Log.Level = v
	}
	if m.v.IsSet("debug.http_addr") {
		cfg.Debug.HTTPAddr = m.v.GetString("debug.http_addr")
	}

	m.cfg = cfg
	return nil
}

func (m *Manager) save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.configFile), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(m.configFile, data, 0o644)
}

// Get returns the currently loaded config.
func (m *Manager) Get() *Config {
	return m.cfg
}

// Viper returns the underlying viper instance, for callers (cmd/ commands)
// that need to bind pflag.Flag values directly.
func (m *Manager) Viper() *viper.Viper {
	return m.v
}

// ApplyOverrides layers CLI-flag-derived values on top of the loaded config.
// Empty/zero arguments leave the corresponding field untouched.
func (m *Manager) ApplyOverrides(logLevel string, debugHTTPAddr string) {
	if logLevel != "" {
		m.cfg.Log.Level = logLevel
	}
	if debugHTTPAddr != "" {
		m.cfg.Debug.HTTPAddr = debugHTTPAddr
	}
}
