package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/channeldeck/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Transport     TransportConfig `mapstructure:"transport" yaml:"transport"`
	Terminal      TerminalConfig  `mapstructure:"terminal" yaml:"terminal"`
	Registry      RegistryConfig  `mapstructure:"registry" yaml:"registry"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// TransportConfig configures the realtime connection to the terminal backend.
type TransportConfig struct {
	URL                     string            `mapstructure:"url" yaml:"url"`
	Namespace               string            `mapstructure:"namespace" yaml:"namespace"`
	Headers                 map[string]string `mapstructure:"headers" yaml:"headers"`
	CallTimeoutSeconds      int               `mapstructure:"call_timeout_seconds" yaml:"call_timeout_seconds"`
	HandshakeTimeoutSeconds int               `mapstructure:"handshake_timeout_seconds" yaml:"handshake_timeout_seconds"`
}

// TerminalConfig controls terminal session behavior.
type TerminalConfig struct {
	SkipRedelivered     bool `mapstructure:"skip_redelivered" yaml:"skip_redelivered"`
	ScrollbackLines     int  `mapstructure:"scrollback_lines" yaml:"scrollback_lines"`
	CloseTimeoutSeconds int  `mapstructure:"close_timeout_seconds" yaml:"close_timeout_seconds"`
}

// RegistryConfig controls tab title limits.
type RegistryConfig struct {
	TitleMax int `mapstructure:"title_max" yaml:"title_max"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".channeldeck", "state"),
		Transport: TransportConfig{
			URL:                     "ws://127.0.0.1:27490",
			Namespace:               "/terminal",
			Headers:                 map[string]string{},
			CallTimeoutSeconds:      int(schema.DefaultCallTimeout.Seconds()),
			HandshakeTimeoutSeconds: 10,
		},
		Terminal: TerminalConfig{
			SkipRedelivered:     false,
			ScrollbackLines:     schema.DefaultScrollbackLines,
			CloseTimeoutSeconds: int(schema.DefaultCloseTimeout.Seconds()),
		},
		Registry: RegistryConfig{
			TitleMax: schema.DefaultTitleMax,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".channeldeck", "config.yaml"), nil
}

// TerminalSettings converts the terminal section into session settings.
func (c Config) TerminalSettings() schema.TerminalConfig {
	return schema.NormalizeTerminalConfig(schema.TerminalConfig{
		ScrollbackLines: c.Terminal.ScrollbackLines,
		CallTimeout:     seconds(c.Transport.CallTimeoutSeconds),
		CloseTimeout:    seconds(c.Terminal.CloseTimeoutSeconds),
		SkipRedelivered: c.Terminal.SkipRedelivered,
	})
}

// RegistrySettings converts the registry section into registry settings.
func (c Config) RegistrySettings() schema.RegistryConfig {
	return schema.RegistryConfig{TitleMax: c.Registry.TitleMax}
}

// Endpoint joins the transport URL and namespace.
func (c Config) Endpoint() string {
	return joinEndpoint(c.Transport.URL, c.Transport.Namespace)
}
