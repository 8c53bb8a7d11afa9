package appconfig

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/channeldeck/transport"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("transport.url", cfg.Transport.URL)
	v.SetDefault("transport.namespace", cfg.Transport.Namespace)
	v.SetDefault("transport.headers", cfg.Transport.Headers)
	v.SetDefault("transport.call_timeout_seconds", cfg.Transport.CallTimeoutSeconds)
	v.SetDefault("transport.handshake_timeout_seconds", cfg.Transport.HandshakeTimeoutSeconds)
	v.SetDefault("terminal.skip_redelivered", cfg.Terminal.SkipRedelivered)
	v.SetDefault("terminal.scrollback_lines", cfg.Terminal.ScrollbackLines)
	v.SetDefault("terminal.close_timeout_seconds", cfg.Terminal.CloseTimeoutSeconds)
	v.SetDefault("registry.title_max", cfg.Registry.TitleMax)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if !v.InConfig("transport.url") {
			return Config{}, fmt.Errorf("transport.url is required for config_version %d", CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateTransportConfig(cfg.Transport); err != nil {
		return Config{}, err
	}
	if cfg.Terminal.ScrollbackLines < 0 {
		return Config{}, fmt.Errorf("terminal.scrollback_lines must not be negative")
	}
	return cfg, nil
}

func validateTransportConfig(cfg TransportConfig) error {
	raw := strings.TrimSpace(cfg.URL)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("transport.url must include scheme and host (e.g. wss://example.com)")
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("transport.url scheme must be ws or wss, got %q", parsed.Scheme)
	}
	namespace := strings.TrimSpace(cfg.Namespace)
	if strings.Contains(namespace, "://") {
		return fmt.Errorf("transport.namespace must be a path, not a URL")
	}
	if strings.ContainsAny(namespace, "?#") {
		return fmt.Errorf("transport.namespace must not include query or fragment")
	}
	if cfg.CallTimeoutSeconds < 0 || cfg.HandshakeTimeoutSeconds < 0 {
		return fmt.Errorf("transport timeouts must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Transport.URL = expandEnv(cfg.Transport.URL)
	cfg.Transport.Namespace = expandEnv(cfg.Transport.Namespace)
	for key, value := range cfg.Transport.Headers {
		cfg.Transport.Headers[key] = expandEnv(value)
	}
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

func joinEndpoint(base, namespace string) string {
	namespace = strings.Trim(strings.TrimSpace(namespace), "/")
	if namespace == "" {
		return base
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + namespace
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/" + namespace
	return parsed.String()
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// TransportSettings converts the transport section into dial settings.
func (c Config) TransportSettings() transport.Config {
	header := http.Header{}
	for key, value := range c.Transport.Headers {
		header.Set(key, value)
	}
	return transport.Config{
		URL:              c.Endpoint(),
		Header:           header,
		CallTimeout:      seconds(c.Transport.CallTimeoutSeconds),
		HandshakeTimeout: seconds(c.Transport.HandshakeTimeoutSeconds),
	}
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
