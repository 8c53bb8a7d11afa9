package schema

import (
	"errors"
	"time"
)

// RegistryConfig defines limits for the tab registry.
type RegistryConfig struct {
	TitleMax    int
	TitleSuffix string
}

// TerminalConfig defines timeouts and limits for terminal sessions.
type TerminalConfig struct {
	// ScrollbackLines bounds the locally retained scroll-back.
	ScrollbackLines int
	// CallTimeout bounds every request/response call issued by a session.
	CallTimeout time.Duration
	// CloseTimeout bounds the close request fired when a tab is destroyed.
	CloseTimeout time.Duration
	// SkipRedelivered re-confirms but does not re-apply frames whose sequence
	// is not greater than the last applied one.
	SkipRedelivered bool
}

const (
	// DefaultScrollbackLines is the default per-session scroll-back limit.
	DefaultScrollbackLines = 5000
	// DefaultCallTimeout is the default per-call timeout.
	DefaultCallTimeout = 30 * time.Second
	// DefaultCloseTimeout is the default timeout for destroy-time close requests.
	DefaultCloseTimeout = 10 * time.Second
	// DefaultTitleMax is the default maximum tab title length.
	DefaultTitleMax = 32
)

// NormalizeRegistryConfig applies defaults and validates the config.
func NormalizeRegistryConfig(cfg RegistryConfig) (RegistryConfig, error) {
	if cfg.TitleMax <= 0 {
		cfg.TitleMax = DefaultTitleMax
	}
	if cfg.TitleSuffix == "" {
		cfg.TitleSuffix = "…"
	}
	if cfg.TitleMax <= len([]rune(cfg.TitleSuffix)) {
		return RegistryConfig{}, errors.New("title max must exceed suffix length")
	}
	return cfg, nil
}

// NormalizeTerminalConfig applies defaults to the terminal config.
func NormalizeTerminalConfig(cfg TerminalConfig) TerminalConfig {
	if cfg.ScrollbackLines <= 0 {
		cfg.ScrollbackLines = DefaultScrollbackLines
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	return cfg
}
