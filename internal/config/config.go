// Package config provides the configuration schema and loader for the
// Voxfill agent.
package config

import (
	"github.com/voxfill/voxfill/internal/rewrite"
)

// LogLevel controls log verbosity for the Voxfill agent.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ControlPosition places the floating voice control in the page.
type ControlPosition string

const (
	PositionBottomRight ControlPosition = "bottom-right"
	PositionBottomLeft  ControlPosition = "bottom-left"
	PositionTopRight    ControlPosition = "top-right"
	PositionTopLeft     ControlPosition = "top-left"
)

// IsValid reports whether p is a recognised control position.
func (p ControlPosition) IsValid() bool {
	switch p {
	case PositionBottomRight, PositionBottomLeft, PositionTopRight, PositionTopLeft:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxfill.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Providers ProvidersConfig `yaml:"providers"`
	Settings  SettingsConfig  `yaml:"settings"`
	Masking   MaskingConfig   `yaml:"masking"`
}

// ServerConfig holds network and logging settings for the agent.
type ServerConfig struct {
	// ListenAddr is the TCP address the extension bridge listens on
	// (e.g., "127.0.0.1:8787").
	ListenAddr string `yaml:"listen_addr"`

	// HealthAddr is the TCP address serving /healthz and /metrics.
	// Empty disables the HTTP endpoint.
	HealthAddr string `yaml:"health_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BrowserConfig configures the DevTools attachment used for form access.
type BrowserConfig struct {
	// DebugURL is the DevTools endpoint of a running browser
	// (e.g., "http://127.0.0.1:9222"). Empty disables CDP form access.
	DebugURL string `yaml:"debug_url"`
}

// ProvidersConfig declares which provider implementation serves each
// pipeline stage.
type ProvidersConfig struct {
	// STT is the cloud transcription layer.
	STT ProviderEntry `yaml:"stt"`

	// Stream is the live transcription fallback running during recording.
	Stream ProviderEntry `yaml:"stream"`

	// LLM serves extraction and rewriting.
	LLM ProviderEntry `yaml:"llm"`

	// OnDevice configures transcription layer one.
	OnDevice OnDeviceConfig `yaml:"ondevice"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// "nova-2", "whisper-1").
	Model string `yaml:"model"`

	// Language is the BCP-47 recognition language. Empty auto-detects where
	// supported.
	Language string `yaml:"language"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// OnDeviceConfig selects the first transcription layer.
type OnDeviceConfig struct {
	// Mode is "bridge" (the page-world model reached over the extension),
	// "native" (local whisper.cpp), or "off". Empty means "bridge".
	Mode OnDeviceMode `yaml:"mode"`

	// ModelPath is the GGML model file loaded when Mode is "native".
	ModelPath string `yaml:"model_path"`
}

// OnDeviceMode selects how on-device transcription runs.
type OnDeviceMode string

const (
	OnDeviceBridge OnDeviceMode = "bridge"
	OnDeviceNative OnDeviceMode = "native"
	OnDeviceOff    OnDeviceMode = "off"
)

// IsValid reports whether m is a recognised on-device mode.
func (m OnDeviceMode) IsValid() bool {
	switch m {
	case OnDeviceBridge, OnDeviceNative, OnDeviceOff:
		return true
	}
	return false
}

// SettingsConfig holds the user-facing behaviour toggles. Zero values mean
// "use the default"; call [Config.Defaulted] to resolve them.
type SettingsConfig struct {
	// MicEnabled turns voice capture on. Nil means enabled.
	MicEnabled *bool `yaml:"mic_enabled"`

	// Tone is the default rewrite tone. Empty means "original".
	Tone rewrite.Tone `yaml:"tone"`

	// Length is the default rewrite length. Empty means "original".
	Length rewrite.Length `yaml:"length"`

	// Position places the floating control. Empty means "bottom-right".
	Position ControlPosition `yaml:"position"`
}

// MaskingConfig supplies additional privacy mask patterns per category,
// applied on top of the built-in rules.
type MaskingConfig struct {
	// Patterns maps a mask category (URL, EMAIL, PHONE, DATE, CURR, PCT,
	// ADDR, ID) to extra Go regular expressions.
	Patterns map[string][]string `yaml:"patterns"`
}

// Defaulted returns a copy of cfg with unset values resolved to their
// defaults.
func (cfg Config) Defaulted() Config {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1:8787"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.OnDevice.Mode == "" {
		cfg.Providers.OnDevice.Mode = OnDeviceBridge
	}
	if cfg.Settings.MicEnabled == nil {
		on := true
		cfg.Settings.MicEnabled = &on
	}
	if cfg.Settings.Tone == "" {
		cfg.Settings.Tone = rewrite.ToneOriginal
	}
	if cfg.Settings.Length == "" {
		cfg.Settings.Length = rewrite.LengthOriginal
	}
	if cfg.Settings.Position == "" {
		cfg.Settings.Position = PositionBottomRight
	}
	return cfg
}
