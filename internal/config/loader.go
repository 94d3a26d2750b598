package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/voxfill/voxfill/internal/rewrite"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":    {"openai", "whisper-native"},
	"stream": {"deepgram"},
	"llm":    {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stream", cfg.Providers.Stream.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	ondevice := cfg.Providers.OnDevice
	if ondevice.Mode != "" && !ondevice.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("providers.ondevice.mode %q is invalid; valid values: bridge, native, off", ondevice.Mode))
	}
	if ondevice.Mode == OnDeviceNative && ondevice.ModelPath == "" {
		errs = append(errs, errors.New("providers.ondevice.model_path is required when mode is native"))
	}

	// Pipeline availability warnings: the fill flow degrades but still runs
	// without these, so they are not errors.
	if cfg.Providers.STT.Name == "" && ondevice.Mode == OnDeviceOff {
		slog.Warn("no cloud STT configured and on-device transcription is off; only the live stream fallback can transcribe")
	}
	if cfg.Providers.LLM.Name == "" && ondevice.Mode == OnDeviceOff {
		slog.Warn("no LLM configured and on-device extraction is off; form filling will not work")
	}

	if cfg.Settings.Tone != "" && !cfg.Settings.Tone.IsValid() {
		errs = append(errs, fmt.Errorf("settings.tone %q is invalid; valid values: original, formal, casual, friendly", cfg.Settings.Tone))
	}
	if cfg.Settings.Length != "" && !cfg.Settings.Length.IsValid() {
		errs = append(errs, fmt.Errorf("settings.length %q is invalid; valid values: original, shorter, longer", cfg.Settings.Length))
	}
	if cfg.Settings.Position != "" && !cfg.Settings.Position.IsValid() {
		errs = append(errs, fmt.Errorf("settings.position %q is invalid; valid values: bottom-right, bottom-left, top-right, top-left", cfg.Settings.Position))
	}

	// Mask patterns must name a known category and compile. Probing a
	// throwaway masker keeps the category list and regex dialect in one
	// place.
	probe := rewrite.NewMasker()
	for category, patterns := range cfg.Masking.Patterns {
		for _, p := range patterns {
			if err := probe.AddPattern(category, p); err != nil {
				errs = append(errs, fmt.Errorf("masking.patterns[%s]: %w", category, err))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, possibly a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
