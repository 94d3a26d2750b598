// Package app wires all Voxfill subsystems into a running agent.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the bridge listener and the command loop, and
// Shutdown tears everything down in reverse order.
//
// For testing, inject mock implementations via functional options. When an
// option is not provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxfill/voxfill/internal/bridge/wsbridge"
	"github.com/voxfill/voxfill/internal/config"
	"github.com/voxfill/voxfill/internal/extract"
	"github.com/voxfill/voxfill/internal/health"
	"github.com/voxfill/voxfill/internal/observe"
	"github.com/voxfill/voxfill/internal/ondevice"
	"github.com/voxfill/voxfill/internal/probe"
	"github.com/voxfill/voxfill/internal/rewrite"
	"github.com/voxfill/voxfill/internal/session"
	"github.com/voxfill/voxfill/internal/transcribe"
	"github.com/voxfill/voxfill/internal/transcript"
	"github.com/voxfill/voxfill/internal/transcript/phonetic"
	"github.com/voxfill/voxfill/pkg/forms"
	"github.com/voxfill/voxfill/pkg/provider/llm"
	"github.com/voxfill/voxfill/pkg/provider/stt"
	"github.com/voxfill/voxfill/pkg/provider/stt/whisper"
)

// Per-layer time budgets. The on-device model gets less rope than the cloud
// because the fallback behind it is cheap.
const (
	ondeviceTranscribeTimeout = 20 * time.Second
	cloudTranscribeTimeout    = 30 * time.Second
)

// shutdownGrace bounds how long Run waits for in-flight HTTP work on exit.
const shutdownGrace = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured; the corresponding pipeline layer is simply
// absent. Populated by main.go via the config registry.
type Providers struct {
	// STT is the cloud batch transcriber, layer two of transcription.
	STT stt.Transcriber

	// Stream is the live transcription provider that runs during recording
	// and supplies the last-resort fallback transcript.
	Stream stt.StreamProvider

	// LLM serves cloud extraction and rewriting.
	LLM llm.Provider

	// Inspector reaches the page's forms. Usually a CDP-attached tab.
	Inspector forms.Inspector
}

// App owns all subsystem lifetimes and orchestrates the voice-fill flow.
type App struct {
	cfg       *config.Config
	providers *Providers

	server     *wsbridge.Server
	checker    *probe.Checker
	recorder   *session.Recorder
	controller *Controller
	metrics    *observe.Metrics

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBridgeServer injects a bridge server instead of creating a fresh one.
func WithBridgeServer(s *wsbridge.Server) Option {
	return func(a *App) { a.server = s }
}

// WithMetrics injects a metrics set instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.server == nil {
		a.server = wsbridge.New()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.checker = probe.New(a.server.Bus(), probe.DefaultTimeout)

	// On-device slot. Bridge mode talks to the page-world model over the
	// extension; native mode loads whisper.cpp in-process.
	var (
		odModel       *ondevice.Model
		odTranscriber stt.Transcriber
	)
	switch cfg.Providers.OnDevice.Mode {
	case config.OnDeviceBridge, "":
		odModel = ondevice.New(a.server.Bus(), a.checker)
		odTranscriber = odModel
	case config.OnDeviceNative:
		w, err := whisper.New(cfg.Providers.OnDevice.ModelPath,
			whisperLanguageOption(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("app: load native model: %w", err)
		}
		odTranscriber = w
		a.closers = append(a.closers, w.Close)
	case config.OnDeviceOff:
		// Cloud layers only.
	}

	var tLayers []transcribe.Layer
	if odTranscriber != nil {
		tLayers = append(tLayers, transcribe.Layer{
			Name:        "ondevice",
			Transcriber: odTranscriber,
			Timeout:     ondeviceTranscribeTimeout,
		})
	}
	if providers.STT != nil {
		tLayers = append(tLayers, transcribe.Layer{
			Name:        "cloud",
			Transcriber: providers.STT,
			Timeout:     cloudTranscribeTimeout,
		})
	}

	var eLayers []extract.Layer
	if odModel != nil {
		eLayers = append(eLayers, extract.Layer{
			Name:    "ondevice",
			Model:   odModel,
			Timeout: extract.DefaultTimeout,
		})
	}
	if providers.LLM != nil {
		eLayers = append(eLayers, extract.Layer{
			Name:    "cloud",
			Model:   extract.LLM(providers.LLM),
			Timeout: extract.DefaultTimeout,
		})
	}

	masker := rewrite.NewMasker()
	for category, patterns := range cfg.Masking.Patterns {
		for _, pattern := range patterns {
			if err := masker.AddPattern(category, pattern); err != nil {
				return nil, fmt.Errorf("app: masking pattern: %w", err)
			}
		}
	}
	var rLayers []rewrite.Layer
	if odModel != nil {
		rLayers = append(rLayers, rewrite.Layer{
			Name:    "ondevice",
			Model:   odModel,
			Timeout: rewrite.DefaultTimeout,
		})
	}
	if providers.LLM != nil {
		rLayers = append(rLayers, rewrite.Layer{
			Name:    "cloud",
			Model:   rewrite.LLM(providers.LLM),
			Timeout: rewrite.DefaultTimeout,
		})
	}

	recOpts := []session.Option{}
	if providers.Stream != nil {
		recOpts = append(recOpts, session.WithFallbackStream(providers.Stream))
	}
	if lang := streamLanguage(cfg); lang != "" {
		recOpts = append(recOpts, session.WithLanguage(lang))
	}
	a.recorder = session.New(a.server, recOpts...)

	micEnabled := true
	if cfg.Settings.MicEnabled != nil {
		micEnabled = *cfg.Settings.MicEnabled
	}
	a.controller = NewController(ControllerConfig{
		Recorder:    a.recorder,
		Transcriber: transcribe.New(tLayers...),
		Extractor:   extract.New(eLayers...),
		Rewriter:    rewrite.New(masker, rLayers...),
		Aligner:     transcript.New(phonetic.New()),
		Inspector:   providers.Inspector,
		Notifier:    a.server,
		Commands:    a.server.Commands(),
		Metrics:     a.metrics,
		MicEnabled:  micEnabled,
		Tone:        cfg.Settings.Tone,
		Length:      cfg.Settings.Length,
	})

	return a, nil
}

// Controller exposes the command loop, mainly for tests that drive it
// directly.
func (a *App) Controller() *Controller { return a.controller }

// Bridge exposes the extension bridge server.
func (a *App) Bridge() *wsbridge.Server { return a.server }

// Run starts the bridge listener, the optional health endpoint, and the
// command loop, then blocks until ctx is cancelled or a listener fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", a.server.Handler())
	bridgeSrv := &http.Server{Addr: a.cfg.Server.ListenAddr, Handler: mux}
	g.Go(func() error {
		if err := bridgeSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge listener: %w", err)
		}
		return nil
	})

	var healthSrv *http.Server
	if a.cfg.Server.HealthAddr != "" {
		hmux := http.NewServeMux()
		health.New(health.BridgeChecker(a.server.Bus())).Register(hmux)
		healthSrv = &http.Server{Addr: a.cfg.Server.HealthAddr, Handler: hmux}
		g.Go(func() error {
			if err := healthSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health listener: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.controller.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		grace, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if healthSrv != nil {
			_ = healthSrv.Shutdown(grace)
		}
		_ = bridgeSrv.Shutdown(grace)
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown releases all resources acquired in New, in reverse order.
// Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.recorder.Active() {
			if err := a.recorder.Abort(ctx); err != nil {
				errs = append(errs, fmt.Errorf("abort recording: %w", err))
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// streamLanguage picks the language hint for the live stream, falling back to
// the batch provider's hint so one setting covers both.
func streamLanguage(cfg *config.Config) string {
	if cfg.Providers.Stream.Language != "" {
		return cfg.Providers.Stream.Language
	}
	return cfg.Providers.STT.Language
}

// whisperLanguageOption reuses the batch provider's language hint for the
// native model; there is no separate on-device language setting.
func whisperLanguageOption(cfg *config.Config) []whisper.Option {
	if lang := cfg.Providers.STT.Language; lang != "" {
		return []whisper.Option{whisper.WithLanguage(lang)}
	}
	return nil
}
