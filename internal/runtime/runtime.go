package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vaanilabs/vaani-core/internal/audit"
	"github.com/vaanilabs/vaani-core/internal/bus"
	"github.com/vaanilabs/vaani-core/internal/config"
	"github.com/vaanilabs/vaani-core/internal/health"
	"github.com/vaanilabs/vaani-core/internal/natsserver"
	"github.com/vaanilabs/vaani-core/internal/tts"
)

// Runtime wires the synthesis pipeline to its transports: the HTTP API,
// the optional NATS speak path, telemetry, and the audit store.
type Runtime struct {
	cfg          config.Config
	logger       *slog.Logger
	httpServer   *http.Server
	metricServer *http.Server
	tracerClose  func(context.Context) error
	natsServer   *natsserver.EmbeddedServer
	busClient    *bus.Client
	auditStore   *audit.Store
	registry     *health.Registry
	orchestrator *tts.Orchestrator
	ttsService   *tts.Service
	ready        atomic.Bool
	wg           sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	auditStore, err := audit.Open(ctx, r.cfg.Audit, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	r.auditStore = auditStore

	if r.cfg.Bus.Enabled {
		if err := r.startBus(); err != nil {
			return err
		}
	}

	providers, err := r.buildProviders()
	if err != nil {
		return err
	}
	tierNames := make([]string, 0, len(providers))
	for _, p := range providers {
		tierNames = append(tierNames, p.Name())
	}

	r.registry = health.NewRegistry(ctx, tierNames, r.busClient, 15*time.Second, r.logger)

	r.orchestrator = tts.NewOrchestrator(providers, r.logger,
		tts.WithMaxChunkSize(r.cfg.TTS.MaxChunkSize),
		tts.WithMaxAttempts(r.cfg.TTS.MaxAttempts),
		tts.WithRetryBase(time.Duration(r.cfg.TTS.RetryBaseMS)*time.Millisecond),
		tts.WithDefaultVoice(r.cfg.TTS.DefaultVoice),
		tts.WithDefaultLanguage(r.cfg.TTS.DefaultLanguage),
		tts.WithReporter(r.registry),
	)

	if r.busClient != nil {
		r.ttsService = tts.NewService(ctx, r.busClient, r.orchestrator,
			time.Duration(r.cfg.TTS.RequestTimeoutMS)*time.Millisecond, r.logger)
		if err := r.ttsService.Start(); err != nil {
			return fmt.Errorf("failed to start tts bus service: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/speak", r.requireAuth(r.handleSpeak))
	mux.HandleFunc("GET /v1/providers", r.handleProviders)
	mux.HandleFunc("GET /v1/utterances", r.requireAuth(r.handleUtterances))
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricHandler != nil {
		metricMux := http.NewServeMux()
		metricMux.Handle("/metrics", metricHandler)
		r.metricServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.Int("tiers", len(providers)))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.shutdown()
	return nil
}

func (r *Runtime) startBus() error {
	ns, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.natsServer = ns

	busCfg := r.cfg.Bus
	if ns != nil {
		busCfg.Servers = []string{ns.ClientURL()}
	}
	client, err := bus.Connect(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = client
	return nil
}

// buildProviders assembles the network tier list in configured priority
// order. Mock mode swaps every tier for the canned provider.
func (r *Runtime) buildProviders() ([]tts.Provider, error) {
	if r.cfg.Providers.Mock {
		providers := make([]tts.Provider, 0, len(r.cfg.TTS.Tiers))
		for _, tier := range r.cfg.TTS.Tiers {
			providers = append(providers, tts.NewMockProvider(tier))
		}
		if len(providers) == 0 {
			providers = append(providers, tts.NewMockProvider("mock"))
		}
		return providers, nil
	}

	var providers []tts.Provider
	for _, tier := range r.cfg.TTS.Tiers {
		switch tier {
		case "elevenlabs":
			if r.cfg.Providers.ElevenLabs.Enabled {
				providers = append(providers, tts.NewElevenLabsProvider(r.cfg.Providers.ElevenLabs))
			}
		case "sarvam":
			if r.cfg.Providers.Sarvam.Enabled {
				providers = append(providers, tts.NewSarvamProvider(r.cfg.Providers.Sarvam))
			}
		default:
			return nil, fmt.Errorf("unknown tier %q", tier)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no synthesis providers enabled")
	}
	return providers, nil
}

func (r *Runtime) shutdown() {
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	if r.metricServer != nil {
		if err := r.metricServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	if r.ttsService != nil {
		r.ttsService.Close()
	}
	if r.registry != nil {
		r.registry.Close()
	}
	if r.busClient != nil {
		r.busClient.Close()
	}
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}
	if r.auditStore != nil {
		if err := r.auditStore.Close(); err != nil {
			r.logger.Error("audit store close error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
