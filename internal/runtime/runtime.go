package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxalabs/voxa-core/internal/bus"
	"github.com/voxalabs/voxa-core/internal/config"
	"github.com/voxalabs/voxa-core/internal/natsserver"
	"github.com/voxalabs/voxa-core/internal/playback"
	"github.com/voxalabs/voxa-core/internal/speak"
	"github.com/voxalabs/voxa-core/internal/synth"
	"github.com/voxalabs/voxa-core/internal/turnlog"
)

// Runtime assembles the speak pipeline: embedded bus, turn log, synthesis
// and playback backends, and the bus-facing speak service.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	busClient   *bus.Client
	speakSvc    *speak.Service
	ready       atomic.Bool
	wg          sync.WaitGroup
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

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient
	defer busClient.Close()

	store, err := turnlog.Open(ctx, r.cfg.TurnLog, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open turn log: %w", err)
	}
	defer store.Close()

	synthesizer, err := buildSynthesizer(r.cfg.Synth)
	if err != nil {
		return fmt.Errorf("failed to build synthesizer: %w", err)
	}
	player, err := buildPlayer(r.cfg.Playback, r.cfg.Synth)
	if err != nil {
		return fmt.Errorf("failed to build player: %w", err)
	}

	metrics, err := speak.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create speak metrics: %w", err)
	}

	speakSvc := speak.NewService(ctx, r.cfg, busClient, synthesizer, player, store, metrics, r.logger)
	if err := speakSvc.Start(); err != nil {
		return fmt.Errorf("failed to start speak service: %w", err)
	}
	r.speakSvc = speakSvc
	defer speakSvc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

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

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func buildSynthesizer(cfg config.SynthConfig) (synth.Synthesizer, error) {
	switch cfg.Mode {
	case "exec":
		return synth.NewExecSynth(cfg.Command, cfg.Voice, cfg.SampleRate, cfg.Channels)
	default:
		return synth.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	}
}

func buildPlayer(cfg config.PlaybackConfig, synthCfg config.SynthConfig) (playback.Player, error) {
	switch cfg.Mode {
	case "exec":
		return playback.NewExecPlayer(cfg.Command, synthCfg.SampleRate, synthCfg.Channels)
	default:
		return playback.NewMockPlayer(synthCfg.SampleRate, synthCfg.Channels), nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.speakSvc.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
