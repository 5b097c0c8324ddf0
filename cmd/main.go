package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/duel/internal/adapters/generator"
	"github.com/okian/duel/internal/adapters/http/api"
	"github.com/okian/duel/internal/adapters/http/swagger"
	"github.com/okian/duel/internal/adapters/llm"
	"github.com/okian/duel/internal/adapters/repository"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/config"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/selection"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// We export our own runtime gauges instead of the default collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "duel exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run wires the process and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.NewMemoryStore(ctx,
		repository.WithSnapshotPath(cfg.SnapshotPath),
		repository.WithSnapshotInterval(cfg.SnapshotInterval()),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	svc, err := newService(ctx, cfg, store)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		every(gctx, systemMetricsInterval, updateSystemMetrics)
		return nil
	})
	g.Go(func() error {
		every(gctx, serviceMetricsInterval, func() { svc.GetStats() })
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// newService builds the generator chain, selector and service from cfg.
// A phase set through the admin endpoint before a restart wins over cfg.
func newService(ctx context.Context, cfg *config.Config, store *repository.MemoryStore) (*service.Service, error) {
	initial := phase.Config{
		CurrentStep:  phase.Step(cfg.CurrentStep),
		RoundsTarget: cfg.RoundsTarget,
		Prompt:       cfg.Prompt,
	}
	saved, ok, err := store.LoadPhase(ctx)
	if err != nil {
		return nil, fmt.Errorf("load phase: %w", err)
	}
	if ok {
		logger.Get().Info(ctx, "using persisted phase",
			logger.String("step", saved.CurrentStep.String()),
			logger.Int("roundsTarget", saved.RoundsTarget))
		initial = saved
	}
	phases, err := phase.NewHolder(initial, phase.WithSaver(store))
	if err != nil {
		return nil, fmt.Errorf("phase config: %w", err)
	}

	selOpts := []selection.Option{
		selection.WithExploitProbability(cfg.ExploitProbability),
		selection.WithGeneratorTimeout(cfg.GeneratorTimeout()),
		selection.WithHistoryBounds(cfg.HistoryTopK, cfg.HistoryLimit),
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	if gen != nil {
		selOpts = append(selOpts, selection.WithGenerator(gen))
	}

	return service.New(store, phases,
		service.WithSelector(selection.New(store, selOpts...)),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithHistoryLimit(cfg.HistoryLimit),
		service.WithSeedCandidates(cfg.SeedCandidates),
		service.WithLogger(logger.Named("service")),
	), nil
}

// newGenerator returns nil when no provider is configured; the selector then
// serves exploit pairs only.
func newGenerator(cfg *config.Config) (*generator.Generator, error) {
	if cfg.GeneratorProvider == "none" {
		return nil, nil
	}
	client, err := llm.New(cfg.GeneratorProvider, llm.Config{
		APIKey:  cfg.GeneratorAPIKey,
		Model:   cfg.GeneratorModel,
		BaseURL: cfg.GeneratorBaseURL,
		Timeout: cfg.GeneratorTimeout(),
		Middleware: llm.Resilience{
			Timeout:         cfg.GeneratorTimeout(),
			MaxRetries:      cfg.GeneratorMaxRetries,
			RateLimit:       cfg.GeneratorRateLimit,
			Burst:           cfg.GeneratorBurst,
			BreakerFailures: cfg.BreakerMaxFailures,
			BreakerCooldown: cfg.BreakerCooldown(),
		}.Chain(cfg.GeneratorProvider),
	})
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	return generator.New(client,
		generator.WithMaxTokens(cfg.GeneratorMaxTokens),
		generator.WithTemperature(cfg.GeneratorTemp),
	), nil
}

func newMux(ctx context.Context, cfg *config.Config, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithSessionCookie(cfg.SessionCookie),
		api.WithAdminToken(cfg.AdminToken),
		api.WithLogger(logger.Named("api")),
	).Register(ctx, mux)
	return mux
}

// every calls fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
