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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/adapters/http/api"
	"github.com/okian/arena/internal/adapters/http/swagger"
	"github.com/okian/arena/internal/adapters/identity"
	"github.com/okian/arena/internal/adapters/mirror"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/repository/sqlite"
	app "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/config"
	"github.com/okian/arena/internal/seed"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
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
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "arena exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run wires the service and serves HTTP until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "close store", logger.Error(err))
		}
	}()

	if cfg.SeedFile != "" {
		if err := applySeed(ctx, store, cfg.SeedFile, int64(cfg.PercentageScale), log); err != nil {
			return err
		}
	}

	mc, err := mirror.Open(ctx, mirror.Config{
		Driver:     cfg.MirrorDriver,
		URL:        cfg.MirrorURL,
		AuthToken:  cfg.MirrorAuthToken,
		Timeout:    cfg.MirrorTimeout,
		MaxRetries: cfg.MirrorMaxRetries,
	})
	if err != nil {
		return fmt.Errorf("open mirror: %w", err)
	}
	defer func() { _ = mc.Close() }()

	svc := app.New(store, mc,
		app.WithLogger(log.Named("app")),
		app.WithScale(decimal.NewFromInt(int64(cfg.PercentageScale))),
		app.WithSyncWorkers(cfg.SyncWorkers),
		app.WithSyncQueueSize(cfg.SyncQueueSize),
		app.WithDedupeSize(cfg.InboundDedupeSize),
		app.WithLiveBuffer(cfg.LiveSendBuffer),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Warn(stopCtx, "stop service", logger.Error(err))
		}
	}()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	handler, err := newHandler(ctx, cfg, svc, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore builds the configured repository.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, sqlite.WithQueryDebug(cfg.DBDebug))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return repository.NewMemoryStore(), nil
	}
}

// applySeed loads the fixture file into store after checking its
// parameters against the percentage scale.
func applySeed(ctx context.Context, store repository.Store, path string, scale int64, log logger.Logger) error {
	f, err := seed.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	if err := f.CheckScale(scale); err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	sum, err := seed.Apply(ctx, store, f)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	log.Info(ctx, "seed applied",
		logger.String("file", path),
		logger.Int("competitions", sum.Competitions),
		logger.Int("skipped", sum.Skipped),
		logger.Int("participants", sum.Participants),
		logger.Int("judges", sum.Judges),
	)
	return nil
}

// newHandler registers docs and API routes behind the request id middleware.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) (http.Handler, error) {
	opts := []api.Option{
		api.WithLogger(log.Named("api")),
		api.WithRefresher(svc.Directory()),
		api.WithInboundToken(cfg.InboundToken),
	}
	if cfg.AuthSecret != "" {
		auth, err := identity.NewAuthenticator([]byte(cfg.AuthSecret))
		if err != nil {
			return nil, fmt.Errorf("build authenticator: %w", err)
		}
		opts = append(opts, api.WithAuthenticator(auth))
	} else {
		log.Warn(ctx, "auth_secret not set; write endpoints will answer 401")
	}

	mux := http.NewServeMux()

	// Register API docs under /api-docs
	swagger.Register(ctx, mux)

	// Register business API routes with the service dependency.
	api.NewServer(svc, svc, opts...).Register(ctx, mux)

	return api.RequestIDMiddleware(mux), nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
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

// updateServiceMetrics copies fan-out figures from the service stats.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)

	if pending, ok := stats["pendingSyncJobs"].(int); ok {
		metrics.UpdateQueueSize(pending)
	}

	if workers, ok := stats["syncWorkers"].(int); ok {
		metrics.UpdateWorkerCount(workers)
	}

	if subscribers, ok := stats["liveSubscribers"].(int); ok {
		metrics.UpdateLiveSubscribers(subscribers)
	}
}
