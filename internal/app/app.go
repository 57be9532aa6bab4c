package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/caja/internal/cache"
	"github.com/xenking/caja/internal/command"
	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/domain/order"
	"github.com/xenking/caja/internal/domain/stock"
	"github.com/xenking/caja/internal/handler"
	"github.com/xenking/caja/internal/storage/postgres"
	"github.com/xenking/caja/pkg/health"
	"github.com/xenking/caja/pkg/httpmiddleware"
)

const meterName = "github.com/xenking/caja"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.Stock.Policy()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	store := postgres.New(pool)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", store))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Store cache, optional.
	var storeCache catalog.StoreCache = catalog.NoopStoreCache{}
	if cfg.RedisURL != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		storeCache = cache.NewStores(rdb)
		ping := health.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		healthSvc.AddReadiness(health.Check{
			Name:             "redis",
			Timeout:          2 * time.Second,
			Func:             health.PingCheck("redis", ping),
			FailureThreshold: 5,
		})
		lg.Info("Store cache enabled")
	}
	stores := catalog.NewCachedStores(store, storeCache, cfg.Catalog.StoreTTL)

	// Material index.
	index, err := catalog.LoadIndex(ctx, store)
	if err != nil {
		return errors.Wrap(err, "load material index")
	}
	lg.Info("Material index loaded", zap.Int("materials", index.Len()))
	if cfg.Catalog.RefreshInterval > 0 {
		go refreshIndex(ctx, index, store, cfg.Catalog.RefreshInterval)
	}

	// Domain services.
	ledger := stock.NewLedger(store.Stock(), stock.NewValidator(index, stores),
		stock.WithNegativePolicy(policy),
	)
	sessions := cash.NewManager(store.Cash(), stores)
	processor := order.NewProcessor(store.Orders(), sessions, ledger)

	metrics, err := command.NewMetricsSink(m.MeterProvider().Meter(meterName))
	if err != nil {
		return errors.Wrap(err, "create metrics sink")
	}
	processor.SetObserver(metrics)
	runner := command.NewRunner(command.Fanout{command.LogSink{}, metrics}, m.TracerProvider())

	// HTTP handlers.
	h := handler.New(handler.Deps{
		Sessions: sessions,
		Orders:   processor,
		Ledger:   ledger,
		Catalog:  store,
		Stores:   stores,
		Keys:     store,
		Pepper:   []byte(cfg.APIKeyPepper),
		Runner:   runner,
	})

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// The chi root router runs the middleware so that the matched route
	// pattern is known to the access log and the instrumentation.
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("caja-api", m),
		httpmiddleware.LogRequests(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, "api_key"},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.KeyByHeader(handler.APIKeyHeader),
		}),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/api", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           r,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// refreshIndex reloads the material index until ctx is done, so materials
// written by catalog-ingest become valid without a restart.
func refreshIndex(ctx context.Context, index *catalog.Index, repo catalog.Repository, every time.Duration) {
	lg := zctx.From(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := index.Refresh(ctx, repo); err != nil {
				lg.Warn("Material index refresh failed", zap.Error(err))
				continue
			}
			lg.Debug("Material index refreshed", zap.Int("materials", index.Len()))
		}
	}
}
