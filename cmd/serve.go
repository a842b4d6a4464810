package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/http/api"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/http/swagger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/mq/events"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/repository"
	app "github.com/Thiri06/Contact-Info-Capture-Agent/internal/app"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/config"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/dedupe"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// tracingFlushTimeout bounds the final span export on exit.
const tracingFlushTimeout = 5 * time.Second

func newServeCommand(cc *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, import workers and event relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cc.load(cmd.Context())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// buildService wires the tracer provider, store, deduper and publisher chosen
// by cfg into a service. The returned cleanup releases the Redis and NATS
// connections and flushes pending spans; the store is owned by the service.
func buildService(ctx context.Context, cfg *config.Config) (*app.Service, func(), error) {
	log := logger.Get()
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	shutdownTracing, err := tracing.Init(ctx,
		tracing.WithExporter(cfg.TracingExporter),
		tracing.WithEndpoint(cfg.TracingEndpoint),
		tracing.WithSampleRatio(cfg.TracingSampleRatio),
	)
	if err != nil {
		return nil, cleanup, fmt.Errorf("init tracing: %w", err)
	}
	cleanups = append(cleanups, func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tracingFlushTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn(sctx, "trace exporter shutdown failed", logger.Error(err))
		}
	})
	if cfg.TracingExporter != tracing.ExporterNone {
		log.Info(ctx, "tracing enabled", logger.String("exporter", cfg.TracingExporter), logger.Float64("sample_ratio", cfg.TracingSampleRatio))
	}

	store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN,
		repository.WithMaxConns(int32(cfg.StoreMaxConns)), //nolint:gosec // validated positive
		repository.WithMigrate(cfg.StoreMigrate),
		repository.WithLogger(log.Named("store")),
	)
	if err != nil {
		return nil, cleanup, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithStore(store),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.ImportQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithIdempotencyTTL(cfg.IdempotencyTTL),
		app.WithJobRetention(cfg.JobRetention),
		app.WithRelayInterval(cfg.RelayInterval),
	}

	if cfg.RedisURL != "" {
		client, err := dedupe.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			_ = store.Close()
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		opts = append(opts, app.WithDeduper(dedupe.NewRedisDeduper(client, dedupe.WithRedisTTL(cfg.IdempotencyTTL))))
		log.Info(ctx, "idempotency keys kept in redis")
	}

	if cfg.NATSURL != "" {
		nc, err := events.DialNATS(cfg.NATSURL, "intake")
		if err != nil {
			_ = store.Close()
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = nc.Drain() })
		opts = append(opts, app.WithPublisher(events.NewNATSPublisher(nc, cfg.NATSSubjectPrefix)))
		log.Info(ctx, "publishing events to nats", logger.String("prefix", cfg.NATSSubjectPrefix))
	}

	return app.New(opts...), cleanup, nil
}

// newHandler mounts the API and its documentation on one router.
func newHandler(svc *app.Service) http.Handler {
	r := api.NewServer(svc, svc).Routes()
	swagger.Register(r)
	return r
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	svc, cleanup, err := buildService(ctx, cfg)
	defer cleanup()
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	// Stop runs before cleanup so the relay flushes while NATS is still up.
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(svc),
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
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}
