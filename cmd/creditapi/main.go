// Command creditapi starts the credit ingestion HTTP service.
//
// The service accepts credit batches via
// POST /api/creditos/integrar-credito-constituido, persists every credit to
// the ledger store and publishes one event per credit to Kafka. It also
// serves credit lookups and the /api/health probes.
//
// Usage:
//
//	go run ./cmd/creditapi [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiscal-credits/creditledger/internal/ingestion/handler"
	"github.com/fiscal-credits/creditledger/internal/ingestion/service"
	"github.com/fiscal-credits/creditledger/internal/ledger"
	"github.com/fiscal-credits/creditledger/internal/ledger/cache"
	"github.com/fiscal-credits/creditledger/pkg/config"
	"github.com/fiscal-credits/creditledger/pkg/health"
	"github.com/fiscal-credits/creditledger/pkg/kafka"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/fiscal-credits/creditledger/pkg/metrics"
	pkgredis "github.com/fiscal-credits/creditledger/pkg/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting credit api", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("credit api failed", "error", err)
		os.Exit(1)
	}
	slog.Info("credit api stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	checker := health.NewChecker()

	store, err := ledger.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening ledger store: %w", err)
	}
	defer store.Close()
	checker.Register(cfg.Store.Driver, health.PingCheck(store.Ping))
	slog.Info("ledger store ready", "driver", cfg.Store.Driver)

	var lookupStore service.Store = store
	if cfg.Redis.Enabled {
		rdb, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		checker.Register("redis", health.PingCheck(rdb.Ping))
		lookupStore = cache.New(store, rdb, cfg.Redis.CacheTTL, m)
		slog.Info("lookup cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()
	checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	}))
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.CreditIntegrated)

	svc := service.New(lookupStore, producer,
		service.WithTopic(cfg.Kafka.Topics.CreditIntegrated),
		service.WithMetrics(m),
	)
	router := handler.NewRouter(handler.RouterConfig{
		Handler:        handler.New(svc),
		Health:         checker,
		Metrics:        m,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			return shutdownMetrics(shutdownCtx)
		})
	}
	g.Go(func() error {
		slog.Info("credit api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
