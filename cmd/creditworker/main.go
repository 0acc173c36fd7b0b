// Command creditworker consumes credit events from Kafka and replays them
// into the ledger store. Redelivered events are skipped, and events that
// cannot be stored are moved to the dead-letter topic.
//
// Usage:
//
//	go run ./cmd/creditworker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	"github.com/fiscal-credits/creditledger/internal/ledger"
	"github.com/fiscal-credits/creditledger/internal/replay"
	"github.com/fiscal-credits/creditledger/pkg/config"
	"github.com/fiscal-credits/creditledger/pkg/kafka"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/fiscal-credits/creditledger/pkg/metrics"
	"github.com/fiscal-credits/creditledger/pkg/queue"
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
	slog.Info("starting credit worker",
		"topic", cfg.Kafka.Topics.CreditInbound,
		"group", cfg.Kafka.ConsumerGroup,
		"concurrency", cfg.Consumer.Concurrency,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("credit worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("credit worker stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	store, err := ledger.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening ledger store: %w", err)
	}
	defer store.Close()

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()
	source := kafka.NewQueueSource(cfg.Kafka, cfg.Kafka.Topics.CreditInbound, producer)

	processor := replay.New(store, m)
	consumer := queue.NewConsumer[ingestion.CreditEvent](source, processor.ProcessEvent, queue.Options{
		Name:        "credit-worker",
		Concurrency: cfg.Consumer.Concurrency,
		OnResult: func(r queue.Result) {
			m.QueueMessage(r.Outcome.String())
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		g.Go(func() error {
			<-gctx.Done()
			return shutdownMetrics(context.WithoutCancel(gctx))
		})
	}
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	return g.Wait()
}
