package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ratio/cmd/generator/internal/generator"
	"github.com/shubham-shewale/stock-ratio/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	clock := generator.RealClock{}

	creator := generator.NewTopicCreator(logger, &generator.RealKafkaDialer{Dialer: kafka.DefaultDialer}, clock)
	if err := creator.Create(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
		logger.Warn("Could not ensure topic exists", zap.Error(err))
	}

	writer := &kafka.Writer{
		Addr:  kafka.TCP(cfg.Kafka.Brokers...),
		Topic: cfg.Kafka.Topic,
		// Hash keeps each symbol on one partition so SeqIDs arrive in order
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := generator.NewQuoteGenerator(
		logger,
		writer,
		map[string]float64{
			cfg.Ratio.InstrumentA: cfg.Generator.BasePriceA,
			cfg.Ratio.InstrumentB: cfg.Generator.BasePriceB,
		},
		generator.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		clock,
		time.Duration(cfg.Generator.TickMillis)*time.Millisecond,
	)
	gen.Run(ctx)

	logger.Info("Shutdown signal received")

	// Async writer buffers; Close flushes
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
