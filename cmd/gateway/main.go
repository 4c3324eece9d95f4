package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/api"
	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-ratio/internal/chart"
	"github.com/shubham-shewale/stock-ratio/internal/ratio"
	"github.com/shubham-shewale/stock-ratio/pkg/config"
)

// ratioTopic is the feed the processor publishes rows on
const ratioTopic = "ratio"

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

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Bounds come from the same constructor the processor uses
	gen, err := ratio.NewGenerator(cfg.Ratio.InstrumentA, cfg.Ratio.InstrumentB, cfg.Ratio.Delta)
	if err != nil {
		logger.Fatal("Invalid ratio config", zap.Error(err))
	}
	upper, lower := gen.Bounds()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	repo := repository.NewRedisStore(rdb)

	wsHub := hub.NewHub(repo, logger, cfg.Gateway.ValidTopics)

	table := chart.NewTable(cfg.Gateway.TableMaxRows)
	if err := wsHub.Watch(ratioTopic, func(payload string) {
		if err := table.IngestJSON([]byte(payload)); err != nil {
			logger.Warn("Dropping malformed row", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("Failed to watch ratio feed", zap.Error(err))
	}

	handler := api.NewHandler(wsHub, table, api.Bounds{
		InstrumentA: cfg.Ratio.InstrumentA,
		InstrumentB: cfg.Ratio.InstrumentB,
		UpperBound:  upper,
		LowerBound:  lower,
	}, logger)

	srv := &http.Server{Addr: cfg.App.Port, Handler: api.NewRouter(handler)}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if err := wsHub.Shutdown(); err != nil {
		logger.Error("Hub shutdown error", zap.Error(err))
	}
	logger.Info("Shutdown Complete")
}
