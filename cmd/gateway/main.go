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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/api"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/notify"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/server"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/upstream"
	"github.com/shubham-shewale/stock-tracker/pkg/config"
	"github.com/shubham-shewale/stock-tracker/pkg/kafkautil"
	"github.com/shubham-shewale/stock-tracker/pkg/models"
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

	if err := cfg.Upstream.Validate(); err != nil {
		logger.Fatal("Upstream is not configured", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Sessions still work; only persistence is lost.
		logger.Warn("Redis unreachable, saved state will not load", zap.Error(err))
	}
	store := repository.NewRedisStore(rdb)
	defer store.Close()

	registryOpts := []hub.RegistryOption{hub.WithMaxPerConnection(cfg.Stream.MaxPerConnection)}
	if cfg.Kafka.Enabled {
		if err := kafkautil.NewDefaultTopicCreator(logger).Ensure(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			logger.Warn("Alert topic not confirmed", zap.Error(err))
		}
		publisher := notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger), logger)
		defer publisher.Close()
		registryOpts = append(registryOpts, hub.WithPublisher(publisher))
	}

	fetcher := upstream.NewFromConfig(cfg.Upstream, logger)
	registry := hub.NewRegistry(fetcher, logger, registryOpts...)

	validTickers := make(map[string]bool)
	for _, t := range cfg.Gateway.ValidTickers {
		if sym, err := models.NormalizeSymbol(t); err == nil {
			validTickers[sym] = true
		}
	}
	wsHub := hub.NewHub(registry, store, logger, cfg.Stream.PollInterval, validTickers)

	mux := server.NewMux(wsHub, api.NewHandler(fetcher, store, logger), logger, cfg.Gateway.SendBuffer)
	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.Duration("poll_interval", cfg.Stream.PollInterval))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		registry.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Gateway stopped with error", zap.Error(err))
	}
	logger.Info("Shutdown Complete")
}
