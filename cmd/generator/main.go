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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/stock-tracker/cmd/generator/internal/generator"
	"github.com/shubham-shewale/stock-tracker/pkg/config"
)

var basePrices = map[string]float64{
	"AAPL": 150.0, "GOOG": 2800.0, "TSLA": 700.0, "AMZN": 3400.0,
}

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

	prices := make(map[string]float64)
	for _, t := range cfg.Generator.Tickers {
		if p, ok := basePrices[t]; ok {
			prices[t] = p
		}
	}

	gen := generator.NewStockGenerator(logger, prices, generator.NewRealRand(time.Now().UnixNano()), generator.RealClock{})
	srv := &http.Server{
		Addr:    cfg.Generator.Port,
		Handler: generator.NewServer(gen, cfg.Upstream.APIKey, logger).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Generator Started", zap.String("port", cfg.Generator.Port), zap.Strings("tickers", cfg.Generator.Tickers))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Generator stopped with error", zap.Error(err))
	}
	logger.Info("Generator stopped")
}
