package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savegress/spendcast/internal/anomaly"
	"github.com/savegress/spendcast/internal/api"
	"github.com/savegress/spendcast/internal/config"
	"github.com/savegress/spendcast/internal/forecast"
	"github.com/savegress/spendcast/internal/history"
	"github.com/savegress/spendcast/internal/insights"
	"github.com/savegress/spendcast/internal/logger"
	"github.com/savegress/spendcast/internal/prediction"
	"github.com/savegress/spendcast/internal/store"
	"github.com/savegress/spendcast/internal/trend"
)

func main() {
	cfg := loadConfig()
	log := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)

	log.Info().Str("environment", cfg.Server.Environment).Msg("starting spendcast")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pick the transaction store: postgres when a URL is configured,
	// in-memory otherwise.
	var txnStore store.TransactionStore
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pg.Close()
		txnStore = pg
		log.Info().Msg("using postgres transaction store")
	} else {
		txnStore = store.NewMemoryStore()
		log.Warn().Msg("no database configured, using in-memory transaction store")
	}

	loader := history.NewLoader(txnStore)

	predictionEngine := prediction.NewEngine(loader, cfg.Prediction, log)
	anomalyDetector := anomaly.NewDetector(loader, cfg.Anomaly, log)
	trendEngine := trend.NewEngine(loader, cfg.Trend, log)
	forecastEngine := forecast.NewEngine(loader, cfg.Forecast, log)
	aggregator := insights.NewAggregator(predictionEngine, anomalyDetector, trendEngine, forecastEngine, log)

	server := api.NewServer(cfg, predictionEngine, anomalyDetector, trendEngine, forecastEngine, aggregator)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("spendcast API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down spendcast")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("spendcast stopped")
}

func loadConfig() *config.Config {
	configPath := os.Getenv("SPENDCAST_CONFIG")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err == nil {
			return cfg
		}
		fmt.Fprintf(os.Stderr, "failed to load config from %s: %v, using env defaults\n", configPath, err)
	}
	return config.LoadFromEnv()
}
