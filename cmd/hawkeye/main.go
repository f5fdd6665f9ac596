package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homiewrecker/hawkeye/internal/api"
	"github.com/homiewrecker/hawkeye/internal/config"
	"github.com/homiewrecker/hawkeye/internal/history"
	"github.com/homiewrecker/hawkeye/internal/logger"
	"github.com/homiewrecker/hawkeye/internal/models"
	"github.com/homiewrecker/hawkeye/internal/scout"
	"github.com/homiewrecker/hawkeye/internal/storage"
	"github.com/homiewrecker/hawkeye/internal/telegram"
	"github.com/homiewrecker/hawkeye/internal/torn"
	"github.com/homiewrecker/hawkeye/internal/watch"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath, cfg.Storage.MaxAttacks)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	client := torn.NewClient(
		cfg.Torn.APIURL,
		cfg.Torn.PageURL,
		cfg.Torn.APIKey,
		cfg.Torn.Timeout,
		torn.ClientConfig{
			MaxRetries:     cfg.Torn.MaxRetries,
			RetryDelayBase: cfg.Torn.RetryDelayBase,
		},
	)
	if !client.HasKey() {
		logger.Warn("No Torn API key configured; history refresh will fail until one is set")
	}

	ledger := history.New(store, client, cfg.Torn.LookbackDays, cfg.Torn.HistoryTTL)
	watchlist := watch.New(store)

	engine := scout.NewEngine(store, client, ledger, watchlist, scout.Config{
		HalfLifeDays:       cfg.Model.HalfLifeDays,
		MinPersonalSamples: cfg.Model.MinPersonalSamples,
		JuicyThreshold:     cfg.Score.JuicyThreshold,
		MaybeThreshold:     cfg.Score.MaybeThreshold,
		ChainMode:          cfg.Score.ChainMode,
		EnableStatus:       cfg.Signals.EnableStatus,
		EnableBazaar:       cfg.Signals.EnableBazaar,
		ProfileTTL:         cfg.Signals.ProfileTTL,
		BazaarTTL:          cfg.Signals.BazaarTTL,
		BazaarMinPrice:     cfg.Signals.BazaarMinPrice,
		BazaarMaxPrice:     cfg.Signals.BazaarMaxPrice,
		BazaarTopN:         cfg.Signals.BazaarTopN,
	})

	var notifier *telegram.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewNotifier(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			store,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			cfg.Telegram.NotifyCooldown,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram notifier: %v", err)
		}
		logger.Info("Telegram notifier initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &api.Handler{Engine: engine, History: ledger, Watch: watchlist}
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		logger.Info("HTTP API listening on %s", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed: %v", err)
		}
		cancel()
	}()

	if !cfg.Patrol.Enabled {
		logger.Info("Watchlist patrol disabled; serving API only")
		<-ctx.Done()
		logger.Info("Service stopped")
		return
	}

	logger.Info("Starting watchlist patrol (interval: %v, juicy_threshold: %d)",
		cfg.Patrol.Interval, cfg.Score.JuicyThreshold)

	ticker := time.NewTicker(cfg.Patrol.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handlePatrolResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Patrol cycle failed: %v", err)
			if consecutiveFailures == 1 && notifier != nil {
				if sendErr := notifier.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && notifier != nil {
				if sendErr := notifier.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial patrol cycle")
	handlePatrolResult(runPatrolCycle(ctx, engine, watchlist, notifier))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled patrol cycle")
			handlePatrolResult(runPatrolCycle(ctx, engine, watchlist, notifier))
		}
	}
}

// runPatrolCycle scores every watched target and pushes notifications for
// the ones that land in the juicy band.
func runPatrolCycle(ctx context.Context, engine *scout.Engine, watchlist *watch.List, notifier *telegram.Notifier) error {
	startTime := time.Now()
	logger.Info("Starting patrol cycle")

	ids, err := watchlist.All()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logger.Debug("Watchlist empty, nothing to patrol")
		return nil
	}

	results, err := engine.ScoreRoster(ctx, ids)
	if err != nil {
		return err
	}

	juicy := 0
	for _, res := range results {
		if res.Verdict.Band != models.BandJuicy {
			continue
		}
		juicy++
		if notifier == nil {
			continue
		}
		sent, err := notifier.NotifyJuicy(res)
		if err != nil {
			logger.Warn("Failed to notify about target %s: %v", res.Verdict.TargetID, err)
		} else if sent {
			logger.Info("Notified about juicy target %s (score %d)", res.Verdict.TargetID, res.Verdict.Score)
		}
	}

	logger.Info("Patrol cycle completed in %v: %d targets scored, %d juicy",
		time.Since(startTime), len(results), juicy)
	return nil
}
