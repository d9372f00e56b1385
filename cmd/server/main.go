package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/divvy/internal/clients/stockinfo"
	"github.com/aristath/divvy/internal/clients/trading212"
	"github.com/aristath/divvy/internal/config"
	"github.com/aristath/divvy/internal/database"
	"github.com/aristath/divvy/internal/modules/analytics"
	"github.com/aristath/divvy/internal/modules/payouts"
	"github.com/aristath/divvy/internal/modules/settings"
	"github.com/aristath/divvy/internal/modules/snapshots"
	"github.com/aristath/divvy/internal/scheduler"
	"github.com/aristath/divvy/internal/server"
	"github.com/aristath/divvy/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:  getLogLevel(),
		Pretty: true,
	})

	log.Info().Msg("Starting Divvy")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Open the three databases
	configDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("config"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open config database")
	}
	defer configDB.Close()

	ledgerDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("ledger"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("cache"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	// Repositories and migrations
	settingsRepo := settings.NewRepository(configDB.Conn(), log)
	if err := settingsRepo.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate settings")
	}

	payoutRepo := payouts.NewRepository(ledgerDB.Conn(), log)
	if err := payoutRepo.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate payout history")
	}

	snapshotStore := snapshots.NewStore(cacheDB.Conn(), log)
	if err := snapshotStore.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate snapshot store")
	}

	// Stored settings override environment fallbacks
	if err := cfg.UpdateFromSettings(settingsRepo); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply stored settings")
	}

	settingsService := settings.NewService(settingsRepo, cfg.T212APIKey, cfg.T212Mode, log)

	// Snapshot cache, warm-started from the last persisted snapshot
	snapshotCache := snapshots.NewCache()
	if snap, err := snapshotStore.Load(); err != nil {
		log.Warn().Err(err).Msg("Failed to load stored snapshot")
	} else if snap != nil {
		snapshotCache.Publish(snap)
		log.Info().Time("generated_at", snap.GeneratedAt).Msg("Warm-started from stored snapshot")
	}

	// Clients
	broker := trading212.NewBrokerAdapter(log)
	forecasts := stockinfo.NewClient(cfg.StockInfoBin, cfg.StockInfoPath, log)

	// Refresh cycle
	calculator := analytics.NewCalculator(log)
	publisher := snapshots.NewPublisher(snapshotCache, snapshotStore)
	refreshJob := scheduler.NewRefreshJob(
		settingsService,
		broker,
		forecasts,
		payoutRepo,
		calculator,
		publisher,
		log,
	)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	refreshJob.StartWorker(workerCtx)

	// The job checks the configured interval itself on every tick, so
	// interval changes in settings apply without re-registering.
	sched := scheduler.New(log)
	if err := sched.AddJob("0 * * * * *", refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register refresh job")
	}
	sched.Start()
	defer sched.Stop()

	// First refresh without waiting for the first tick
	refreshJob.TriggerNow()

	// HTTP server
	handlers := server.NewHandlers(snapshotCache, refreshJob, settingsService, log)
	srv := server.New(server.Config{
		Port:           cfg.Port,
		Log:            log,
		Handlers:       handlers,
		System:         server.NewSystemHandlers(log),
		AllowedOrigins: cfg.AllowedOrigins,
		DevMode:        cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func getLogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}
