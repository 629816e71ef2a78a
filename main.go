package main

import (
	"context"
	"os"

	"realtor-scraper/config"
	"realtor-scraper/notify"
	"realtor-scraper/scraper/realtor"
	"realtor-scraper/services"
	"realtor-scraper/storage"
	"realtor-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("=== Realtor Listing Scraper starting ===")
	logger.Info("Config — state: %s | counties: %d | lookback: %dd | concurrency: %d | rps: %.1f | dry-run: %v",
		cfg.StateCode, len(cfg.Counties), cfg.DaysOld, cfg.MaxConcurrency, cfg.RequestRPS, cfg.DryRun)

	var (
		store  storage.ListingStore
		agents storage.AgentCache
	)
	if cfg.DryRun {
		mem := storage.NewMemory()
		store, agents = mem, mem
		logger.Warn("Dry run: listings go to an in-memory store and are discarded on exit")
	} else {
		pg, err := storage.NewPostgres(cfg.DSN(), logger)
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			os.Exit(1)
		}
		store, agents = pg, pg
	}
	defer store.Close()

	client := realtor.New(cfg.BaseURL, cfg.RequestRPS, logger)
	notifier := notify.NewLogNotifier(logger)
	pipeline := services.NewPipeline(cfg, client, store, agents, notifier, logger)

	ctx := context.Background()
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	stats, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("Run %s failed after %s: %v", stats.RunID, stats.Duration(), err)
		os.Exit(1)
	}

	logger.Info("Run %s finished in %s", stats.RunID, stats.Duration())
}
