package main

import (
	"fmt"
	"os"
	"time"

	"car-deal-finder/config"
	"car-deal-finder/models"
	"car-deal-finder/parser"
	"car-deal-finder/refdata"
	"car-deal-finder/scraper/autotrader"
	"car-deal-finder/services"
	"car-deal-finder/storage"
	"car-deal-finder/utils"
)

func main() {
	cfg := config.Load()
	logger := utils.NewLogger(cfg.LogLevel)

	logger.Info("=== Car Deal Finder starting ===")
	logger.Info("Config — ceiling: $%.0f | horizon: %dy | province: %s | policy: %s | ledger: %s",
		cfg.PriceCeiling, cfg.OwnershipYears, cfg.Province, cfg.ScoringPolicy, cfg.LedgerPath)

	store, err := refdata.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to load reference data: %v", err)
		os.Exit(1)
	}
	logger.Info("Reference data loaded — %d approved vehicles", len(store.Approved()))

	// Collect raw listings from every configured source.
	var listings []*models.Listing

	mp := parser.NewMarketplaceParser(logger)
	mpListings, err := mp.ParseGlob(cfg.MarketplaceGlob)
	if err != nil {
		logger.Error("Marketplace parse failed: %v", err)
	}
	listings = append(listings, mpListings...)

	if cfg.ScrapeAutoTrader {
		atScraper := autotrader.New(cfg, logger)
		atListings, err := atScraper.Scrape()
		if err != nil {
			logger.Error("AutoTrader scrape failed: %v", err)
		}
		listings = append(listings, atListings...)
	}

	logger.Info("Collected %d raw listings", len(listings))

	filter := services.NewFilter(cfg.PriceCeiling, store, logger)
	matches, stats := filter.Apply(listings)

	policy := services.NewScoringPolicy(cfg.ScoringPolicy)
	valuator := services.NewValuator(cfg, store, policy, logger)
	processed, _ := valuator.Process(matches)

	ledger := storage.NewLedger(cfg.LedgerPath, logger)
	existing := ledger.Load()

	fresh := storage.FlattenAll(processed)
	merged := services.MergeLedger(existing, fresh, services.MergeConfig{
		Now:             time.Now(),
		StalenessWindow: time.Duration(cfg.StalenessDays) * 24 * time.Hour,
	}, logger)

	if err := ledger.Persist(merged); err != nil {
		logger.Error("Ledger write failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Ledger saved to %s (%d rows)", cfg.LedgerPath, len(merged))

	if cfg.PostgresMirror {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Warn("PostgreSQL mirror unavailable: %v", err)
		} else {
			defer pgWriter.Close()
			if err := pgWriter.Write(merged); err != nil {
				logger.Warn("PostgreSQL mirror write failed: %v", err)
			} else {
				logger.Info("Ledger mirrored to PostgreSQL (table: deals)")
			}
		}
	}

	reporter := services.NewReporter(logger)
	report := reporter.Generate(len(listings), stats, processed, len(merged))
	reporter.Print(report)

	fmt.Printf("  Done. Ledger → %s\n\n", cfg.LedgerPath)
}
