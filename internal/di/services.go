package di

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/aristath/varisk/internal/clients/pricefeed"
	"github.com/aristath/varisk/internal/config"
	"github.com/aristath/varisk/internal/modules/marketdata"
	"github.com/aristath/varisk/internal/modules/risk"
	riskhandlers "github.com/aristath/varisk/internal/modules/risk/handlers"
)

// InitializeServices builds the engine and everything that talks to it
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Registry = registry

	engine, err := risk.NewEngine(risk.Config{
		Trials:             cfg.Risk.Trials,
		HistoryCap:         cfg.Risk.HistoryCap,
		FallbackVolatility: cfg.Risk.FallbackVolatility,
	}, risk.NewMetrics(registry), log)
	if err != nil {
		return fmt.Errorf("failed to create risk engine: %w", err)
	}
	container.RiskEngine = engine
	container.RiskHandler = riskhandlers.NewHandler(engine, cfg.Risk.LockTimeout, log)

	if container.HistoryDB != nil {
		container.HistoryReader = marketdata.NewHistoryDB(container.HistoryDB.Conn(), log)
		container.Ingestor = marketdata.NewIngestor(container.HistoryReader, engine, marketdata.IngestorConfig{
			Assets:   cfg.Ingest.Assets,
			Lookback: cfg.Risk.HistoryCap,
		}, log)
	}

	if cfg.PriceFeedURL != "" {
		container.PriceFeed = pricefeed.New(cfg.PriceFeedURL, engine, log)
	}

	log.Info().
		Int("trials", cfg.Risk.Trials).
		Int("history_cap", cfg.Risk.HistoryCap).
		Bool("ingestion", container.Ingestor != nil).
		Bool("price_feed", container.PriceFeed != nil).
		Msg("Services initialized")

	return nil
}
