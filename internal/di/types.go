/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived component. The risk engine is owned
 * here and handed to the HTTP handlers, the ingestion job and the price feed.
 */
package di

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/varisk/internal/clients/pricefeed"
	"github.com/aristath/varisk/internal/database"
	"github.com/aristath/varisk/internal/modules/marketdata"
	"github.com/aristath/varisk/internal/modules/risk"
	riskhandlers "github.com/aristath/varisk/internal/modules/risk/handlers"
	"github.com/aristath/varisk/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Metrics registry shared by the engine and the HTTP layer
	Registry *prometheus.Registry

	// Databases (nil when ingestion is disabled)
	HistoryDB *database.DB

	// Core
	RiskEngine  *risk.Engine
	RiskHandler *riskhandlers.Handler

	// Collaborators
	HistoryReader *marketdata.HistoryDB
	Ingestor      *marketdata.Ingestor
	PriceFeed     *pricefeed.Client // nil when no feed is configured
	Scheduler     *scheduler.Scheduler
}
