package di

import (
	"fmt"

	"github.com/aristath/varisk/internal/config"
	"github.com/aristath/varisk/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the price history database when ingestion is
// configured. It is opened read-only; another process owns the writes.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if !cfg.Ingest.Enabled() {
		log.Info().Msg("HISTORY_DB_PATH not set, return ingestion disabled")
		return container, nil
	}

	historyDB, err := database.New(database.Config{
		Path:    cfg.Ingest.HistoryDBPath,
		Profile: database.ProfileReadOnly,
		Name:    "history",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	log.Info().Str("path", historyDB.Path()).Msg("History database opened")
	return container, nil
}
