// Package marketdata loads historical closes and turns them into returns
// for the risk engine.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DailyClose is a single closing price
type DailyClose struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// RecentCloses returns the last n closes for an asset, oldest first
func (h *HistoryDB) RecentCloses(ctx context.Context, asset string, n int) ([]DailyClose, error) {
	if n <= 0 {
		return []DailyClose{}, nil
	}

	// Newest n, flipped back to ascending
	query := `
		SELECT date, close FROM (
			SELECT date, close
			FROM daily_prices
			WHERE asset = ?
			ORDER BY date DESC
			LIMIT ?
		) ORDER BY date ASC
	`

	rows, err := h.db.QueryContext(ctx, query, asset, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent closes: %w", err)
	}
	return scanCloses(rows)
}

// ClosesAfter returns every close strictly after the given date, oldest first
func (h *HistoryDB) ClosesAfter(ctx context.Context, asset string, after time.Time) ([]DailyClose, error) {
	query := `
		SELECT date, close
		FROM daily_prices
		WHERE asset = ? AND date > ?
		ORDER BY date ASC
	`

	rows, err := h.db.QueryContext(ctx, query, asset, after.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query closes after %s: %w", after.Format("2006-01-02"), err)
	}
	return scanCloses(rows)
}

func scanCloses(rows *sql.Rows) ([]DailyClose, error) {
	defer rows.Close()

	closes := []DailyClose{}
	for rows.Next() {
		var dateUnix int64
		var c DailyClose
		if err := rows.Scan(&dateUnix, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily close: %w", err)
		}
		c.Date = time.Unix(dateUnix, 0).UTC()
		closes = append(closes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily closes: %w", err)
	}
	return closes, nil
}
