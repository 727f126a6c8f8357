package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/varisk/pkg/formulas"
	"github.com/rs/zerolog"
)

// ReturnSink receives returns in chronological order
type ReturnSink interface {
	AppendReturns(ctx context.Context, asset string, values []float64) (int, error)
}

// CloseSource is the read side of the history database
type CloseSource interface {
	RecentCloses(ctx context.Context, asset string, n int) ([]DailyClose, error)
	ClosesAfter(ctx context.Context, asset string, after time.Time) ([]DailyClose, error)
}

// IngestorConfig configures an Ingestor
type IngestorConfig struct {
	Assets   []string
	Lookback int           // Returns to seed on the first run per asset
	Timeout  time.Duration // Upper bound for a single run
}

type cursor struct {
	date  time.Time
	close float64
}

// Ingestor is a scheduler job that feeds new daily returns into the sink.
// It remembers the last close per asset so repeated runs never append the
// same day twice.
type Ingestor struct {
	source   CloseSource
	sink     ReturnSink
	assets   []string
	lookback int
	timeout  time.Duration

	mu      sync.Mutex
	cursors map[string]cursor
	log     zerolog.Logger
}

// NewIngestor creates a new ingestion job
func NewIngestor(source CloseSource, sink ReturnSink, cfg IngestorConfig, log zerolog.Logger) *Ingestor {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 252
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &Ingestor{
		source:   source,
		sink:     sink,
		assets:   append([]string(nil), cfg.Assets...),
		lookback: cfg.Lookback,
		timeout:  cfg.Timeout,
		cursors:  make(map[string]cursor),
		log:      log.With().Str("job", "ingest_returns").Logger(),
	}
}

// Name returns the job name
func (i *Ingestor) Name() string {
	return "ingest_returns"
}

// Run ingests every configured asset. One failing asset does not stop the others.
func (i *Ingestor) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	return i.RunContext(ctx)
}

// RunContext is Run with a caller supplied context
func (i *Ingestor) RunContext(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var errs []error
	total := 0
	for _, asset := range i.assets {
		n, err := i.ingest(ctx, asset)
		if err != nil {
			i.log.Warn().Err(err).Str("asset", asset).Msg("Failed to ingest returns")
			errs = append(errs, fmt.Errorf("%s: %w", asset, err))
			continue
		}
		total += n
	}

	i.log.Debug().Int("appended", total).Int("assets", len(i.assets)).Msg("Ingestion complete")
	return errors.Join(errs...)
}

func (i *Ingestor) ingest(ctx context.Context, asset string) (int, error) {
	cur, seen := i.cursors[asset]

	var closes []DailyClose
	var err error
	if seen {
		closes, err = i.source.ClosesAfter(ctx, asset, cur.date)
	} else {
		closes, err = i.source.RecentCloses(ctx, asset, i.lookback+1)
	}
	if err != nil {
		return 0, err
	}
	if len(closes) == 0 {
		return 0, nil
	}

	prices := make([]float64, 0, len(closes)+1)
	if seen {
		prices = append(prices, cur.close)
	}
	for _, c := range closes {
		prices = append(prices, c.Close)
	}

	returns := formulas.CalculateReturns(prices)
	if len(returns) > 0 {
		if _, err := i.sink.AppendReturns(ctx, asset, returns); err != nil {
			return 0, err
		}
	}

	last := closes[len(closes)-1]
	i.cursors[asset] = cursor{date: last.Date, close: last.Close}
	return len(returns), nil
}
