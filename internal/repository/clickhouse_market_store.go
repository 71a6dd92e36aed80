package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"LiqMap/internal/domain/models"
	domrepo "LiqMap/internal/domain/repository"
	pkgch "LiqMap/pkg/clickhouse"
	applogger "LiqMap/pkg/logger"
)

// CHMarketStore implements MarketDataStore backed by ClickHouse. Candle and
// open-interest tables are populated by an external ingestion service.
type CHMarketStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHMarketStore(ch *pkgch.Client) *CHMarketStore {
	return &CHMarketStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHMarketStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHMarketStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	table, err := candleTableForTF(tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	q := fmt.Sprintf(qtpl, table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_candles query error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_candles rows error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse get_candles ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHMarketStore) GetOpenInterest(ctx context.Context, symbol string, from, to time.Time) ([]models.OpenInterestSample, error) {
	start := time.Now()
	const q = `
        SELECT ts, symbol, value, delta
        FROM liqmap.open_interest
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_open_interest query error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get open interest: %w", err)
	}
	defer rows.Close()

	out := make([]models.OpenInterestSample, 0, 1024)
	for rows.Next() {
		var oi models.OpenInterestSample
		if err := rows.Scan(&oi.Timestamp, &oi.Symbol, &oi.Value, &oi.Delta); err != nil {
			return nil, fmt.Errorf("scan open interest: %w", err)
		}
		out = append(out, oi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse get_open_interest ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func candleTableForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1m:
		return "liqmap.candles_1m", nil
	case domrepo.TF5m:
		return "liqmap.candles_5m", nil
	case domrepo.TF15m:
		return "liqmap.candles_15m", nil
	case domrepo.TF1h:
		return "liqmap.candles_1h", nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}
