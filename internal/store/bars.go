package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpipe/tickfeed/internal/model"
)

// ErrNoRows is returned by reads that match nothing.
var ErrNoRows = errors.New("no rows")

const upsertBarSQL = `
	INSERT INTO bars (ticker, ts, open, high, low, close, volume, vwap, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (ticker, ts) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		vwap = EXCLUDED.vwap,
		received_at = EXCLUDED.received_at
`

// PGStore persists bars to TimescaleDB.
type PGStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	connected atomic.Bool
}

// NewPGStore creates a bar store over db.
func NewPGStore(db *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PGStore{db: db, logger: logger}
	s.connected.Store(true)
	return s
}

// WriteBar upserts a single bar. Writing the same (ticker, ts) twice
// leaves the table as if it were written once.
func (s *PGStore) WriteBar(ctx context.Context, bar model.Bar) error {
	_, err := s.db.Exec(ctx, upsertBarSQL,
		bar.Ticker, bar.Timestamp,
		bar.Open, bar.High, bar.Low, bar.Close,
		bar.Volume, bar.VWAP, bar.ReceivedAt,
	)
	s.connected.Store(err == nil)
	if err != nil {
		return fmt.Errorf("upsert bar %s@%d: %w", bar.Ticker, bar.Timestamp, err)
	}
	return nil
}

// WriteBars upserts a batch of bars via pgx.Batch and returns the
// number of rows written.
func (s *PGStore) WriteBars(ctx context.Context, bars []model.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	start := time.Now()
	batch := &pgx.Batch{}
	for _, bar := range bars {
		batch.Queue(upsertBarSQL,
			bar.Ticker, bar.Timestamp,
			bar.Open, bar.High, bar.Low, bar.Close,
			bar.Volume, bar.VWAP, bar.ReceivedAt,
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range bars {
		ct, err := results.Exec()
		if err != nil {
			s.connected.Store(false)
			return written, fmt.Errorf("batch upsert bars: %w", err)
		}
		written += int(ct.RowsAffected())
	}
	s.connected.Store(true)

	s.logger.Debug("flushed bars",
		"count", len(bars),
		"duration", time.Since(start),
	)
	return written, nil
}

// LatestBar returns the most recent bar for ticker.
func (s *PGStore) LatestBar(ctx context.Context, ticker string) (model.Bar, error) {
	row := s.db.QueryRow(ctx, `
		SELECT ticker, ts, open, high, low, close, volume, vwap, received_at
		FROM bars
		WHERE ticker = $1
		ORDER BY ts DESC
		LIMIT 1
	`, ticker)

	var bar model.Bar
	err := row.Scan(&bar.Ticker, &bar.Timestamp,
		&bar.Open, &bar.High, &bar.Low, &bar.Close,
		&bar.Volume, &bar.VWAP, &bar.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bar{}, ErrNoRows
	}
	if err != nil {
		return model.Bar{}, fmt.Errorf("latest bar %s: %w", ticker, err)
	}
	return bar, nil
}

// BarsSince returns bars for ticker with ts >= since (ms), ascending.
func (s *PGStore) BarsSince(ctx context.Context, ticker string, since int64) ([]model.Bar, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ticker, ts, open, high, low, close, volume, vwap, received_at
		FROM bars
		WHERE ticker = $1 AND ts >= $2
		ORDER BY ts ASC
	`, ticker, since)
	if err != nil {
		return nil, fmt.Errorf("bars since %s@%d: %w", ticker, since, err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var bar model.Bar
		if err := rows.Scan(&bar.Ticker, &bar.Timestamp,
			&bar.Open, &bar.High, &bar.Low, &bar.Close,
			&bar.Volume, &bar.VWAP, &bar.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bars %s: %w", ticker, err)
	}
	return bars, nil
}

// Connected reports whether the last store operation succeeded.
func (s *PGStore) Connected() bool {
	return s.connected.Load()
}

// Ping verifies database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	err := s.db.Ping(ctx)
	s.connected.Store(err == nil)
	return err
}
