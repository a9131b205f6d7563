package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantpipe/tickfeed/internal/model"
)

// BarReader is the slice of the bar store the analyzer needs.
type BarReader interface {
	BarsSince(ctx context.Context, ticker string, since int64) ([]model.Bar, error)
}

// MomentumAnalyzer flags bars whose close crosses the simple moving
// average of the lookback window. It is intentionally simple: the
// scheduler treats the analyzer as opaque, and this one exists so the
// pipeline has a real downstream to drive.
type MomentumAnalyzer struct {
	reader   BarReader
	lookback int64 // window in ms walked back from the triggering bar
	window   int   // SMA length in bars
	logger   *slog.Logger
}

// NewMomentumAnalyzer creates an analyzer reading bars from reader.
// lookbackMs <= 0 defaults to 30 minutes; window < 2 defaults to 20.
func NewMomentumAnalyzer(reader BarReader, lookbackMs int64, window int, logger *slog.Logger) *MomentumAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if lookbackMs <= 0 {
		lookbackMs = 30 * 60 * 1000
	}
	if window < 2 {
		window = 20
	}
	return &MomentumAnalyzer{
		reader:   reader,
		lookback: lookbackMs,
		window:   window,
		logger:   logger,
	}
}

// Analyze recomputes signals for ticker over the lookback window ending
// at ts. A signal is a close crossing its SMA between consecutive bars.
func (a *MomentumAnalyzer) Analyze(ctx context.Context, ticker string, ts int64) (Result, error) {
	bars, err := a.reader.BarsSince(ctx, ticker, ts-a.lookback)
	if err != nil {
		return Result{}, fmt.Errorf("load bars for %s: %w", ticker, err)
	}
	res := Result{BarsExamined: len(bars)}
	if len(bars) <= a.window {
		return res, nil
	}

	var prevAbove bool
	for i := a.window; i < len(bars); i++ {
		var sum float64
		for _, b := range bars[i-a.window : i] {
			sum += b.Close
		}
		sma := sum / float64(a.window)
		above := bars[i].Close > sma
		if i > a.window && above != prevAbove {
			res.SignalsFound++
		}
		prevAbove = above
	}

	if res.SignalsFound > 0 {
		a.logger.Debug("momentum signals",
			"ticker", ticker,
			"bars", res.BarsExamined,
			"signals", res.SignalsFound)
	}
	return res, nil
}

var _ Analyzer = (*MomentumAnalyzer)(nil)
