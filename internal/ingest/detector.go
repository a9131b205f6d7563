package ingest

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/quantpipe/tickfeed/internal/bus"
	"github.com/quantpipe/tickfeed/internal/model"
)

// JumpDetector flags ticks whose price moved more than a configured
// fraction from the previous observed price for the same ticker. It
// runs synchronously on the ingest path, so Observe does only map
// bookkeeping and a non-blocking bus publish.
type JumpDetector struct {
	threshold float64 // fractional move, e.g. 0.05 = 5%
	bus       *bus.Bus
	logger    *slog.Logger

	mu   sync.Mutex
	last map[string]float64
}

// NewJumpDetector creates a detector publishing alerts on b. A
// threshold <= 0 disables alerting (Observe still tracks prices).
func NewJumpDetector(threshold float64, b *bus.Bus, logger *slog.Logger) *JumpDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &JumpDetector{
		threshold: threshold,
		bus:       b,
		logger:    logger,
		last:      make(map[string]float64),
	}
}

// Observe records the tick's price and publishes a detector.alert event
// when the move from the previous price exceeds the threshold.
func (d *JumpDetector) Observe(t model.Tick) {
	if t.Price <= 0 {
		return
	}

	d.mu.Lock()
	prev, seen := d.last[t.Ticker]
	d.last[t.Ticker] = t.Price
	d.mu.Unlock()

	if !seen || d.threshold <= 0 || prev <= 0 {
		return
	}

	move := (t.Price - prev) / prev
	if move < 0 {
		move = -move
	}
	if move < d.threshold {
		return
	}

	d.logger.Warn("price jump detected",
		"ticker", t.Ticker,
		"prev", prev,
		"price", t.Price,
		"move", move)

	if d.bus != nil {
		d.bus.Publish(bus.Event{
			Topic:     bus.TopicDetectorAlert,
			Ticker:    t.Ticker,
			Timestamp: t.Timestamp,
			Fields: map[string]string{
				"prev_price": strconv.FormatFloat(prev, 'f', -1, 64),
				"price":      strconv.FormatFloat(t.Price, 'f', -1, 64),
				"move":       strconv.FormatFloat(move, 'f', 4, 64),
			},
		})
	}
}

// Reset clears all tracked prices, for use after long disconnects
// where the previous price is no longer meaningful.
func (d *JumpDetector) Reset() {
	d.mu.Lock()
	d.last = make(map[string]float64)
	d.mu.Unlock()
}

var _ Detector = (*JumpDetector)(nil)
