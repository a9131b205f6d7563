package model

import "time"

// EventKind identifies the kind of market event carried by a Tick.
type EventKind string

const (
	KindAggregate EventKind = "aggregate"
	KindTrade     EventKind = "trade"
	KindQuote     EventKind = "quote"
)

// MarketStatus is the exchange session state attached to a tick.
type MarketStatus string

const (
	MarketOpen     MarketStatus = "open"
	MarketClosed   MarketStatus = "closed"
	MarketExtended MarketStatus = "extended"
	MarketUnknown  MarketStatus = "unknown"
)

// Tick is one normalized market event from the upstream feed.
// Immutable once constructed; the receiving callback owns it until it
// is handed to the ingestion pipeline.
type Tick struct {
	Ticker    string    // Symbol (e.g. "AAPL")
	Kind      EventKind // aggregate, trade, or quote
	Price     float64   // Close for aggregates, trade price, quote midpoint
	Volume    int64     // Bar volume or trade size (0 for quotes)
	Timestamp int64     // Event timestamp (ms since epoch)

	// Aggregate fields (Kind == KindAggregate)
	Open  float64
	High  float64
	Low   float64
	Close float64
	VWAP  float64

	// Quote fields (Kind == KindQuote)
	Bid float64
	Ask float64

	Market MarketStatus
}

// Time returns the event timestamp as a time.Time.
func (t Tick) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// Bar is one OHLCV row as persisted to the time-series store.
// (ticker, Timestamp) is the natural key; writes are upserts.
type Bar struct {
	Ticker     string
	Timestamp  int64 // Bar start (ms since epoch)
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	VWAP       float64
	ReceivedAt int64 // Gatherer receive timestamp (µs since epoch)
}

// BarFromTick builds the persistable bar for an aggregate tick.
// Returns false for non-aggregate kinds.
func BarFromTick(t Tick, receivedAt time.Time) (Bar, bool) {
	if t.Kind != KindAggregate {
		return Bar{}, false
	}
	return Bar{
		Ticker:     t.Ticker,
		Timestamp:  t.Timestamp,
		Open:       t.Open,
		High:       t.High,
		Low:        t.Low,
		Close:      t.Close,
		Volume:     t.Volume,
		VWAP:       t.VWAP,
		ReceivedAt: receivedAt.UnixMicro(),
	}, true
}
