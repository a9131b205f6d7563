package pool

import (
	"errors"
	"time"

	"github.com/quantpipe/tickfeed/internal/feed"
	"github.com/quantpipe/tickfeed/internal/model"
)

// Errors
var (
	ErrNoConnections = errors.New("no connections available")
	ErrNotStarted    = errors.New("pool not started")
)

// Slot describes one configured connection slot.
type Slot struct {
	Enabled   bool
	Name      string
	Universes string // Colon-joined universe keys, e.g. "sp500:nasdaq100"
	Symbols   string // Comma-separated explicit list; fallback when universes fail
}

// Config configures the pool manager.
type Config struct {
	Client feed.ClientConfig // Template for every client; callbacks are overwritten
	Slots  []Slot

	// OnTick receives the aggregated tick stream from all connections.
	OnTick func(model.Tick)

	// OnStatus receives per-connection status changes, advisory.
	OnStatus func(connID int, s feed.StatusUpdate)
}

// ConnectionInfo is a read-only snapshot of one connection's state.
type ConnectionInfo struct {
	ID              int
	Name            string
	Status          feed.ConnStatus
	AssignedTickers int
	ConfirmedCount  int
	MessageCount    int64
	ErrorCount      int64
	LastMessageTime time.Time
}

// HealthStatus is the aggregate pool health snapshot. Monitoring only,
// never gates correctness.
type HealthStatus struct {
	TotalConnections int
	ConnectedCount   int
	TotalTicks       int64
	TotalErrors      int64
	Connections      []ConnectionInfo
}
