package pool

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quantpipe/tickfeed/internal/feed"
	"github.com/quantpipe/tickfeed/internal/model"
	"github.com/quantpipe/tickfeed/internal/universe"
)

// Manager fans ticker subscriptions across a fixed pool of feed
// clients behind a single-client-shaped facade.
type Manager struct {
	cfg      Config
	resolver universe.Resolver
	logger   *slog.Logger

	// newClient is swapped by tests to inject fakes.
	newClient func(feed.ClientConfig, *slog.Logger) feed.Client

	mu         sync.Mutex
	conns      map[int]*connInfo
	assignment map[string]int // ticker → connection ID
	totalTicks int64
	totalErrs  int64
	started    bool
}

// connInfo is the per-connection state, mutated only under Manager.mu.
type connInfo struct {
	id      int
	name    string
	status  feed.ConnStatus
	client  feed.Client
	tickers map[string]struct{}
	msgs    int64
	errs    int64
	lastMsg time.Time
}

// NewManager creates a pool manager. The resolver is used once per
// enabled slot at Connect time to turn universe keys into tickers.
func NewManager(cfg Config, resolver universe.Resolver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:        cfg,
		resolver:   resolver,
		logger:     logger,
		newClient:  feed.NewClient,
		conns:      map[int]*connInfo{},
		assignment: map[string]int{},
	}
}

// Connect creates and connects one client per enabled slot and
// subscribes each successful client to its assigned tickers.
// Best-effort: nil iff at least one connection succeeds.
func (m *Manager) Connect(ctx context.Context) error {
	connected := 0

	for i, slot := range m.cfg.Slots {
		if !slot.Enabled {
			continue
		}
		id := i + 1
		tickers := m.resolveSlot(ctx, slot)

		conn := &connInfo{
			id:      id,
			name:    slot.Name,
			status:  feed.StatusDisconnected,
			tickers: map[string]struct{}{},
		}

		clientCfg := m.cfg.Client
		clientCfg.OnTick = func(t model.Tick) { m.handleTick(id, t) }
		clientCfg.OnStatus = func(s feed.StatusUpdate) { m.handleStatus(id, s) }
		conn.client = m.newClient(clientCfg, m.logger.With("conn_id", id, "slot", slot.Name))

		m.mu.Lock()
		m.conns[id] = conn
		m.started = true
		m.mu.Unlock()

		if err := conn.client.Connect(ctx); err != nil {
			m.logger.Warn("slot failed to connect",
				"conn_id", id,
				"slot", slot.Name,
				"error", err,
			)
			m.mu.Lock()
			// An auth rejection already landed here as a StatusError
			// callback and was counted by handleStatus; only count
			// failures that produced no status event (dial errors,
			// ack timeouts).
			if conn.status != feed.StatusError {
				conn.status = feed.StatusError
				conn.errs++
				m.totalErrs++
			}
			m.mu.Unlock()
			continue
		}
		connected++

		if len(tickers) > 0 {
			if err := conn.client.Subscribe(tickers); err != nil {
				m.logger.Warn("initial subscribe failed",
					"conn_id", id,
					"tickers", len(tickers),
					"error", err,
				)
			}
			m.mu.Lock()
			for _, t := range tickers {
				m.assignment[t] = id
				conn.tickers[t] = struct{}{}
			}
			m.mu.Unlock()
		}

		m.logger.Info("slot connected",
			"conn_id", id,
			"slot", slot.Name,
			"tickers", len(tickers),
		)
	}

	if connected == 0 {
		return ErrNoConnections
	}
	return nil
}

// resolveSlot turns a slot's universe keys or explicit symbol list
// into its ticker set. Universe failure falls back to the explicit
// list, then to an empty set with a warning; an empty slot stays
// configured.
func (m *Manager) resolveSlot(ctx context.Context, slot Slot) []string {
	if slot.Universes != "" {
		tickers, err := universe.ResolveKey(ctx, m.resolver, slot.Universes)
		if err == nil && len(tickers) > 0 {
			return tickers
		}
		if err != nil {
			m.logger.Warn("universe resolution failed, falling back to explicit list",
				"slot", slot.Name,
				"universes", slot.Universes,
				"error", err,
			)
		} else {
			m.logger.Warn("universe resolved to zero symbols",
				"slot", slot.Name,
				"universes", slot.Universes,
			)
		}
	}

	tickers := splitSymbols(slot.Symbols)
	if len(tickers) == 0 {
		m.logger.Warn("slot has no tickers", "slot", slot.Name)
	}
	return tickers
}

func splitSymbols(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Disconnect closes every client in the pool.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	clients := make([]feed.Client, 0, len(m.conns))
	for _, c := range m.conns {
		clients = append(clients, c.client)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.Disconnect()
	}
	m.logger.Info("pool disconnected", "connections", len(clients))
}

// Subscribe routes new tickers to the first currently connected
// client and records their assignment. Tickers already assigned are
// skipped, preserving the one-connection-per-ticker invariant.
func (m *Manager) Subscribe(tickers []string) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	fresh := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := m.assignment[t]; !ok {
			fresh = append(fresh, t)
		}
	}
	target := m.firstConnectedLocked()
	m.mu.Unlock()

	if target == nil {
		return ErrNoConnections
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := target.client.Subscribe(fresh); err != nil {
		return err
	}

	m.mu.Lock()
	for _, t := range fresh {
		m.assignment[t] = target.id
		target.tickers[t] = struct{}{}
	}
	m.mu.Unlock()
	return nil
}

// Unsubscribe forwards each ticker to its owning connection; unknown
// tickers are skipped.
func (m *Manager) Unsubscribe(tickers []string) error {
	m.mu.Lock()
	byConn := map[int][]string{}
	for _, t := range tickers {
		id, ok := m.assignment[t]
		if !ok {
			continue
		}
		byConn[id] = append(byConn[id], t)
	}
	m.mu.Unlock()

	var firstErr error
	for id, group := range byConn {
		m.mu.Lock()
		conn := m.conns[id]
		m.mu.Unlock()
		if conn == nil {
			continue
		}

		if err := conn.client.Unsubscribe(group); err != nil && firstErr == nil {
			firstErr = err
		}

		m.mu.Lock()
		for _, t := range group {
			delete(m.assignment, t)
			delete(conn.tickers, t)
		}
		m.mu.Unlock()
	}
	return firstErr
}

// TickerAssignment returns the connection ID owning a ticker.
func (m *Manager) TickerAssignment(ticker string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.assignment[ticker]
	return id, ok
}

// HealthStatus returns aggregate counters and a per-connection
// breakdown.
func (m *Manager) HealthStatus() HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	hs := HealthStatus{
		TotalConnections: len(m.conns),
		TotalTicks:       m.totalTicks,
		TotalErrors:      m.totalErrs,
	}

	ids := make([]int, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		c := m.conns[id]
		if c.client.IsConnected() {
			hs.ConnectedCount++
		}
		hs.Connections = append(hs.Connections, ConnectionInfo{
			ID:              c.id,
			Name:            c.name,
			Status:          c.status,
			AssignedTickers: len(c.tickers),
			ConfirmedCount:  c.client.Confirmed(),
			MessageCount:    c.msgs,
			ErrorCount:      c.errs,
			LastMessageTime: c.lastMsg,
		})
	}
	return hs
}

// firstConnectedLocked returns the lowest-ID connected connection.
// Caller holds m.mu.
func (m *Manager) firstConnectedLocked() *connInfo {
	ids := make([]int, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if m.conns[id].client.IsConnected() {
			return m.conns[id]
		}
	}
	return nil
}

// handleTick updates counters under the lock, then invokes the user
// callback outside it.
func (m *Manager) handleTick(connID int, tick model.Tick) {
	m.mu.Lock()
	if c := m.conns[connID]; c != nil {
		c.msgs++
		c.lastMsg = time.Now()
	}
	m.totalTicks++
	cb := m.cfg.OnTick
	m.mu.Unlock()

	if cb != nil {
		cb(tick)
	}
}

// handleStatus tracks per-connection status, then forwards.
func (m *Manager) handleStatus(connID int, s feed.StatusUpdate) {
	m.mu.Lock()
	if c := m.conns[connID]; c != nil {
		c.status = s.Status
		if s.Status == feed.StatusError {
			c.errs++
			m.totalErrs++
		}
	}
	cb := m.cfg.OnStatus
	m.mu.Unlock()

	if cb != nil {
		cb(connID, s)
	}
}
