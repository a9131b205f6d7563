package feed

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single connection to the upstream feed.
type Client interface {
	// Connect dials, authenticates, and starts the read loop. It blocks
	// until the auth ack arrives or AuthTimeout elapses. Idempotent
	// while connected.
	Connect(ctx context.Context) error

	// Disconnect disables auto-reconnect and closes the connection.
	// Safe to call repeatedly; the client is not reusable afterwards.
	Disconnect()

	// Subscribe adds tickers to this connection, skipping ones already
	// held. The local set is updated optimistically; provider acks are
	// advisory.
	Subscribe(tickers []string) error

	// Unsubscribe removes tickers from this connection. Unknown tickers
	// are skipped.
	Unsubscribe(tickers []string) error

	// Subscribed returns the locally tracked ticker set, sorted.
	Subscribed() []string

	// Confirmed returns how many held tickers the provider has
	// acknowledged. Advisory only, never gates correctness.
	Confirmed() int

	// IsConnected reports current connection state.
	IsConnected() bool

	// LastMessageAt returns when the last inbound frame arrived.
	LastMessageAt() time.Time
}

// client implements Client over a gorilla WebSocket connection.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	// Write serialization
	writeMu sync.Mutex

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	attempts   int
	gen        int // connection generation; stale read loops bail out
	subscribed map[string]struct{}
	confirmed  map[string]struct{}
	lastMsg    time.Time
	authCh     chan error

	done chan struct{}
}

// NewClient creates a protocol client. Zero-valued config fields take
// the DefaultClientConfig values.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if len(cfg.Channels) == 0 {
		cfg.Channels = def.Channels
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}

	return &client{
		cfg:        cfg,
		logger:     logger,
		subscribed: make(map[string]struct{}),
		confirmed:  make(map[string]struct{}),
		done:       make(chan struct{}),
	}
}

// Connect establishes the connection and authenticates.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.dial(ctx)
}

// dial opens the socket, sends the auth message, and waits for the ack.
func (c *client) dial(ctx context.Context) error {
	c.emitStatus(StatusConnecting, "dialing "+c.cfg.URL)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	authCh := make(chan error, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.authCh = authCh
	c.lastMsg = time.Now()
	c.mu.Unlock()

	go c.readLoop(conn, gen)

	if err := c.write(conn, controlMessage{Action: "auth", Params: c.cfg.APIKey}); err != nil {
		conn.Close()
		return err
	}

	select {
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	case <-time.After(c.cfg.AuthTimeout):
		conn.Close()
		c.emitStatus(StatusDisconnected, "auth ack timeout")
		return ErrAuthTimeout
	case err := <-authCh:
		if err != nil {
			conn.Close()
			c.emitStatus(StatusError, "auth rejected")
			return err
		}
	}

	c.mu.Lock()
	c.connected = true
	c.attempts = 0
	c.mu.Unlock()

	c.emitStatus(StatusConnected, "authenticated")
	c.logger.Debug("feed connected", "url", c.cfg.URL)
	return nil
}

// Disconnect disables reconnection and closes the socket.
func (c *client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	c.emitStatus(StatusDisconnected, "client closed")
}

// Subscribe adds tickers, deduplicating against the held set.
func (c *client) Subscribe(tickers []string) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	fresh := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := c.subscribed[t]; ok {
			continue
		}
		c.subscribed[t] = struct{}{}
		fresh = append(fresh, t)
	}
	conn := c.conn
	c.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	return c.write(conn, controlMessage{Action: "subscribe", Params: c.subscribeParams(fresh)})
}

// Unsubscribe removes tickers; ones not held are skipped.
func (c *client) Unsubscribe(tickers []string) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	held := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := c.subscribed[t]; !ok {
			continue
		}
		delete(c.subscribed, t)
		delete(c.confirmed, t)
		held = append(held, t)
	}
	conn := c.conn
	c.mu.Unlock()

	if len(held) == 0 {
		return nil
	}
	return c.write(conn, controlMessage{Action: "unsubscribe", Params: c.subscribeParams(held)})
}

// Subscribed returns the held ticker set, sorted.
func (c *client) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscribed))
	for t := range c.subscribed {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastMessageAt returns the arrival time of the last inbound frame.
func (c *client) LastMessageAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMsg
}

// subscribeParams frames "<channel>.<ticker>" pairs, comma-joined.
func (c *client) subscribeParams(tickers []string) string {
	parts := make([]string, 0, len(tickers)*len(c.cfg.Channels))
	for _, ch := range c.cfg.Channels {
		for _, t := range tickers {
			parts = append(parts, ch+"."+t)
		}
	}
	return strings.Join(parts, ",")
}

// write marshals and sends one control message.
func (c *client) write(conn *websocket.Conn, msg controlMessage) error {
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(msg)
}

// readLoop reads and dispatches frames until the connection fails.
func (c *client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}

		c.mu.Lock()
		c.lastMsg = time.Now()
		c.mu.Unlock()

		frames, err := parseFrames(data)
		if err != nil {
			c.logger.Warn("undecodable frame", "error", err)
			continue
		}

		for _, f := range frames {
			if f.Ev == "status" {
				c.handleStatus(f)
				continue
			}
			if tick, ok := decodeTick(f); ok && c.cfg.OnTick != nil {
				c.cfg.OnTick(tick)
			}
			// Unknown event kinds are silently ignored.
		}
	}
}

// handleStatus processes a status frame: auth acks resolve the pending
// Connect waiter, subscription acks update the advisory confirmed set.
func (c *client) handleStatus(f frame) {
	switch f.Status {
	case "auth_success":
		c.mu.Lock()
		ch := c.authCh
		c.mu.Unlock()
		if ch != nil {
			select {
			case ch <- nil:
			default:
			}
		}

	case "auth_failed":
		c.mu.Lock()
		ch := c.authCh
		c.mu.Unlock()
		if ch != nil {
			select {
			case ch <- ErrAuthFailed:
			default:
			}
		}

	case "success":
		// Advisory subscription confirmation, e.g. "subscribed to: AM.AAPL"
		if rest, ok := strings.CutPrefix(f.Message, "subscribed to: "); ok {
			c.confirm(rest)
		}

	case "error":
		// Subscription rejections are advisory and never fail Subscribe.
		c.logger.Warn("feed status error", "message", f.Message)
	}
}

// confirm records provider-acknowledged subscriptions.
func (c *client) confirm(params string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range strings.Split(params, ",") {
		if _, ticker, ok := strings.Cut(strings.TrimSpace(p), "."); ok {
			c.confirmed[ticker] = struct{}{}
		}
	}
}

// Confirmed returns how many held tickers the provider has acknowledged.
func (c *client) Confirmed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.confirmed)
}

// handleReadError drives the reconnect state machine.
func (c *client) handleReadError(gen int, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen || !c.connected {
		// Disconnect was requested, a newer connection took over, or
		// this connection never finished authenticating (Connect's
		// caller owns that failure).
		c.mu.Unlock()
		return
	}
	c.connected = false
	for t := range c.confirmed {
		delete(c.confirmed, t)
	}
	c.mu.Unlock()

	c.emitStatus(StatusDisconnected, err.Error())
	c.reconnectLoop()
}

// reconnectLoop retries with linear backoff (attempt k waits
// k × ReconnectBaseDelay) until success, Disconnect, or the attempt
// budget is spent. Only this client's goroutine blocks in the waits.
func (c *client) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if attempt > c.cfg.MaxReconnects {
			c.emitStatus(StatusError, "reconnect attempts exhausted")
			c.logger.Error("giving up reconnecting", "attempts", attempt-1)
			return
		}

		wait := time.Duration(attempt) * c.cfg.ReconnectBaseDelay
		c.logger.Info("reconnecting", "attempt", attempt, "wait", wait)

		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		if err := c.dial(context.Background()); err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		// Re-subscribe everything held before the drop.
		held := c.Subscribed()
		if len(held) > 0 {
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if err := c.write(conn, controlMessage{Action: "subscribe", Params: c.subscribeParams(held)}); err != nil {
				c.logger.Warn("re-subscribe failed", "tickers", len(held), "error", err)
			}
		}
		return
	}
}

// emitStatus invokes the status callback outside any lock.
func (c *client) emitStatus(status ConnStatus, message string) {
	if c.cfg.OnStatus == nil {
		return
	}
	c.cfg.OnStatus(StatusUpdate{
		Status:  status,
		Message: message,
		At:      time.Now(),
	})
}
