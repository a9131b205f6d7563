package feed

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/quantpipe/tickfeed/internal/model"
)

// Errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrAuthTimeout  = errors.New("auth ack timeout")
	ErrAuthFailed   = errors.New("auth rejected")
	ErrClosed       = errors.New("client closed")
)

// ConnStatus is the lifecycle state of a client connection.
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusError        ConnStatus = "error"
)

// StatusUpdate is delivered to the status callback on connection and
// subscription state changes.
type StatusUpdate struct {
	Status  ConnStatus
	Message string
	At      time.Time
}

// TickHandler receives decoded ticks.
type TickHandler func(model.Tick)

// StatusHandler receives connection status changes.
type StatusHandler func(StatusUpdate)

// ClientConfig configures a protocol client.
type ClientConfig struct {
	URL                string        // WebSocket URL
	APIKey             string        // Process-wide API credential
	Channels           []string      // Event channels to subscribe per ticker (default AM, T, Q)
	AuthTimeout        time.Duration // Max wait for the auth ack
	WriteTimeout       time.Duration // Write deadline for sends
	ReconnectBaseDelay time.Duration // Attempt k waits k × base
	MaxReconnects      int           // Attempts before giving up

	OnTick   TickHandler
	OnStatus StatusHandler
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Channels:           []string{"AM", "T", "Q"},
		AuthTimeout:        15 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReconnectBaseDelay: 1 * time.Second,
		MaxReconnects:      5,
	}
}

// controlMessage is an outbound auth/subscribe/unsubscribe frame.
type controlMessage struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// frame is one inbound message element. The provider sends JSON arrays
// of frames; every element carries an "ev" discriminator.
type frame struct {
	Ev string `json:"ev"`

	// status frames
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// data frames
	Sym string `json:"sym,omitempty"`

	// aggregate (A, AM)
	Open   float64 `json:"o,omitempty"`
	High   float64 `json:"h,omitempty"`
	Low    float64 `json:"l,omitempty"`
	Close  float64 `json:"c,omitempty"`
	Volume int64   `json:"v,omitempty"`
	VWAP   float64 `json:"vw,omitempty"`
	Start  int64   `json:"s,omitempty"` // bar start (ms); trade size shares this key

	// trade (T)
	Price float64 `json:"p,omitempty"`
	Time  int64   `json:"t,omitempty"` // event timestamp (ms)

	// quote (Q)
	Bid float64 `json:"bp,omitempty"`
	Ask float64 `json:"ap,omitempty"`
}

// parseFrames decodes an inbound payload, which may be a single frame
// or an array of frames.
func parseFrames(data []byte) ([]frame, error) {
	if len(data) > 0 && data[0] == '[' {
		var frames []frame
		if err := json.Unmarshal(data, &frames); err != nil {
			return nil, err
		}
		return frames, nil
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return []frame{f}, nil
}
