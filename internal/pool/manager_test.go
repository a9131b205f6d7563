package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/quantpipe/tickfeed/internal/feed"
	"github.com/quantpipe/tickfeed/internal/model"
)

// fakeClient implements feed.Client without a network.
type fakeClient struct {
	cfg         feed.ClientConfig
	failConnect bool

	mu          sync.Mutex
	connected   bool
	subscribed  map[string]struct{}
	subscribes  [][]string
	unsubs      [][]string
	disconnects int
}

func newFakeClient(cfg feed.ClientConfig) *fakeClient {
	return &fakeClient{cfg: cfg, subscribed: map[string]struct{}{}}
}

func (f *fakeClient) Connect(context.Context) error {
	if f.failConnect {
		// Mirror an auth rejection: the status callback fires before
		// Connect returns its error.
		if f.cfg.OnStatus != nil {
			f.cfg.OnStatus(feed.StatusUpdate{Status: feed.StatusError, Message: "auth rejected", At: time.Now()})
		}
		return feed.ErrAuthFailed
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.cfg.OnStatus != nil {
		f.cfg.OnStatus(feed.StatusUpdate{Status: feed.StatusConnected, At: time.Now()})
	}
	return nil
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeClient) Subscribe(tickers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return feed.ErrNotConnected
	}
	f.subscribes = append(f.subscribes, tickers)
	for _, t := range tickers {
		f.subscribed[t] = struct{}{}
	}
	return nil
}

func (f *fakeClient) Unsubscribe(tickers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, tickers)
	for _, t := range tickers {
		delete(f.subscribed, t)
	}
	return nil
}

func (f *fakeClient) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subscribed))
	for t := range f.subscribed {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (f *fakeClient) Confirmed() int { return 0 }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) LastMessageAt() time.Time { return time.Time{} }

// emitTick drives the wrapped tick callback like a read loop would.
func (f *fakeClient) emitTick(t model.Tick) {
	if f.cfg.OnTick != nil {
		f.cfg.OnTick(t)
	}
}

// fakeResolver maps universe keys to fixed lists.
type fakeResolver struct {
	universes map[string][]string
}

func (r *fakeResolver) GetUniverseSymbols(_ context.Context, key string) ([]string, error) {
	symbols, ok := r.universes[key]
	if !ok {
		return nil, errors.New("unknown universe")
	}
	return symbols, nil
}

// newTestManager wires a manager whose client factory hands out fakes,
// failing connects for slots named in failSlots.
func newTestManager(cfg Config, resolver *fakeResolver, failSlots ...string) (*Manager, map[string]*fakeClient) {
	failing := map[string]struct{}{}
	for _, name := range failSlots {
		failing[name] = struct{}{}
	}

	clients := map[string]*fakeClient{}
	var mu sync.Mutex

	m := NewManager(cfg, resolver, slog.Default())
	slotIdx := 0
	m.newClient = func(ccfg feed.ClientConfig, _ *slog.Logger) feed.Client {
		mu.Lock()
		defer mu.Unlock()

		// Clients are created in slot order for enabled slots.
		var name string
		for slotIdx < len(cfg.Slots) {
			if cfg.Slots[slotIdx].Enabled {
				name = cfg.Slots[slotIdx].Name
				slotIdx++
				break
			}
			slotIdx++
		}

		fc := newFakeClient(ccfg)
		_, fc.failConnect = failing[name]
		clients[name] = fc
		return fc
	}
	return m, clients
}

func dow30() []string {
	out := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		out = append(out, fmt.Sprintf("DOW%02d", i))
	}
	return out
}

func TestManager_ConnectBestEffort(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Symbols: "AAPL,MSFT"},
			{Enabled: true, Name: "slot2", Universes: "dow30"},
		},
	}
	resolver := &fakeResolver{universes: map[string][]string{"dow30": dow30()}}

	m, _ := newTestManager(cfg, resolver, "slot2")

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v, want nil (one slot connected)", err)
	}

	hs := m.HealthStatus()
	if hs.TotalConnections != 2 {
		t.Errorf("TotalConnections = %d, want 2", hs.TotalConnections)
	}
	if hs.ConnectedCount != 1 {
		t.Errorf("ConnectedCount = %d, want 1", hs.ConnectedCount)
	}
}

func TestManager_ConnectFailureCountedOnce(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Symbols: "AAPL"},
			{Enabled: true, Name: "slot2", Symbols: "MSFT"},
		},
	}
	m, _ := newTestManager(cfg, &fakeResolver{}, "slot2")

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v, want nil", err)
	}

	hs := m.HealthStatus()
	if hs.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1 (one failed slot, counted once)", hs.TotalErrors)
	}
	for _, ci := range hs.Connections {
		if ci.ID == 2 && ci.ErrorCount != 1 {
			t.Errorf("conn 2 ErrorCount = %d, want 1", ci.ErrorCount)
		}
	}
}

func TestManager_ConnectAllFail(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Symbols: "AAPL"},
		},
	}
	m, _ := newTestManager(cfg, &fakeResolver{}, "slot1")

	if err := m.Connect(context.Background()); !errors.Is(err, ErrNoConnections) {
		t.Errorf("Connect() = %v, want ErrNoConnections", err)
	}
}

func TestManager_InitialAssignment(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Symbols: "AAPL,MSFT"},
			{Enabled: true, Name: "slot2", Universes: "dow30"},
		},
	}
	resolver := &fakeResolver{universes: map[string][]string{"dow30": dow30()}}

	m, clients := newTestManager(cfg, resolver)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if id, ok := m.TickerAssignment("AAPL"); !ok || id != 1 {
		t.Errorf("TickerAssignment(AAPL) = %d, %v; want 1, true", id, ok)
	}
	if id, ok := m.TickerAssignment("DOW07"); !ok || id != 2 {
		t.Errorf("TickerAssignment(DOW07) = %d, %v; want 2, true", id, ok)
	}
	if len(clients["slot2"].Subscribed()) != 30 {
		t.Errorf("slot2 subscribed = %d tickers, want 30", len(clients["slot2"].Subscribed()))
	}
}

func TestManager_UniverseFallbackToSymbols(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Universes: "missing", Symbols: "TSLA,NVDA"},
		},
	}
	m, clients := newTestManager(cfg, &fakeResolver{})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	want := []string{"NVDA", "TSLA"}
	got := clients["slot1"].Subscribed()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("subscribed = %v, want %v", got, want)
	}
}

func TestManager_EmptySlotStillConfigured(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Universes: "missing"},
		},
	}
	m, _ := newTestManager(cfg, &fakeResolver{})

	// Connects with zero tickers; still counted as configured.
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	hs := m.HealthStatus()
	if hs.TotalConnections != 1 || hs.ConnectedCount != 1 {
		t.Errorf("health = %d/%d, want 1/1", hs.ConnectedCount, hs.TotalConnections)
	}
	if hs.Connections[0].AssignedTickers != 0 {
		t.Errorf("AssignedTickers = %d, want 0", hs.Connections[0].AssignedTickers)
	}
}

func TestManager_SubscribeRoutesToFirstConnected(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Symbols: "AAPL"},
			{Enabled: true, Name: "slot2", Symbols: "MSFT"},
		},
	}
	m, clients := newTestManager(cfg, &fakeResolver{}, "slot1")

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// slot1 is down, so routing goes to slot2 (conn 2).
	if err := m.Subscribe([]string{"NVDA"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if id, ok := m.TickerAssignment("NVDA"); !ok || id != 2 {
		t.Errorf("TickerAssignment(NVDA) = %d, %v; want 2, true", id, ok)
	}

	found := false
	for _, s := range clients["slot2"].Subscribed() {
		if s == "NVDA" {
			found = true
		}
	}
	if !found {
		t.Error("NVDA not subscribed on slot2's client")
	}
}

func TestManager_SubscribeSkipsAssigned(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Symbols: "AAPL"},
			{Enabled: true, Name: "slot2", Symbols: "MSFT"},
		},
	}
	m, _ := newTestManager(cfg, &fakeResolver{})
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// MSFT already belongs to conn 2; re-subscribing must not move it.
	if err := m.Subscribe([]string{"MSFT"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if id, _ := m.TickerAssignment("MSFT"); id != 2 {
		t.Errorf("TickerAssignment(MSFT) = %d, want 2 (unchanged)", id)
	}
}

func TestManager_SubscribeNoneConnected(t *testing.T) {
	cfg := Config{
		Slots: []Slot{{Enabled: true, Name: "slot1", Symbols: "AAPL"}},
	}
	m, clients := newTestManager(cfg, &fakeResolver{})
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	clients["slot1"].Disconnect()

	if err := m.Subscribe([]string{"NVDA"}); !errors.Is(err, ErrNoConnections) {
		t.Errorf("Subscribe() = %v, want ErrNoConnections", err)
	}
}

func TestManager_UnsubscribeRoutesByAssignment(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Symbols: "AAPL,MSFT"},
			{Enabled: true, Name: "slot2", Symbols: "NVDA"},
		},
	}
	m, clients := newTestManager(cfg, &fakeResolver{})
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Unknown ticker is skipped; known ones routed to their owners.
	if err := m.Unsubscribe([]string{"MSFT", "NVDA", "ZZZZ"}); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	if _, ok := m.TickerAssignment("MSFT"); ok {
		t.Error("MSFT still assigned after Unsubscribe")
	}
	if _, ok := m.TickerAssignment("NVDA"); ok {
		t.Error("NVDA still assigned after Unsubscribe")
	}
	if _, ok := m.TickerAssignment("AAPL"); !ok {
		t.Error("AAPL lost its assignment")
	}

	if got := clients["slot1"].Subscribed(); len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("slot1 subscribed = %v, want [AAPL]", got)
	}
	if got := clients["slot2"].Subscribed(); len(got) != 0 {
		t.Errorf("slot2 subscribed = %v, want empty", got)
	}
}

func TestManager_CallbackAggregation(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	cfg := Config{
		Slots: []Slot{
			{Enabled: true, Name: "slot1", Symbols: "AAPL"},
			{Enabled: true, Name: "slot2", Symbols: "MSFT"},
		},
		OnTick: func(tick model.Tick) {
			mu.Lock()
			seen = append(seen, tick.Ticker)
			mu.Unlock()
		},
	}
	m, clients := newTestManager(cfg, &fakeResolver{})
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	clients["slot1"].emitTick(model.Tick{Ticker: "AAPL", Kind: model.KindTrade})
	clients["slot2"].emitTick(model.Tick{Ticker: "MSFT", Kind: model.KindTrade})
	clients["slot2"].emitTick(model.Tick{Ticker: "MSFT", Kind: model.KindQuote})

	mu.Lock()
	if len(seen) != 3 {
		t.Errorf("callback invocations = %d, want 3", len(seen))
	}
	mu.Unlock()

	hs := m.HealthStatus()
	if hs.TotalTicks != 3 {
		t.Errorf("TotalTicks = %d, want 3", hs.TotalTicks)
	}
	for _, ci := range hs.Connections {
		switch ci.ID {
		case 1:
			if ci.MessageCount != 1 {
				t.Errorf("conn 1 MessageCount = %d, want 1", ci.MessageCount)
			}
		case 2:
			if ci.MessageCount != 2 {
				t.Errorf("conn 2 MessageCount = %d, want 2", ci.MessageCount)
			}
		}
	}
}

func TestManager_DisabledSlotsSkipped(t *testing.T) {
	cfg := Config{
		Slots: []Slot{
			{Enabled: false, Name: "off", Symbols: "AAPL"},
			{Enabled: true, Name: "on", Symbols: "MSFT"},
		},
	}
	m, clients := newTestManager(cfg, &fakeResolver{})
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if _, ok := clients["off"]; ok {
		t.Error("disabled slot got a client")
	}
	hs := m.HealthStatus()
	if hs.TotalConnections != 1 {
		t.Errorf("TotalConnections = %d, want 1", hs.TotalConnections)
	}
	// Slot index is preserved in the connection ID.
	if id, ok := m.TickerAssignment("MSFT"); !ok || id != 2 {
		t.Errorf("TickerAssignment(MSFT) = %d, %v; want 2, true", id, ok)
	}
}
