package feed

import (
	"testing"

	"github.com/quantpipe/tickfeed/internal/model"
)

func TestDecodeTick_Aggregate(t *testing.T) {
	frames, err := parseFrames([]byte(`[{"ev":"AM","sym":"MSFT","o":401.5,"h":402.8,"l":401.1,"c":402.11,"v":12500,"vw":402.02,"s":1705320000000}]`))
	if err != nil {
		t.Fatalf("parseFrames failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}

	tick, ok := decodeTick(frames[0])
	if !ok {
		t.Fatal("decodeTick ok = false, want true")
	}
	if tick.Kind != model.KindAggregate {
		t.Errorf("Kind = %q, want %q", tick.Kind, model.KindAggregate)
	}
	if tick.Ticker != "MSFT" {
		t.Errorf("Ticker = %q, want %q", tick.Ticker, "MSFT")
	}
	if tick.Open != 401.5 || tick.High != 402.8 || tick.Low != 401.1 || tick.Close != 402.11 {
		t.Errorf("OHLC = %v/%v/%v/%v, want 401.5/402.8/401.1/402.11",
			tick.Open, tick.High, tick.Low, tick.Close)
	}
	if tick.Price != 402.11 {
		t.Errorf("Price = %v, want close 402.11", tick.Price)
	}
	if tick.Volume != 12500 {
		t.Errorf("Volume = %d, want 12500", tick.Volume)
	}
	if tick.Timestamp != 1705320000000 {
		t.Errorf("Timestamp = %d, want 1705320000000", tick.Timestamp)
	}
}

func TestDecodeTick_Trade(t *testing.T) {
	frames, err := parseFrames([]byte(`[{"ev":"T","sym":"AAPL","p":187.45,"s":100,"t":1700000000000}]`))
	if err != nil {
		t.Fatalf("parseFrames failed: %v", err)
	}

	tick, ok := decodeTick(frames[0])
	if !ok {
		t.Fatal("decodeTick ok = false, want true")
	}
	if tick.Kind != model.KindTrade {
		t.Errorf("Kind = %q, want %q", tick.Kind, model.KindTrade)
	}
	if tick.Price != 187.45 {
		t.Errorf("Price = %v, want 187.45", tick.Price)
	}
	if tick.Volume != 100 {
		t.Errorf("Volume = %d, want 100", tick.Volume)
	}
	if tick.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want 1700000000000", tick.Timestamp)
	}
}

func TestDecodeTick_QuoteMidpoint(t *testing.T) {
	frames, err := parseFrames([]byte(`[{"ev":"Q","sym":"AAPL","bp":150.0,"ap":150.2,"t":1700000000000}]`))
	if err != nil {
		t.Fatalf("parseFrames failed: %v", err)
	}

	tick, ok := decodeTick(frames[0])
	if !ok {
		t.Fatal("decodeTick ok = false, want true")
	}
	if tick.Kind != model.KindQuote {
		t.Errorf("Kind = %q, want %q", tick.Kind, model.KindQuote)
	}
	if tick.Bid != 150.0 {
		t.Errorf("Bid = %v, want 150.0", tick.Bid)
	}
	if tick.Ask != 150.2 {
		t.Errorf("Ask = %v, want 150.2", tick.Ask)
	}
	// Midpoint of bid/ask.
	if tick.Price < 150.0999 || tick.Price > 150.1001 {
		t.Errorf("Price = %v, want midpoint 150.10", tick.Price)
	}
}

func TestDecodeTick_UnknownKind(t *testing.T) {
	frames, err := parseFrames([]byte(`[{"ev":"LULD","sym":"AAPL"}]`))
	if err != nil {
		t.Fatalf("parseFrames failed: %v", err)
	}
	if _, ok := decodeTick(frames[0]); ok {
		t.Error("decodeTick ok = true for unknown kind, want false")
	}
}

func TestParseFrames_SingleObject(t *testing.T) {
	frames, err := parseFrames([]byte(`{"ev":"status","status":"connected","message":"Connected Successfully"}`))
	if err != nil {
		t.Fatalf("parseFrames failed: %v", err)
	}
	if len(frames) != 1 || frames[0].Status != "connected" {
		t.Errorf("frames = %+v, want one connected status frame", frames)
	}
}
