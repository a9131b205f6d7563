package bus

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New(10)
	defer b.Close()

	ch := b.Subscribe(TopicAnalysisComplete)

	b.Publish(Event{
		Topic:     TopicAnalysisComplete,
		Ticker:    "AAPL",
		Timestamp: 1700000000000,
	})

	select {
	case e := <-ch:
		if e.Ticker != "AAPL" {
			t.Errorf("Ticker = %q, want %q", e.Ticker, "AAPL")
		}
		if e.ID == uuid.Nil {
			t.Error("ID = Nil, want assigned uuid")
		}
		if e.At.IsZero() {
			t.Error("At is zero, want publish time")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_TopicFilter(t *testing.T) {
	b := New(10)
	defer b.Close()

	alerts := b.Subscribe(TopicDetectorAlert)

	b.Publish(Event{Topic: TopicAnalysisComplete, Ticker: "AAPL"})
	b.Publish(Event{Topic: TopicDetectorAlert, Ticker: "MSFT"})

	select {
	case e := <-alerts:
		if e.Topic != TopicDetectorAlert {
			t.Errorf("Topic = %q, want %q", e.Topic, TopicDetectorAlert)
		}
		if e.Ticker != "MSFT" {
			t.Errorf("Ticker = %q, want %q", e.Ticker, "MSFT")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for alert")
	}

	select {
	case e := <-alerts:
		t.Errorf("unexpected second event: %+v", e)
	default:
	}
}

func TestBus_DropWhenFull(t *testing.T) {
	b := New(1)
	defer b.Close()

	b.Subscribe() // never drained

	b.Publish(Event{Topic: TopicDetectorAlert})
	b.Publish(Event{Topic: TopicDetectorAlert})

	published, dropped := b.Stats()
	if published != 2 {
		t.Errorf("published = %d, want 2", published)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := New(1)
	ch := b.Subscribe()
	b.Close()

	// Must not panic or deliver.
	b.Publish(Event{Topic: TopicAnalysisComplete})

	if _, ok := <-ch; ok {
		t.Error("channel delivered an event after Close")
	}
}
