// feedtest connects a single feed client and streams decoded ticks to
// the console. Manual smoke tool for checking credentials, channels and
// decode behavior against the live feed.
//
// Usage: go run ./cmd/feedtest --url wss://socket.polygon.io/stocks --symbols AAPL,MSFT
//
// The API key is taken from the FEED_API_KEY environment variable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quantpipe/tickfeed/internal/feed"
	"github.com/quantpipe/tickfeed/internal/model"
)

func main() {
	wsURL := flag.String("url", "wss://socket.polygon.io/stocks", "websocket feed URL")
	symbols := flag.String("symbols", "AAPL", "comma-separated symbols to subscribe")
	channels := flag.String("channels", "AM,T,Q", "comma-separated event channels")
	verbose := flag.Bool("verbose", false, "print full tick JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	apiKey := os.Getenv("FEED_API_KEY")
	if apiKey == "" {
		logger.Error("FEED_API_KEY not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := feed.NewClient(feed.ClientConfig{
		URL:      *wsURL,
		APIKey:   apiKey,
		Channels: strings.Split(*channels, ","),
		OnTick: func(t model.Tick) {
			printTick(t, *verbose)
		},
		OnStatus: func(s feed.StatusUpdate) {
			logger.Info("status", "status", s.Status, "message", s.Message)
		},
	}, logger)

	logger.Info("connecting", "url", *wsURL)
	if err := client.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	tickers := strings.Split(*symbols, ",")
	if err := client.Subscribe(tickers); err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	logger.Info("streaming started - press Ctrl+C to stop", "symbols", tickers)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"connected", client.IsConnected(),
					"subscribed", len(client.Subscribed()),
					"confirmed", client.Confirmed(),
					"last_message", client.LastMessageAt().Format(time.RFC3339),
				)
			}
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")
	client.Disconnect()
	logger.Info("shutdown complete")
}

func printTick(t model.Tick, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(t, "", "  ")
		fmt.Printf("[%s] %s\n", t.Kind, data)
		return
	}
	switch t.Kind {
	case model.KindAggregate:
		fmt.Printf("[AGG] %s o=%.2f h=%.2f l=%.2f c=%.2f v=%d vw=%.2f ts=%s\n",
			t.Ticker, t.Open, t.High, t.Low, t.Close, t.Volume, t.VWAP, t.Time().Format(time.TimeOnly))
	case model.KindTrade:
		fmt.Printf("[TRD] %s p=%.2f size=%d ts=%s\n",
			t.Ticker, t.Price, t.Volume, t.Time().Format(time.TimeOnly))
	case model.KindQuote:
		fmt.Printf("[QUO] %s bid=%.2f ask=%.2f mid=%.2f ts=%s\n",
			t.Ticker, t.Bid, t.Ask, t.Price, t.Time().Format(time.TimeOnly))
	default:
		fmt.Printf("[???] %s %+v\n", t.Ticker, t)
	}
}
