package analysis

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantpipe/tickfeed/internal/bus"
)

// Result summarizes one analyzer run.
type Result struct {
	BarsExamined int
	SignalsFound int
}

// Analyzer is the opaque downstream analysis engine.
type Analyzer interface {
	Analyze(ctx context.Context, ticker string, ts int64) (Result, error)
}

// SchedulerConfig configures the worker pool.
type SchedulerConfig struct {
	Workers   int
	QueueSize int
	Timeframe string // Published with completion events (e.g. "1m")
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:   4,
		QueueSize: 1024,
		Timeframe: "1m",
	}
}

// SchedulerStats is a snapshot of scheduler counters.
type SchedulerStats struct {
	Scheduled int64
	Coalesced int64
	Dropped   int64
	Completed int64
	Failed    int64
	Depth     int
}

// Scheduler runs analyzer work on a fixed pool fed by a bounded
// coalescing queue.
type Scheduler struct {
	cfg      SchedulerConfig
	analyzer Analyzer
	events   *bus.Bus
	logger   *slog.Logger

	queue *taskQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
}

// NewScheduler creates a scheduler. events may be nil when no
// observability consumer exists.
func NewScheduler(cfg SchedulerConfig, analyzer Analyzer, events *bus.Bus, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultSchedulerConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = def.Timeframe
	}

	return &Scheduler{
		cfg:      cfg,
		analyzer: analyzer,
		events:   events,
		logger:   logger,
		queue:    newTaskQueue(cfg.QueueSize),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.logger.Info("analysis scheduler started",
		"workers", s.cfg.Workers,
		"queue_size", s.cfg.QueueSize,
	)
	return nil
}

// Stop closes the queue and waits for workers to drain, bounded by
// ctx. On timeout, in-flight analyzer calls are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.queue.close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("analysis scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("analysis scheduler stop timed out, cancelling")
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Schedule requests a recompute for ticker at ts. Never blocks; a full
// queue drops the request and counts it.
func (s *Scheduler) Schedule(ticker string, ts int64) {
	if !s.queue.push(ticker, ts) {
		s.logger.Warn("analysis queue full, dropping", "ticker", ticker)
	}
}

// Stats returns a counter snapshot.
func (s *Scheduler) Stats() SchedulerStats {
	qs := s.queue.stats()
	return SchedulerStats{
		Scheduled: qs.Enqueued,
		Coalesced: qs.Coalesced,
		Dropped:   qs.Dropped,
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Depth:     qs.Depth,
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		t, ok := s.queue.pop()
		if !ok {
			return
		}
		s.run(t)
	}
}

// run executes one task. Analyzer failures are contained here and
// never reach the ingestion path.
func (s *Scheduler) run(t task) {
	start := time.Now()
	res, err := s.analyzer.Analyze(s.ctx, t.Ticker, t.Timestamp)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("analysis failed",
			"ticker", t.Ticker,
			"ts", t.Timestamp,
			"error", err,
		)
		return
	}
	s.completed.Add(1)

	s.logger.Debug("analysis complete",
		"ticker", t.Ticker,
		"ts", t.Timestamp,
		"signals", res.SignalsFound,
		"duration", time.Since(start),
	)

	if s.events != nil {
		s.events.Publish(bus.Event{
			Topic:     bus.TopicAnalysisComplete,
			Ticker:    t.Ticker,
			Timestamp: t.Timestamp,
			Fields: map[string]string{
				"timeframe": s.cfg.Timeframe,
				"bars":      strconv.Itoa(res.BarsExamined),
				"signals":   strconv.Itoa(res.SignalsFound),
			},
		})
	}
}
