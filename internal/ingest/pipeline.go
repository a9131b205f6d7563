package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantpipe/tickfeed/internal/model"
)

// BarWriter persists bars. The upsert must be idempotent on
// (ticker, timestamp) so replayed ticks never duplicate rows.
type BarWriter interface {
	WriteBar(ctx context.Context, bar model.Bar) error
	Connected() bool
}

// Detector inspects every tick synchronously on the ingest path. It
// must be bounded and must not perform I/O.
type Detector interface {
	Observe(t model.Tick)
}

// Scheduler requests an analysis recompute. Implementations must not
// block the caller.
type Scheduler interface {
	Schedule(ticker string, ts int64)
}

// Health is a point-in-time snapshot of ingestion counters.
type Health struct {
	TicksProcessed int64         `json:"ticks_processed"`
	BarsPersisted  int64         `json:"bars_persisted"`
	PersistErrors  int64         `json:"persist_errors"`
	LastTickAge    time.Duration `json:"last_tick_age"`
	StoreConnected bool          `json:"store_connected"`
}

// PipelineConfig configures a Pipeline. Store is required; Detector,
// Scheduler and Logger are optional.
type PipelineConfig struct {
	Store     BarWriter
	Detector  Detector
	Scheduler Scheduler
	Logger    *slog.Logger

	// WriteTimeout bounds an individual bar upsert. Zero means no
	// per-write deadline beyond the pipeline context.
	WriteTimeout time.Duration
}

// Pipeline consumes ticks from the connection pool, counts them, runs
// the detector, and upserts aggregate ticks as bars. Analysis is
// scheduled only after a successful persist.
type Pipeline struct {
	store     BarWriter
	detector  Detector
	scheduler Scheduler
	logger    *slog.Logger
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	ticksProcessed atomic.Int64
	barsPersisted  atomic.Int64
	persistErrors  atomic.Int64
	lastTickAt     atomic.Int64 // unix nanos, 0 until first tick
}

// NewPipeline creates a Pipeline. If logger is nil, slog.Default() is
// used.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:     cfg.Store,
		detector:  cfg.Detector,
		scheduler: cfg.Scheduler,
		logger:    logger,
		timeout:   cfg.WriteTimeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// HandleTick ingests a single tick. Safe for concurrent use; intended
// to be wired directly as the pool's tick callback.
func (p *Pipeline) HandleTick(t model.Tick) {
	now := time.Now()
	p.ticksProcessed.Add(1)
	p.lastTickAt.Store(now.UnixNano())

	if p.detector != nil {
		p.detector.Observe(t)
	}

	bar, ok := model.BarFromTick(t, now)
	if !ok {
		return
	}

	ctx := p.ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.store.WriteBar(ctx, bar); err != nil {
		p.persistErrors.Add(1)
		p.logger.Error("bar persist failed",
			"ticker", bar.Ticker,
			"ts", bar.Timestamp,
			"error", err)
		return
	}
	p.barsPersisted.Add(1)

	if p.scheduler != nil {
		p.scheduler.Schedule(bar.Ticker, bar.Timestamp)
	}
}

// Health reports ingestion counters and store connectivity.
func (p *Pipeline) Health() Health {
	var age time.Duration
	if last := p.lastTickAt.Load(); last > 0 {
		age = time.Since(time.Unix(0, last))
	}
	return Health{
		TicksProcessed: p.ticksProcessed.Load(),
		BarsPersisted:  p.barsPersisted.Load(),
		PersistErrors:  p.persistErrors.Load(),
		LastTickAge:    age,
		StoreConnected: p.store.Connected(),
	}
}

// Close releases the pipeline's internal context. In-flight writes are
// cancelled.
func (p *Pipeline) Close() {
	p.cancel()
}
