package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL              = "wss://socket.polygon.io/stocks"
	DefaultAuthTimeout        = 15 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultMaxReconnects      = 5
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultIngestWriteTimeout = 5 * time.Second
	DefaultAnalysisWorkers    = 4
	DefaultAnalysisQueueSize  = 1024
	DefaultBusBufferSize      = 256
	DefaultDetectorThreshold  = 0.02
	DefaultUniverseCacheTTL   = 15 * time.Minute
	DefaultHealthPort         = 8080
	DefaultHealthPath         = "/health"
)

func (c *GathererConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.AuthTimeout == 0 {
		c.Feed.AuthTimeout = DefaultAuthTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.MaxReconnects == 0 {
		c.Feed.MaxReconnects = DefaultMaxReconnects
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Ingest defaults
	if c.Ingest.WriteTimeout == 0 {
		c.Ingest.WriteTimeout = DefaultIngestWriteTimeout
	}
	if c.Ingest.AnalysisWorkers == 0 {
		c.Ingest.AnalysisWorkers = DefaultAnalysisWorkers
	}
	if c.Ingest.AnalysisQueueSize == 0 {
		c.Ingest.AnalysisQueueSize = DefaultAnalysisQueueSize
	}
	if c.Ingest.BusBufferSize == 0 {
		c.Ingest.BusBufferSize = DefaultBusBufferSize
	}
	if c.Ingest.DetectorThreshold == 0 {
		c.Ingest.DetectorThreshold = DefaultDetectorThreshold
	}
	if c.Ingest.UniverseCacheTTL == 0 {
		c.Ingest.UniverseCacheTTL = DefaultUniverseCacheTTL
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
