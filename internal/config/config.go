package config

import "time"

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Database DatabaseConfig `yaml:"database"`
	Slots    []SlotConfig   `yaml:"slots"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// FeedConfig holds upstream feed settings shared by all connections.
type FeedConfig struct {
	WSURL              string        `yaml:"ws_url"`
	APIKey             string        `yaml:"api_key"`
	AuthTimeout        time.Duration `yaml:"auth_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnects      int           `yaml:"max_reconnects"`
}

// DatabaseConfig holds the TimescaleDB connection for time-series data.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SlotConfig describes one connection slot in the pool. A slot takes
// its tickers from Universes (colon-joined universe keys, e.g.
// "sp500:nasdaq100") when set, otherwise from the explicit Symbols
// list (comma-separated).
type SlotConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Name      string `yaml:"name"`
	Universes string `yaml:"universes"`
	Symbols   string `yaml:"symbols"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	WriteTimeout      time.Duration `yaml:"write_timeout"` // per-bar upsert deadline
	AnalysisWorkers   int           `yaml:"analysis_workers"`
	AnalysisQueueSize int           `yaml:"analysis_queue_size"`
	BusBufferSize     int           `yaml:"bus_buffer_size"`
	DetectorEnabled   bool          `yaml:"detector_enabled"`
	DetectorThreshold float64       `yaml:"detector_threshold"` // fractional move, e.g. 0.02 = 2%
	UniverseCacheTTL  time.Duration `yaml:"universe_cache_ttl"`
}

// HealthConfig holds the health/monitoring HTTP endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
