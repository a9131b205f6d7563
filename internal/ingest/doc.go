// Package ingest turns raw feed ticks into persisted bars.
//
// The Pipeline is the single consumer-side entry point for ticks coming
// off the connection pool. Every tick is counted and offered to the
// in-process detector; aggregate ticks are additionally upserted into
// the bar store and, on a successful write, handed to the analysis
// scheduler. Persist failures are logged and ingestion continues.
package ingest
