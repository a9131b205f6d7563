// Package store implements the time-series bar store on TimescaleDB.
//
// Writes are idempotent upserts keyed by (ticker, ts): redelivered or
// re-subscribed bars overwrite themselves, so at-least-once delivery
// upstream never duplicates rows.
package store
