// Package database provides connection pool management for TimescaleDB.
//
// The gatherer keeps two kinds of data in one database:
//   - bars: the minute-bar hypertable written by the ingestion pipeline
//   - universe_members: the named symbol universes read at startup
package database
