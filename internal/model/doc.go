// Package model defines shared data types used across the tick gatherer.
//
// Conventions:
//   - Prices: float64 dollars, as delivered by the upstream feed
//   - Timestamps: int64 milliseconds since Unix epoch (feed native);
//     converted to time.Time only at the storage boundary
//   - Tickers: plain uppercase symbols (e.g. "AAPL")
package model
