// Package analysis schedules downstream recompute work off the
// ingestion path.
//
// A fixed worker pool drains a bounded queue; scheduling never blocks
// the caller. Under sustained load the queue coalesces repeat requests
// for the same ticker to the newest bar timestamp and drops the rest,
// so a slow analyzer can never backpressure the socket read loops.
package analysis
