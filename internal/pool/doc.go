// Package pool presents a single-client-shaped facade over a fixed
// set of feed connections.
//
// The upstream provider caps subscriptions per socket, so the
// configured ticker universe is fanned out across 1..N clients. Each
// ticker is statically assigned to exactly one connection; callbacks
// from all connections are aggregated into one stream. Bookkeeping is
// guarded by a single mutex held only for the mutation itself; the
// user callback always runs outside the lock so a slow consumer cannot
// stall sibling connections.
package pool
