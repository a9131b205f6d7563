// Package feed implements the upstream market-data protocol client.
//
// One Client owns one physical WebSocket connection: it authenticates,
// maintains the locally tracked subscription set, decodes inbound
// frames into model.Tick, and re-establishes the connection with
// linear backoff after failures. Connection pooling across the
// provider's per-socket subscription cap lives in package pool.
package feed
