// Package universe resolves named symbol universes (index and ETF
// holdings lists) to ticker lists.
//
// The production resolver reads the universe_members table and caches
// results in memory with a TTL. Resolvers are injected wherever
// universe lookups are needed, so tests can substitute a fake.
package universe
