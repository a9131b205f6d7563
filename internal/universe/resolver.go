package universe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownUniverse is returned when a key resolves to no universe at all.
var ErrUnknownUniverse = errors.New("unknown universe")

// Resolver resolves a universe key to a sorted, distinct symbol list.
type Resolver interface {
	GetUniverseSymbols(ctx context.Context, key string) ([]string, error)
}

// ResolveKey resolves a possibly colon-joined universe key (e.g.
// "sp500:nasdaq100") through r, returning the sorted union of all
// parts. An error from any part fails the whole key.
func ResolveKey(ctx context.Context, r Resolver, key string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, part := range strings.Split(key, ":") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		symbols, err := r.GetUniverseSymbols(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("resolve universe %q: %w", part, err)
		}
		for _, s := range symbols {
			seen[s] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// PGResolver resolves universes from the universe_members table with
// an in-memory TTL cache.
type PGResolver struct {
	db     *pgxpool.Pool
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	symbols   []string
	fetchedAt time.Time
}

// NewPGResolver creates a resolver backed by db. Entries are refetched
// after ttl.
func NewPGResolver(db *pgxpool.Pool, ttl time.Duration, logger *slog.Logger) *PGResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGResolver{
		db:     db,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// GetUniverseSymbols returns the sorted distinct members of one
// universe key (no colon unions; see ResolveKey).
func (r *PGResolver) GetUniverseSymbols(ctx context.Context, key string) ([]string, error) {
	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < r.ttl {
		return entry.symbols, nil
	}

	symbols, err := r.fetch(ctx, key)
	if err != nil {
		// Serve a stale entry over failing, if we have one.
		if ok {
			r.logger.Warn("universe refresh failed, serving cached",
				"universe", key,
				"age", time.Since(entry.fetchedAt),
				"error", err,
			)
			return entry.symbols, nil
		}
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{symbols: symbols, fetchedAt: time.Now()}
	r.mu.Unlock()

	r.logger.Debug("universe resolved", "universe", key, "symbols", len(symbols))
	return symbols, nil
}

func (r *PGResolver) fetch(ctx context.Context, key string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT symbol
		FROM universe_members
		WHERE universe = $1
		ORDER BY symbol
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query universe %q: %w", key, err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan universe member: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read universe %q: %w", key, err)
	}

	return symbols, nil
}
