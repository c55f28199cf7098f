// Package store implements optional snapshot persistence: a token registry
// and a pool registry, both append-safe, loaded once at startup and
// written once at shutdown, backed by a pgx pool with schema
// initialization read from a file on disk.
package store

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/arb-cycle-engine/internal/graph"
	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// PostgresStore is the optional persistence boundary. A nil *PostgresStore
// is a valid, fully supported configuration: the engine simply runs
// memory-only, with no registry snapshot loaded or saved.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("[Store] connected to PostgreSQL for token/pool registry snapshots")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql, creating the registry tables
// if they don't already exist.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(context.Background(), string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("[Store] token/pool registry schema initialized")
	return nil
}

// SaveSnapshot appends every token and pool in snap to the registries,
// upserting on conflict so repeated shutdown snapshots stay idempotent.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap graph.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertToken = `
		INSERT INTO token_registry (mint, decimals, first_seen_slot)
		VALUES ($1, $2, $3)
		ON CONFLICT (mint) DO NOTHING;
	`
	for _, t := range snap.Tokens {
		if _, err := tx.Exec(ctx, insertToken, t.Mint[:], int16(t.Decimals), int64(t.FirstSeenSlot)); err != nil {
			return fmt.Errorf("insert token_registry: %w", err)
		}
	}

	const insertPool = `
		INSERT INTO pool_registry (pool_address, venue, token_a, token_b, last_seen_slot)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pool_address) DO UPDATE
		SET last_seen_slot = GREATEST(pool_registry.last_seen_slot, EXCLUDED.last_seen_slot);
	`
	for _, p := range snap.Pools {
		if _, err := tx.Exec(ctx, insertPool, p.PoolAddress[:], int16(p.Venue), p.TokenA[:], p.TokenB[:], int64(p.LastSeenSlot)); err != nil {
			return fmt.Errorf("insert pool_registry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LoadSnapshot reads the full token and pool registries back into a
// graph.Snapshot for Restore at startup.
func (s *PostgresStore) LoadSnapshot(ctx context.Context) (graph.Snapshot, error) {
	var snap graph.Snapshot

	tokenRows, err := s.pool.Query(ctx, `SELECT mint, decimals, first_seen_slot FROM token_registry`)
	if err != nil {
		return snap, fmt.Errorf("query token_registry: %w", err)
	}
	defer tokenRows.Close()
	for tokenRows.Next() {
		var mintBytes []byte
		var decimals int16
		var firstSeen int64
		if err := tokenRows.Scan(&mintBytes, &decimals, &firstSeen); err != nil {
			return snap, fmt.Errorf("scan token_registry: %w", err)
		}
		var entry models.TokenRegistryEntry
		copy(entry.Mint[:], mintBytes)
		entry.Decimals = uint8(decimals)
		entry.FirstSeenSlot = uint64(firstSeen)
		snap.Tokens = append(snap.Tokens, entry)
	}
	if err := tokenRows.Err(); err != nil {
		return snap, err
	}

	poolRows, err := s.pool.Query(ctx, `SELECT pool_address, venue, token_a, token_b, last_seen_slot FROM pool_registry`)
	if err != nil {
		return snap, fmt.Errorf("query pool_registry: %w", err)
	}
	defer poolRows.Close()
	for poolRows.Next() {
		var addrBytes, aBytes, bBytes []byte
		var venue int16
		var lastSeen int64
		if err := poolRows.Scan(&addrBytes, &venue, &aBytes, &bBytes, &lastSeen); err != nil {
			return snap, fmt.Errorf("scan pool_registry: %w", err)
		}
		var entry models.PoolRegistryEntry
		copy(entry.PoolAddress[:], addrBytes)
		entry.Venue = models.VenueKind(venue)
		copy(entry.TokenA[:], aBytes)
		copy(entry.TokenB[:], bBytes)
		entry.LastSeenSlot = uint64(lastSeen)
		snap.Pools = append(snap.Pools, entry)
	}
	if err := poolRows.Err(); err != nil {
		return snap, err
	}

	return snap, nil
}
