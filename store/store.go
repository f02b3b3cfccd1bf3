// Package store implements the relational schema and idempotent batch
// operations: blocks, transactions, messages,
// deliveries, gas payments, and per-domain cursors, all safe to re-run
// over the same range without producing duplicate rows.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tos-network/ichain-scraper/log"
	"github.com/tos-network/ichain-scraper/store/migrate"
)

// ErrReceiptMissing is returned by StoreTxns when any transaction in the
// batch has no receipt. The scraper treats this as a transient,
// retryable condition: the transaction has likely not confirmed yet.
var ErrReceiptMissing = errors.New("store: transaction missing receipt")

// Store is the Postgres-backed implementation of component A.
type Store struct {
	pool *pgxpool.Pool
	log  *log.Logger
}

// Open connects to Postgres at dsn, applies pending migrations, and
// returns a ready-to-use Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := migrate.Run(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{pool: pool, log: log.New("component", "store")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SeedDomains inserts (or no-ops on conflict) the set of domains known
// from configuration at bootstrap.
func (s *Store) SeedDomains(ctx context.Context, domains map[uint32]string) error {
	for id, name := range domains {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO domain (domain_id, name) VALUES ($1, $2)
			ON CONFLICT (domain_id) DO NOTHING`, id, name,
		); err != nil {
			return fmt.Errorf("store: seed domain %d: %w", id, err)
		}
	}
	return nil
}
