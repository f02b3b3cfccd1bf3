package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tos-network/ichain-scraper/chain"
)

// BlockHit is what GetBlockIDs returns per matched hash.
type BlockHit struct {
	ID        int64
	Timestamp time.Time
}

// GetBlockIDs returns the known ids (and timestamps) for the given block
// hashes on domain. Hashes with no existing row are simply absent from
// the result map.
func (s *Store) GetBlockIDs(ctx context.Context, domain uint32, hashes []chain.Hash32) (map[chain.Hash32]BlockHit, error) {
	out := make(map[chain.Hash32]BlockHit, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT hash, id, "timestamp" FROM block WHERE domain = $1 AND hash = ANY($2)`,
		domain, hashes,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get_block_ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash chain.Hash32
		var hit BlockHit
		if err := rows.Scan(&hash, &hit.ID, &hit.Timestamp); err != nil {
			return nil, fmt.Errorf("store: get_block_ids scan: %w", err)
		}
		out[hash] = hit
	}
	return out, rows.Err()
}

// StoreBlocks inserts blocks not already present (by (domain, hash)) and
// returns the id of the first newly-inserted row, or 0 if every hash in
// the batch already existed. The returned id is not portable across
// store backends; callers must re-query GetBlockIDs for the
// authoritative hash→id mapping.
func (s *Store) StoreBlocks(ctx context.Context, domain uint32, blocks []chain.BlockInfo) (int64, error) {
	if len(blocks) == 0 {
		return 0, nil
	}

	hashes := make([]chain.Hash32, len(blocks))
	heights := make([]int64, len(blocks))
	timestamps := make([]time.Time, len(blocks))
	for i, b := range blocks {
		hashes[i] = b.Hash
		heights[i] = b.Height
		timestamps[i] = b.Timestamp
	}

	var firstID int64
	row := s.pool.QueryRow(ctx, `
		INSERT INTO block (hash, domain, height, "timestamp")
		SELECT u.hash, $1, u.height, u.timestamp
		FROM UNNEST($2::text[], $3::bigint[], $4::timestamptz[]) AS u(hash, height, timestamp)
		ON CONFLICT (domain, hash) DO NOTHING
		RETURNING id`,
		domain, hashes, heights, timestamps,
	)
	switch err := row.Scan(&firstID); {
	case err == nil:
		return firstID, nil
	case isNoRows(err):
		// Every hash in the batch collided with an existing row; that's
		// not an error, just nothing left to insert.
		return 0, nil
	default:
		return 0, fmt.Errorf("store: store_blocks: %w", err)
	}
}
