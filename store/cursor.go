package store

import (
	"context"
	"fmt"
)

// CursorHeight returns the persisted watermark for domain, or 0 if no
// cursor row exists yet (a fresh domain starts at height 0 unless
// overridden by chains.<name>.index_from in configuration).
func (s *Store) CursorHeight(ctx context.Context, domain uint32) (int64, error) {
	var height int64
	err := s.pool.QueryRow(ctx, `SELECT height FROM cursor WHERE domain = $1`, domain).Scan(&height)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: cursor_height: %w", err)
	}
	return height, nil
}

// CursorSet upserts the domain's cursor height.
func (s *Store) CursorSet(ctx context.Context, domain uint32, height int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cursor (domain, height, time_updated) VALUES ($1, $2, now())
		ON CONFLICT (domain) DO UPDATE SET height = EXCLUDED.height, time_updated = EXCLUDED.time_updated`,
		domain, height,
	)
	if err != nil {
		return fmt.Errorf("store: cursor_set: %w", err)
	}
	return nil
}
