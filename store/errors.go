package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// isNoRows reports whether err is pgx's "no rows in result set" sentinel,
// which batch-insert helpers treat as "nothing new to insert, every hash
// in the batch already existed", not a failure.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
