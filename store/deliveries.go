package store

import (
	"context"
	"fmt"

	"github.com/tos-network/ichain-scraper/chain"
)

// DeliveryTxnPair is one unit of store_deliveries' input.
type DeliveryTxnPair struct {
	MsgID  chain.Hash32
	Domain uint32 // destination domain observing the delivery
	TxnID  int64
}

// StoreDeliveries upserts delivery observations, unique per (msg_id,
// domain). Returns the number of newly inserted rows; deliveries that
// were already present are not counted.
func (s *Store) StoreDeliveries(ctx context.Context, pairs []DeliveryTxnPair) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}

	msgIDs := make([]chain.Hash32, len(pairs))
	domains := make([]int64, len(pairs))
	txnIDs := make([]int64, len(pairs))
	for i, p := range pairs {
		msgIDs[i] = p.MsgID
		domains[i] = int64(p.Domain)
		txnIDs[i] = p.TxnID
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO delivered_message (msg_id, domain, destination_tx_id)
		SELECT u.msg_id, u.domain, u.txn_id
		FROM UNNEST($1::text[], $2::bigint[], $3::bigint[]) AS u(msg_id, domain, txn_id)
		ON CONFLICT (msg_id, domain) DO NOTHING`,
		msgIDs, domains, txnIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("store: store_deliveries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
