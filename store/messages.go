package store

import (
	"context"
	"fmt"

	"github.com/tos-network/ichain-scraper/chain"
)

// MessageTxnPair is one unit of store_messages' input: a decoded message
// and the id of the transaction that dispatched it.
type MessageTxnPair struct {
	Message chain.Message
	TxnID   int64
}

// StoreMessages upserts messages by (origin_mailbox, origin, nonce).
// On conflict, only metadata (timestamp, origin_tx_id) is updated;
// identity fields (msg_id, sender, recipient, nonce) are never
// overwritten: last-writer-wins on metadata, never on identity. Returns
// the maximum nonce inserted or updated in this call, or nil if the
// batch was empty.
func (s *Store) StoreMessages(ctx context.Context, mailbox chain.Addr32, pairs []MessageTxnPair) (*uint32, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	msgIDs := make([]chain.Hash32, len(pairs))
	origins := make([]int64, len(pairs))
	destinations := make([]int64, len(pairs))
	nonces := make([]int64, len(pairs))
	senders := make([]chain.Addr32, len(pairs))
	recipients := make([]chain.Addr32, len(pairs))
	bodies := make([][]byte, len(pairs))
	mailboxes := make([]chain.Addr32, len(pairs))
	timestamps := make([]interface{}, len(pairs))
	txnIDs := make([]int64, len(pairs))

	maxNonce := pairs[0].Message.Nonce
	for i, p := range pairs {
		m := p.Message
		if m.Nonce > maxNonce {
			maxNonce = m.Nonce
		}
		msgIDs[i] = m.MsgID
		origins[i] = int64(m.Origin)
		destinations[i] = int64(m.Destination)
		nonces[i] = int64(m.Nonce)
		senders[i] = m.Sender
		recipients[i] = m.Recipient
		bodies[i] = m.Body
		mailboxes[i] = mailbox
		timestamps[i] = m.Timestamp
		txnIDs[i] = p.TxnID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO message (
			msg_id, origin, destination, nonce, sender, recipient,
			msg_body, origin_mailbox, "timestamp", origin_tx_id
		)
		SELECT
			u.msg_id, u.origin, u.destination, u.nonce, u.sender, u.recipient,
			u.msg_body, u.origin_mailbox, u.ts, u.origin_tx_id
		FROM UNNEST(
			$1::text[], $2::bigint[], $3::bigint[], $4::bigint[], $5::text[], $6::text[],
			$7::bytea[], $8::text[], $9::timestamptz[], $10::bigint[]
		) AS u(
			msg_id, origin, destination, nonce, sender, recipient,
			msg_body, origin_mailbox, ts, origin_tx_id
		)
		ON CONFLICT (origin_mailbox, origin, nonce) DO UPDATE SET
			"timestamp"  = EXCLUDED."timestamp",
			origin_tx_id = EXCLUDED.origin_tx_id`,
		msgIDs, origins, destinations, nonces, senders, recipients,
		bodies, mailboxes, timestamps, txnIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("store: store_messages: %w", err)
	}
	return &maxNonce, nil
}

// LastMessageNonce returns the highest stored nonce for
// (origin_mailbox, origin), or nil if none is stored.
func (s *Store) LastMessageNonce(ctx context.Context, mailbox chain.Addr32, origin uint32) (*uint32, error) {
	var nonce *int64
	err := s.pool.QueryRow(ctx, `
		SELECT MAX(nonce) FROM message WHERE origin_mailbox = $1 AND origin = $2`,
		mailbox, origin,
	).Scan(&nonce)
	if err != nil {
		return nil, fmt.Errorf("store: last_message_nonce: %w", err)
	}
	if nonce == nil {
		return nil, nil
	}
	n := uint32(*nonce)
	return &n, nil
}
