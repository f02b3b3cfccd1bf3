package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tos-network/ichain-scraper/chain"
)

// GasPaymentTxnPair is one unit of store_gas_payments' input.
type GasPaymentTxnPair struct {
	Payment chain.GasPayment
	TxnID   int64
}

// StoreGasPayments inserts gas payment rows. Gas payments are append-only
// observations; there is no natural dedup key beyond the full event
// provenance, so each call inserts unconditionally and callers are
// expected to only call it once per uniquely-observed log (the chain
// scraper's record() already deduplicates by tx hash before reaching
// this point).
func (s *Store) StoreGasPayments(ctx context.Context, pairs []GasPaymentTxnPair) error {
	if len(pairs) == 0 {
		return nil
	}

	domains := make([]int64, len(pairs))
	msgIDs := make([]chain.Hash32, len(pairs))
	amounts := make([]decimal.Decimal, len(pairs))
	txnIDs := make([]int64, len(pairs))
	for i, p := range pairs {
		domains[i] = int64(p.Payment.Domain)
		msgIDs[i] = p.Payment.MsgID
		amounts[i] = p.Payment.Amount
		txnIDs[i] = p.TxnID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO gas_payment (domain, msg_id, amount, tx_id)
		SELECT u.domain, u.msg_id, u.amount, u.tx_id
		FROM UNNEST($1::bigint[], $2::text[], $3::numeric[], $4::bigint[]) AS u(domain, msg_id, amount, tx_id)`,
		domains, msgIDs, amounts, txnIDs,
	)
	if err != nil {
		return fmt.Errorf("store: store_gas_payments: %w", err)
	}
	return nil
}
