package store

import (
	"context"
	"fmt"

	"github.com/tos-network/ichain-scraper/chain"
)

// GetTxnIDs returns the known ids for the given transaction hashes.
// Hashes with no existing row are absent from the result.
func (s *Store) GetTxnIDs(ctx context.Context, hashes []chain.Hash32) (map[chain.Hash32]int64, error) {
	out := make(map[chain.Hash32]int64, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT hash, id FROM transaction WHERE hash = ANY($1)`, hashes)
	if err != nil {
		return nil, fmt.Errorf("store: get_txn_ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash chain.Hash32
		var id int64
		if err := rows.Scan(&hash, &id); err != nil {
			return nil, fmt.Errorf("store: get_txn_ids scan: %w", err)
		}
		out[hash] = id
	}
	return out, rows.Err()
}

// StoreTxns inserts transactions not already present (by hash) and
// returns the id of the first newly-inserted row (0 if none were new).
// Any txn in the batch without a receipt fails the whole call with
// ErrReceiptMissing, deliberately a hard per-call failure, not a
// per-row skip, so the caller's retry applies to the batch as a unit.
func (s *Store) StoreTxns(ctx context.Context, txns []chain.StorableTxn) (int64, error) {
	if len(txns) == 0 {
		return 0, nil
	}

	hashes := make([]chain.Hash32, len(txns))
	blockIDs := make([]int64, len(txns))
	nonces := make([]int64, len(txns))
	senders := make([]chain.Addr20, len(txns))
	recipients := make([]*chain.Addr20, len(txns))
	gasLimit := make([]float64, len(txns))
	gasUsed := make([]float64, len(txns))
	gasPrice := make([]float64, len(txns))
	effGasPrice := make([]float64, len(txns))
	maxFee := make([]float64, len(txns))
	maxPriorityFee := make([]float64, len(txns))
	cumGasUsed := make([]float64, len(txns))

	for i, t := range txns {
		if t.Info.Receipt == nil {
			return 0, fmt.Errorf("store: store_txns: txn %s: %w", t.Info.Hash, ErrReceiptMissing)
		}
		r := t.Info.Receipt
		hashes[i] = t.Info.Hash
		blockIDs[i] = t.BlockID
		nonces[i] = t.Info.Nonce
		senders[i] = t.Info.Sender
		recipients[i] = r.Recipient
		gasLimit[i] = r.GasLimit
		gasUsed[i] = r.GasUsed
		gasPrice[i] = r.GasPrice
		effGasPrice[i] = r.EffectiveGasPrice
		maxFee[i] = r.MaxFeePerGas
		maxPriorityFee[i] = r.MaxPriorityFeePerGas
		cumGasUsed[i] = r.CumulativeGasUsed
	}

	var firstID int64
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transaction (
			hash, block_id, nonce, sender, recipient,
			gas_limit, gas_used, gas_price, effective_gas_price,
			max_fee_per_gas, max_priority_fee_per_gas, cumulative_gas_used
		)
		SELECT
			u.hash, u.block_id, u.nonce, u.sender, u.recipient,
			u.gas_limit, u.gas_used, u.gas_price, u.effective_gas_price,
			u.max_fee_per_gas, u.max_priority_fee_per_gas, u.cumulative_gas_used
		FROM UNNEST(
			$1::text[], $2::bigint[], $3::bigint[], $4::text[], $5::text[],
			$6::float8[], $7::float8[], $8::float8[], $9::float8[],
			$10::float8[], $11::float8[], $12::float8[]
		) AS u(
			hash, block_id, nonce, sender, recipient,
			gas_limit, gas_used, gas_price, effective_gas_price,
			max_fee_per_gas, max_priority_fee_per_gas, cumulative_gas_used
		)
		ON CONFLICT (hash) DO NOTHING
		RETURNING id`,
		hashes, blockIDs, nonces, senders, recipients,
		gasLimit, gasUsed, gasPrice, effGasPrice,
		maxFee, maxPriorityFee, cumGasUsed,
	)
	switch err := row.Scan(&firstID); {
	case err == nil:
		return firstID, nil
	case isNoRows(err):
		return 0, nil
	default:
		return 0, fmt.Errorf("store: store_txns: %w", err)
	}
}
