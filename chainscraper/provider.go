// Package chainscraper drives the per-chain synchronization loop: it
// repeatedly asks a rangecursor.Cursor for the next block window, fetches
// dispatched/delivered messages and gas payments from an external
// indexer, classifies them with continuity.Validate, normalizes blocks
// and transactions into the store, and advances (or backtracks) the
// cursor accordingly.
package chainscraper

import (
	"context"

	"github.com/tos-network/ichain-scraper/chain"
)

// Provider is the external-indexer capability set one chain family must
// implement to be scraped. An Ethereum JSON-RPC implementation is out of
// scope here; only the interface and an in-memory fake for tests.
type Provider interface {
	// Tip returns the chain's current head height.
	Tip(ctx context.Context) (uint32, error)

	// FetchSortedMessages returns dispatched messages in [from, to],
	// sorted by nonce ascending.
	FetchSortedMessages(ctx context.Context, from, to uint32) ([]chain.Message, error)

	// FetchDeliveredMessages returns delivery observations in [from, to].
	FetchDeliveredMessages(ctx context.Context, from, to uint32) ([]chain.DeliveredMessage, error)

	// FetchGasPayments returns gas payment observations in [from, to].
	// Gas payments share the same contract-sync cursor as messages and
	// deliveries rather than running their own indexing pass.
	FetchGasPayments(ctx context.Context, from, to uint32) ([]chain.GasPayment, error)

	// GetBlock resolves a block hash to its height/timestamp.
	GetBlock(ctx context.Context, hash chain.Hash32) (chain.BlockInfo, error)

	// GetTransaction resolves a transaction hash to its sender/nonce and
	// receipt. Receipt is nil if the transaction has not confirmed yet.
	GetTransaction(ctx context.Context, hash chain.Hash32) (chain.TxnInfo, error)
}
