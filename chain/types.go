// Package chain holds the semantic domain types shared by the store,
// continuity validator, and chain scraper: the entities described in the
// data model (Domain, Block, Transaction, Message, DeliveredMessage,
// GasPayment, Cursor) plus the small value types the provider interfaces
// exchange (BlockInfo, TxnInfo, LogMeta). Keeping these in one leaf
// package avoids an import cycle between `store` and `chainscraper`.
package chain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Hash32 is a 32-byte hash rendered as lower-case 0x-prefixed hex.
type Hash32 = string

// Addr20 is a 20-byte chain address rendered as lower-case 0x-prefixed hex.
type Addr20 = string

// Addr32 is a 32-byte interchain address (left-padded EVM address, or a
// native 32-byte address on non-EVM domains) rendered as hex.
type Addr32 = string

// Domain is a chain identity, seeded from configuration at bootstrap.
type Domain struct {
	DomainID uint32
	Name     string
}

// BlockInfo is what a provider returns when asked for a block by hash.
type BlockInfo struct {
	Hash      Hash32
	Height    int64
	Timestamp time.Time
}

// Block is a block observed on some domain, normalized into the store.
type Block struct {
	ID          int64
	Hash        Hash32
	Domain      uint32
	Height      int64
	Timestamp   time.Time
	TimeCreated time.Time
}

// TxnInfo is what a provider returns when asked for a transaction by
// hash. Receipt is nil until the transaction has confirmed; a nil
// Receipt must never be accepted into the store (see ErrReceiptMissing).
type TxnInfo struct {
	Hash    Hash32
	Nonce   int64
	Sender  Addr20
	Receipt *Receipt // nil means "pending, no receipt yet"
}

// Receipt carries the gas accounting fields persisted on Transaction.
type Receipt struct {
	Recipient            *Addr20
	GasLimit             float64
	GasUsed              float64
	GasPrice             float64
	EffectiveGasPrice    float64
	MaxFeePerGas         float64
	MaxPriorityFeePerGas float64
	CumulativeGasUsed    float64
}

// Transaction is a chain transaction containing at least one indexed log.
type Transaction struct {
	ID        int64
	BlockID   int64
	Hash      Hash32
	Nonce     int64
	Sender    Addr20
	Recipient *Addr20

	GasLimit             float64
	GasUsed              float64
	GasPrice             float64
	EffectiveGasPrice    float64
	MaxFeePerGas         float64
	MaxPriorityFeePerGas float64
	CumulativeGasUsed    float64

	TimeCreated time.Time
}

// StorableTxn pairs a provider TxnInfo with the block id it belongs to,
// the unit the store's batch txn insert operates on.
type StorableTxn struct {
	Info    TxnInfo
	BlockID int64
}

// LogMeta is the block/transaction provenance of one on-chain log,
// common to both Message and DeliveredMessage observations.
type LogMeta struct {
	BlockHash Hash32
	BlockNum  int64
	Timestamp time.Time
	TxHash    Hash32
}

// Message is a dispatched interchain message.
type Message struct {
	ID            int64
	MsgID         Hash32
	Origin        uint32
	Destination   uint32
	Nonce         uint32
	Sender        Addr32
	Recipient     Addr32
	Body          []byte
	OriginMailbox Addr32
	Timestamp     time.Time
	OriginTxID    int64
	TimeCreated   time.Time

	// Meta carries the block/tx provenance used by record() to resolve
	// OriginTxID; it is not a persisted column.
	Meta LogMeta
}

// DeliveredMessage is a delivery observation on a destination chain.
type DeliveredMessage struct {
	ID              int64
	MsgID           Hash32
	Domain          uint32 // destination
	DestinationTxID int64
	TimeCreated     time.Time

	Meta LogMeta
}

// GasPayment is a native-token gas payment for a msg_id.
type GasPayment struct {
	ID          int64
	Domain      uint32
	MsgID       Hash32
	Amount      decimal.Decimal
	TxID        int64
	TimeCreated time.Time

	Meta LogMeta
}

// Cursor is the per-domain indexing watermark.
type Cursor struct {
	Domain      uint32
	Height      int64
	TimeUpdated time.Time
}
