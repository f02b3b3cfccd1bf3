package chainscraper

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/tos-network/ichain-scraper/chain"
	"github.com/tos-network/ichain-scraper/continuity"
	"github.com/tos-network/ichain-scraper/log"
	"github.com/tos-network/ichain-scraper/metrics"
	"github.com/tos-network/ichain-scraper/rangecursor"
	"github.com/tos-network/ichain-scraper/retry"
	"github.com/tos-network/ichain-scraper/store"
)

// idCacheSize bounds the block/txn hash→id caches. A sync loop only ever
// touches hashes inside its current scrape range plus whatever range it
// backtracks to, so a few thousand entries comfortably covers the working
// set without growing unbounded across a long-running process.
const idCacheSize = 4096

// Backend is the subset of *store.Store the sync loop needs. Narrowing
// it to an interface here keeps the loop testable without a database.
type Backend interface {
	GetBlockIDs(ctx context.Context, domain uint32, hashes []chain.Hash32) (map[chain.Hash32]store.BlockHit, error)
	StoreBlocks(ctx context.Context, domain uint32, blocks []chain.BlockInfo) (int64, error)
	GetTxnIDs(ctx context.Context, hashes []chain.Hash32) (map[chain.Hash32]int64, error)
	StoreTxns(ctx context.Context, txns []chain.StorableTxn) (int64, error)
	StoreMessages(ctx context.Context, mailbox chain.Addr32, pairs []store.MessageTxnPair) (*uint32, error)
	StoreDeliveries(ctx context.Context, pairs []store.DeliveryTxnPair) (int, error)
	StoreGasPayments(ctx context.Context, pairs []store.GasPaymentTxnPair) error
	LastMessageNonce(ctx context.Context, mailbox chain.Addr32, origin uint32) (*uint32, error)
	CursorHeight(ctx context.Context, domain uint32) (int64, error)
	CursorSet(ctx context.Context, domain uint32, height int64) error
}

// Scraper drives the sync loop for exactly one chain/mailbox pair. Create
// one per configured chain and run each in its own goroutine (see
// package agentrt).
type Scraper struct {
	domain  uint32
	mailbox chain.Addr32

	provider Provider
	db       Backend
	cursor   *rangecursor.Cursor
	backoff  retry.Policy

	lastNonce                *uint32
	lastValidRangeStartBlock uint32

	blockIDCache *lru.ARCCache // chain.Hash32 -> store.BlockHit
	txnIDCache   *lru.ARCCache // chain.Hash32 -> int64

	metrics   *metrics.Metrics
	chainName string // label used on per-chain metric series
	log       *log.Logger
}

// New bootstraps a Scraper: it reads the last stored nonce and persisted
// cursor height from db, then constructs the block-range cursor.
func New(ctx context.Context, domain uint32, chainName string, mailbox chain.Addr32, provider Provider, db Backend, cursorCfg rangecursor.Config, m *metrics.Metrics) (*Scraper, error) {
	lastNonce, err := db.LastMessageNonce(ctx, mailbox, domain)
	if err != nil {
		return nil, fmt.Errorf("chainscraper: bootstrap last_message_nonce: %w", err)
	}
	height, err := db.CursorHeight(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("chainscraper: bootstrap cursor_height: %w", err)
	}

	cur := rangecursor.New(domain, uint32(height), provider, cursorCfg)

	blockIDCache, err := lru.NewARC(idCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chainscraper: new block id cache: %w", err)
	}
	txnIDCache, err := lru.NewARC(idCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chainscraper: new txn id cache: %w", err)
	}

	return &Scraper{
		domain:                   domain,
		mailbox:                  mailbox,
		provider:                 provider,
		db:                       db,
		cursor:                   cur,
		backoff:                  retry.DefaultPolicy,
		lastNonce:                lastNonce,
		lastValidRangeStartBlock: uint32(height),
		blockIDCache:             blockIDCache,
		txnIDCache:               txnIDCache,
		metrics:                  m,
		chainName:                chainName,
		log:                      log.New("component", "chainscraper", "chain", chainName),
	}, nil
}

// errFatal wraps a store error that should abort the chain entirely
// rather than be retried, e.g. an irrecoverable constraint violation.
type errFatal struct{ err error }

func (e *errFatal) Error() string { return e.err.Error() }
func (e *errFatal) Unwrap() error { return e.err }

// Run executes the sync loop until ctx is cancelled or a fatal error is
// encountered. Every suspension point (provider RPCs, DB queries, the
// cursor's rate-limit wait) observes ctx.
func (s *Scraper) Run(ctx context.Context) error {
	start := s.cursor.CurrentPosition()
	s.log.Info("resuming chain sync", "from", start)
	s.setHeightMetrics(start)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		startBlock := s.cursor.CurrentPosition()
		from, to, err := s.cursor.NextRange(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.log.Warn("failed to get next block range", "err", err)
			continue
		}
		if from == to {
			// Caught up to the tip: nothing new to scan yet.
			continue
		}

		sortedMessages, deliveries, gasPayments, err := s.scrapeRange(ctx, from, to)
		if err != nil {
			var fatal *errFatal
			if errors.As(err, &fatal) {
				return fatal.err
			}
			s.log.Warn("scrape_range failed, will retry", "from", from, "to", to, "err", err)
			continue
		}

		validation := continuity.Validate(s.lastNonce, sortedMessages)

		switch validation {
		case continuity.Valid:
			maxNonce, err := s.record(ctx, sortedMessages, deliveries, gasPayments)
			if err != nil {
				var fatal *errFatal
				if errors.As(err, &fatal) {
					return fatal.err
				}
				s.log.Warn("record failed, backtracking to range start", "from", from, "err", err)
				s.cursor.Backtrack(startBlock)
				continue
			}
			s.cursor.Update(to)
			if err := s.db.CursorSet(ctx, s.domain, int64(to)); err != nil {
				s.log.Warn("persisting cursor failed", "height", to, "err", err)
			}
			if maxNonce != nil {
				s.lastNonce = maxNonce
			}
			s.lastValidRangeStartBlock = from
			s.setHeightMetrics(to)

		case continuity.Empty:
			if _, err := s.record(ctx, sortedMessages, deliveries, gasPayments); err != nil {
				var fatal *errFatal
				if errors.As(err, &fatal) {
					return fatal.err
				}
				s.log.Warn("record failed on empty range, backtracking", "from", from, "err", err)
				s.cursor.Backtrack(startBlock)
				continue
			}
			s.cursor.Update(to)
			if err := s.db.CursorSet(ctx, s.domain, int64(to)); err != nil {
				s.log.Warn("persisting cursor failed", "height", to, "err", err)
			}
			s.setHeightMetrics(to)

		case continuity.InvalidContinuation:
			s.incMissed()
			s.log.Warn("invalid continuation, re-indexing from last valid range start",
				"last_nonce", s.lastNonce, "from", from, "to", to, "last_valid_range_start", s.lastValidRangeStartBlock)
			s.cursor.Backtrack(s.lastValidRangeStartBlock)
			s.setHeightMetrics(s.lastValidRangeStartBlock)

		case continuity.ContainsGaps:
			s.incMissed()
			s.log.Warn("gaps in range, re-indexing the same range",
				"last_nonce", s.lastNonce, "from", from, "to", to)
			s.cursor.Backtrack(startBlock)
		}
	}
}

func (s *Scraper) setHeightMetrics(h uint32) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChainTip.WithLabelValues(s.chainName).Set(float64(h))
	s.metrics.CursorHeight.WithLabelValues(s.chainName).Set(float64(h))
}

func (s *Scraper) incMissed() {
	if s.metrics == nil {
		return
	}
	s.metrics.MissedMessages.WithLabelValues(s.chainName).Inc()
}

// scrapeRange fetches the raw dispatch/delivery/gas-payment logs for
// [from, to] and drops any message this mailbox has already stored.
func (s *Scraper) scrapeRange(ctx context.Context, from, to uint32) (messages []chain.Message, deliveries []chain.DeliveredMessage, gasPayments []chain.GasPayment, err error) {
	err = retry.Do(ctx, s.backoff, func() error {
		var e error
		messages, e = s.provider.FetchSortedMessages(ctx, from, to)
		return e
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch_sorted_messages: %w", err)
	}

	err = retry.Do(ctx, s.backoff, func() error {
		var e error
		deliveries, e = s.provider.FetchDeliveredMessages(ctx, from, to)
		return e
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch_delivered_messages: %w", err)
	}

	err = retry.Do(ctx, s.backoff, func() error {
		var e error
		gasPayments, e = s.provider.FetchGasPayments(ctx, from, to)
		return e
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch_gas_payments: %w", err)
	}

	s.log.Info("indexed block range", "from", from, "to", to,
		"messages", len(messages), "deliveries", len(deliveries), "gas_payments", len(gasPayments))

	filtered := messages[:0:0]
	for _, m := range messages {
		if s.lastNonce != nil && m.Nonce <= *s.lastNonce {
			continue
		}
		filtered = append(filtered, m)
	}
	s.log.Debug("filtered already-indexed messages", "from", from, "to", to, "remaining", len(filtered))

	return filtered, deliveries, gasPayments, nil
}

// record normalizes and persists one batch: it ensures every referenced
// block and transaction exists (FK integrity demands blocks before
// transactions, transactions before messages/deliveries/gas-payments),
// then writes deliveries, gas payments, and finally messages. Returns the
// maximum message nonce in the batch, or nil if no messages were given.
func (s *Scraper) record(ctx context.Context, messages []chain.Message, deliveries []chain.DeliveredMessage, gasPayments []chain.GasPayment) (*uint32, error) {
	txByHash, err := s.ensureBlocksAndTxns(ctx, messages, deliveries, gasPayments)
	if err != nil {
		return nil, err
	}

	if len(deliveries) > 0 {
		pairs := make([]store.DeliveryTxnPair, 0, len(deliveries))
		for _, d := range deliveries {
			txnID, ok := txByHash[d.Meta.TxHash]
			if !ok {
				return nil, &errFatal{fmt.Errorf("record: delivery %s: missing txn for hash %s", d.MsgID, d.Meta.TxHash)}
			}
			pairs = append(pairs, store.DeliveryTxnPair{MsgID: d.MsgID, Domain: s.domain, TxnID: txnID})
		}
		n, err := s.db.StoreDeliveries(ctx, pairs)
		if err != nil {
			return nil, fmt.Errorf("record: store_deliveries: %w", err)
		}
		if s.metrics != nil {
			s.metrics.DeliveriesStored.WithLabelValues(s.chainName).Add(float64(n))
		}
	}

	if len(gasPayments) > 0 {
		pairs := make([]store.GasPaymentTxnPair, 0, len(gasPayments))
		for _, p := range gasPayments {
			txnID, ok := txByHash[p.Meta.TxHash]
			if !ok {
				return nil, &errFatal{fmt.Errorf("record: gas payment %s: missing txn for hash %s", p.MsgID, p.Meta.TxHash)}
			}
			pairs = append(pairs, store.GasPaymentTxnPair{Payment: p, TxnID: txnID})
		}
		if err := s.db.StoreGasPayments(ctx, pairs); err != nil {
			return nil, fmt.Errorf("record: store_gas_payments: %w", err)
		}
	}

	if len(messages) == 0 {
		return nil, nil
	}

	pairs := make([]store.MessageTxnPair, 0, len(messages))
	for _, m := range messages {
		txnID, ok := txByHash[m.Meta.TxHash]
		if !ok {
			return nil, &errFatal{fmt.Errorf("record: message %s: missing txn for hash %s", m.MsgID, m.Meta.TxHash)}
		}
		pairs = append(pairs, store.MessageTxnPair{Message: m, TxnID: txnID})
	}
	maxNonce, err := s.db.StoreMessages(ctx, s.mailbox, pairs)
	if err != nil {
		return nil, fmt.Errorf("record: store_messages: %w", err)
	}
	if s.metrics != nil {
		s.metrics.MessagesStored.WithLabelValues(s.chainName).Add(float64(len(messages)))
	}
	return maxNonce, nil
}

// ensureBlocksAndTxns resolves every block/transaction hash referenced by
// messages, deliveries, and gas payments to a store-assigned id,
// inserting any that are missing. A block or transaction that the
// provider cannot yet produce (e.g. a receipt-less, unconfirmed txn) is
// retried with bounded backoff before being treated as fatal to the
// batch, and the caller backtracks and retries the whole range.
func (s *Scraper) ensureBlocksAndTxns(ctx context.Context, messages []chain.Message, deliveries []chain.DeliveredMessage, gasPayments []chain.GasPayment) (map[chain.Hash32]int64, error) {
	blockHashes := map[chain.Hash32]struct{}{}
	txHashes := map[chain.Hash32]struct{}{}
	for _, m := range messages {
		blockHashes[m.Meta.BlockHash] = struct{}{}
		txHashes[m.Meta.TxHash] = struct{}{}
	}
	for _, d := range deliveries {
		blockHashes[d.Meta.BlockHash] = struct{}{}
		txHashes[d.Meta.TxHash] = struct{}{}
	}
	for _, p := range gasPayments {
		blockHashes[p.Meta.BlockHash] = struct{}{}
		txHashes[p.Meta.TxHash] = struct{}{}
	}

	blockIDByHash, err := s.ensureBlocks(ctx, keys(blockHashes))
	if err != nil {
		return nil, err
	}
	return s.ensureTxns(ctx, keys(txHashes), blockHashesByTx(messages, deliveries, gasPayments), blockIDByHash)
}

func (s *Scraper) ensureBlocks(ctx context.Context, hashes []chain.Hash32) (map[chain.Hash32]int64, error) {
	out := make(map[chain.Hash32]int64, len(hashes))
	var uncached []chain.Hash32
	for _, h := range hashes {
		if v, ok := s.blockIDCache.Get(h); ok {
			out[h] = v.(store.BlockHit).ID
		} else {
			uncached = append(uncached, h)
		}
	}
	if len(uncached) == 0 {
		return out, nil
	}

	known, err := s.db.GetBlockIDs(ctx, s.domain, uncached)
	if err != nil {
		return nil, fmt.Errorf("ensure_blocks: get_block_ids: %w", err)
	}

	var missing []chain.Hash32
	for _, h := range uncached {
		if hit, ok := known[h]; ok {
			out[h] = hit.ID
			s.blockIDCache.Add(h, hit)
		} else {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	var fetched []chain.BlockInfo
	err = retry.Do(ctx, s.backoff, func() error {
		fetched = fetched[:0]
		for _, h := range missing {
			info, e := s.provider.GetBlock(ctx, h)
			if e != nil {
				return fmt.Errorf("get_block %s: %w", h, e)
			}
			fetched = append(fetched, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure_blocks: %w", err)
	}

	if _, err := s.db.StoreBlocks(ctx, s.domain, fetched); err != nil {
		return nil, fmt.Errorf("ensure_blocks: store_blocks: %w", err)
	}

	reQueried, err := s.db.GetBlockIDs(ctx, s.domain, missing)
	if err != nil {
		return nil, fmt.Errorf("ensure_blocks: re-query: %w", err)
	}
	for h, hit := range reQueried {
		out[h] = hit.ID
		s.blockIDCache.Add(h, hit)
	}
	return out, nil
}

func (s *Scraper) ensureTxns(ctx context.Context, hashes []chain.Hash32, blockHashByTx map[chain.Hash32]chain.Hash32, blockIDByHash map[chain.Hash32]int64) (map[chain.Hash32]int64, error) {
	out := make(map[chain.Hash32]int64, len(hashes))
	var uncached []chain.Hash32
	for _, h := range hashes {
		if v, ok := s.txnIDCache.Get(h); ok {
			out[h] = v.(int64)
		} else {
			uncached = append(uncached, h)
		}
	}
	if len(uncached) == 0 {
		return out, nil
	}

	known, err := s.db.GetTxnIDs(ctx, uncached)
	if err != nil {
		return nil, fmt.Errorf("ensure_txns: get_txn_ids: %w", err)
	}

	var missing []chain.Hash32
	for _, h := range uncached {
		if id, ok := known[h]; ok {
			out[h] = id
			s.txnIDCache.Add(h, id)
		} else {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	var storable []chain.StorableTxn
	err = retry.Do(ctx, s.backoff, func() error {
		storable = storable[:0]
		for _, h := range missing {
			info, e := s.provider.GetTransaction(ctx, h)
			if e != nil {
				return fmt.Errorf("get_transaction %s: %w", h, e)
			}
			if info.Receipt == nil {
				return fmt.Errorf("get_transaction %s: %w", h, store.ErrReceiptMissing)
			}
			blockHash, ok := blockHashByTx[h]
			if !ok {
				return fmt.Errorf("get_transaction %s: no block association", h)
			}
			blockID, ok := blockIDByHash[blockHash]
			if !ok {
				return fmt.Errorf("get_transaction %s: unresolved block %s", h, blockHash)
			}
			storable = append(storable, chain.StorableTxn{Info: info, BlockID: blockID})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure_txns: %w", err)
	}

	if _, err := s.db.StoreTxns(ctx, storable); err != nil {
		return nil, fmt.Errorf("ensure_txns: store_txns: %w", err)
	}

	reQueried, err := s.db.GetTxnIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("ensure_txns: re-query: %w", err)
	}
	for h, id := range reQueried {
		out[h] = id
		s.txnIDCache.Add(h, id)
	}
	return out, nil
}

func keys(m map[chain.Hash32]struct{}) []chain.Hash32 {
	out := make([]chain.Hash32, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	return out
}

func blockHashesByTx(messages []chain.Message, deliveries []chain.DeliveredMessage, gasPayments []chain.GasPayment) map[chain.Hash32]chain.Hash32 {
	out := make(map[chain.Hash32]chain.Hash32)
	for _, m := range messages {
		out[m.Meta.TxHash] = m.Meta.BlockHash
	}
	for _, d := range deliveries {
		out[d.Meta.TxHash] = d.Meta.BlockHash
	}
	for _, p := range gasPayments {
		out[p.Meta.TxHash] = p.Meta.BlockHash
	}
	return out
}
