// Package continuity implements the pure nonce-continuity classification
// used by the chain scraper to decide whether a fetched batch of messages
// can be committed, is empty, or indicates a miss that must be recovered
// by backtracking the block range cursor.
package continuity

import "github.com/tos-network/ichain-scraper/chain"

// Classification is the four-valued result of Validate.
type Classification int

const (
	// Empty means the range contained no dispatches at all.
	Empty Classification = iota
	// Valid means the batch picks up exactly where prior_nonce left off
	// and is internally contiguous.
	Valid
	// InvalidContinuation means the batch is internally contiguous but
	// does not follow prior_nonce, meaning earlier blocks were likely skipped.
	InvalidContinuation
	// ContainsGaps means the batch itself has a hole: a miss inside the
	// current range.
	ContainsGaps
)

func (c Classification) String() string {
	switch c {
	case Empty:
		return "Empty"
	case Valid:
		return "Valid"
	case InvalidContinuation:
		return "InvalidContinuation"
	case ContainsGaps:
		return "ContainsGaps"
	default:
		return "Unknown"
	}
}

// Validate classifies messages, which must already be sorted by nonce
// ascending, relative to priorNonce (nil if no message has been stored
// yet for this mailbox/origin pair).
//
// Equal-nonce pairs are treated as ContainsGaps, never Valid; two
// messages claiming the same nonce can never both be legitimate successors.
func Validate(priorNonce *uint32, messages []chain.Message) Classification {
	if len(messages) == 0 {
		return Empty
	}

	contiguous := true
	for i := 1; i < len(messages); i++ {
		if messages[i].Nonce != messages[i-1].Nonce+1 {
			contiguous = false
			break
		}
	}
	if !contiguous {
		return ContainsGaps
	}

	var expectedFirst uint32
	if priorNonce != nil {
		expectedFirst = *priorNonce + 1
	}
	if messages[0].Nonce != expectedFirst {
		return InvalidContinuation
	}
	return Valid
}
