package checkpoint

import (
	"context"
	"sort"
	"strings"

	"github.com/tos-network/ichain-scraper/log"
)

// Syncer implements the checkpoint quorum discovery algorithm: it is
// the "sibling role" half of validator signature aggregation that's in
// scope for this repository; producing and signing new checkpoints is
// out of scope.
type Syncer struct {
	registry   *Registry
	validators []string // declared validator set, in config order
	threshold  int
	log        *log.Logger
}

// NewSyncer builds a Syncer over the given declared validator set and
// threshold. Validators not present in registry are tolerated: errors
// and absent validators are both treated as "no claim".
func NewSyncer(registry *Registry, validators []string, threshold int) *Syncer {
	return &Syncer{
		registry:   registry,
		validators: validators,
		threshold:  threshold,
		log:        log.New("component", "checkpoint"),
	}
}

// FetchCheckpointInRange implements fetch_checkpoint_in_range: it finds
// the highest index in [minIndex, maxIndex] with a confirmed quorum,
// descending from the highest index any `threshold` validators claim to
// have signed.
func (s *Syncer) FetchCheckpointInRange(ctx context.Context, minIndex, maxIndex uint32) (*MultisigSignedCheckpoint, error) {
	var latestIndices []uint32
	for _, addr := range s.validators {
		syncer, ok := s.registry.Get(addr)
		if !ok {
			continue
		}
		idx, err := syncer.LatestIndex(ctx)
		if err != nil || idx == nil {
			continue // errors and absence are indistinguishable to this algorithm
		}
		latestIndices = append(latestIndices, *idx)
	}

	if len(latestIndices) == 0 {
		return nil, nil
	}

	sort.Sort(sort.Reverse(sortableU32(latestIndices)))

	if s.threshold <= 0 || s.threshold > len(latestIndices) {
		return nil, nil
	}
	claim := latestIndices[s.threshold-1]

	startIndex := claim
	if startIndex > maxIndex {
		startIndex = maxIndex
	}
	if minIndex > startIndex {
		return nil, nil
	}

	for index := startIndex; ; index-- {
		ckpt, err := s.FetchCheckpoint(ctx, index)
		if err != nil {
			s.log.Warn("fetch_checkpoint failed, continuing descent", "index", index, "err", err)
		} else if ckpt != nil {
			return ckpt, nil
		}
		if index == minIndex {
			break
		}
	}
	return nil, nil
}

// FetchCheckpoint implements fetch_checkpoint: it polls every validator
// for its signature at index, recovers and confirms each signer, groups
// by root, and returns as soon as one root reaches threshold distinct
// signers.
//
// Validators usually agree on one root per index, but a partition or
// race may split roots, so quorum is evaluated per root, not per index.
func (s *Syncer) FetchCheckpoint(ctx context.Context, index uint32) (*MultisigSignedCheckpoint, error) {
	byRoot := make(map[string][]ValidatorSignature)

	for _, addr := range s.validators {
		syncer, ok := s.registry.Get(addr)
		if !ok {
			continue
		}
		sc, err := syncer.FetchCheckpoint(ctx, index)
		if err != nil || sc == nil {
			continue
		}
		if sc.Checkpoint.Index != index {
			continue
		}

		signer, err := recoverSigner(sc.Checkpoint, sc.Signature)
		if err != nil {
			s.log.Debug("signature recovery failed", "validator", addr, "index", index, "err", err)
			continue
		}
		if !strings.EqualFold(signer, addr) {
			s.log.Debug("signer mismatch, discarding signature", "declared", addr, "recovered", signer, "index", index)
			continue
		}

		root := sc.Checkpoint.Root
		byRoot[root] = append(byRoot[root], ValidatorSignature{Signer: signer, Signature: sc.Signature})

		if len(byRoot[root]) >= s.threshold {
			return &MultisigSignedCheckpoint{
				Checkpoint: sc.Checkpoint,
				Signatures: byRoot[root],
			}, nil
		}
	}

	return nil, nil
}

type sortableU32 []uint32

func (s sortableU32) Len() int           { return len(s) }
func (s sortableU32) Less(i, j int) bool { return s[i] < s[j] }
func (s sortableU32) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
