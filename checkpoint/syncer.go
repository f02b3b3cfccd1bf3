package checkpoint

import "context"

// CheckpointSyncer is the external per-validator storage interface
// consumed by the quorum syncer. Implementations read from wherever a
// validator publishes its signed checkpoints (S3, GCS, a local
// directory, ...); only the interface is specified here; a concrete
// implementation is a deployment concern.
type CheckpointSyncer interface {
	// LatestIndex returns the highest checkpoint index this validator
	// claims to have signed, or nil if the validator has published
	// nothing (or is unreachable; callers treat errors and absence
	// identically: skip this validator).
	LatestIndex(ctx context.Context) (*uint32, error)

	// FetchCheckpoint returns the signed checkpoint at index, or nil if
	// the validator has no checkpoint at that index.
	FetchCheckpoint(ctx context.Context, index uint32) (*SignedCheckpoint, error)
}
