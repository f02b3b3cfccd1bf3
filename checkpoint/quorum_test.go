package checkpoint

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// fakeSyncer is an in-memory CheckpointSyncer used for tests; it has no
// network/storage dependency.
type fakeSyncer struct {
	latest       *uint32
	checkpoints  map[uint32]*SignedCheckpoint
	latestErr    error
	fetchErr     error
}

func (f *fakeSyncer) LatestIndex(ctx context.Context) (*uint32, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest, nil
}

func (f *fakeSyncer) FetchCheckpoint(ctx context.Context, index uint32) (*SignedCheckpoint, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.checkpoints[index], nil
}

func u32p(v uint32) *uint32 { return &v }

// signCheckpoint produces a valid Ethereum-style [R||S||V] signature for
// a test validator key, matching the production verification path in
// signing.go exactly.
func signCheckpoint(t *testing.T, priv *btcec.PrivateKey, c Checkpoint) []byte {
	t.Helper()
	h := digest(c)
	compact := btcecdsa.SignCompact(priv, h[:], false)
	// compact = [27+recid || R(32) || S(32)]; convert to [R||S||V].
	v := compact[0]
	if v >= 31 {
		v -= 4 // compressed-key recovery ids are offset by 4
	}
	v -= 27
	sig := make([]byte, 65)
	copy(sig, compact[1:65])
	sig[64] = v
	return sig
}

func newTestValidator(t *testing.T) (addr string, priv *btcec.PrivateKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return addressFromPubkey(priv.PubKey()), priv
}

func TestFetchCheckpoint_QuorumOnMatchingRoot(t *testing.T) {
	reg := NewRegistry()
	var addrs []string
	var privs []*btcec.PrivateKey
	for i := 0; i < 4; i++ {
		a, p := newTestValidator(t)
		addrs = append(addrs, a)
		privs = append(privs, p)
	}

	c := Checkpoint{Root: "0xroot1", Index: 97, Mailbox: "0xmailbox"}
	for i, a := range addrs {
		sig := signCheckpoint(t, privs[i], c)
		reg.Register(a, &fakeSyncer{checkpoints: map[uint32]*SignedCheckpoint{
			97: {Checkpoint: c, Signature: sig},
		}})
	}

	s := NewSyncer(reg, addrs, 3)
	got, err := s.FetchCheckpoint(context.Background(), 97)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected a quorum checkpoint, got nil")
	}
	if len(got.Signatures) != 3 {
		t.Fatalf("expected exactly 3 signatures (threshold), got %d", len(got.Signatures))
	}
	if got.Checkpoint.Root != c.Root || got.Checkpoint.Index != c.Index {
		t.Fatalf("unexpected checkpoint returned: %+v", got.Checkpoint)
	}
	seen := map[string]bool{}
	for _, vs := range got.Signatures {
		if seen[vs.Signer] {
			t.Fatalf("duplicate signer %s in quorum", vs.Signer)
		}
		seen[vs.Signer] = true
	}
}

func TestFetchCheckpoint_SplitRootsNoQuorum(t *testing.T) {
	reg := NewRegistry()
	var addrs []string
	var privs []*btcec.PrivateKey
	for i := 0; i < 4; i++ {
		a, p := newTestValidator(t)
		addrs = append(addrs, a)
		privs = append(privs, p)
	}

	rootA := Checkpoint{Root: "0xrootA", Index: 97, Mailbox: "0xmailbox"}
	rootB := Checkpoint{Root: "0xrootB", Index: 97, Mailbox: "0xmailbox"}

	for i, a := range addrs {
		c := rootA
		if i >= 2 {
			c = rootB
		}
		sig := signCheckpoint(t, privs[i], c)
		reg.Register(a, &fakeSyncer{checkpoints: map[uint32]*SignedCheckpoint{
			97: {Checkpoint: c, Signature: sig},
		}})
	}

	s := NewSyncer(reg, addrs, 3)
	got, err := s.FetchCheckpoint(context.Background(), 97)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no quorum with a 2/2 root split, got %+v", got)
	}
}

func TestFetchCheckpoint_SignerMismatchDiscarded(t *testing.T) {
	reg := NewRegistry()
	addrA, privA := newTestValidator(t)
	addrB, _ := newTestValidator(t)

	c := Checkpoint{Root: "0xroot", Index: 1, Mailbox: "0xmailbox"}
	sig := signCheckpoint(t, privA, c) // signed by A

	// Declared as addrB's checkpoint, but actually signed by A.
	reg.Register(addrB, &fakeSyncer{checkpoints: map[uint32]*SignedCheckpoint{
		1: {Checkpoint: c, Signature: sig},
	}})

	s := NewSyncer(reg, []string{addrA, addrB}, 1)
	got, err := s.FetchCheckpoint(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected signer mismatch to be discarded silently, got %+v", got)
	}
}

func TestFetchCheckpointInRange_DescendsOnMissingThenFinds(t *testing.T) {
	reg := NewRegistry()
	var addrs []string
	var privs []*btcec.PrivateKey
	for i := 0; i < 4; i++ {
		a, p := newTestValidator(t)
		addrs = append(addrs, a)
		privs = append(privs, p)
	}

	fakes := make([]*fakeSyncer, 4)
	for i := range fakes {
		fakes[i] = &fakeSyncer{checkpoints: map[uint32]*SignedCheckpoint{}}
		reg.Register(addrs[i], fakes[i])
	}

	// latest_index claims: [100, 98, 97, 80] -> threshold=3 -> claim = 97.
	fakes[0].latest = u32p(100)
	fakes[1].latest = u32p(98)
	fakes[2].latest = u32p(97)
	fakes[3].latest = u32p(80)

	// At index 97, only 2 validators actually have a checkpoint (below
	// threshold); at 96, three agree on the same root.
	c97 := Checkpoint{Root: "0xroot97", Index: 97, Mailbox: "0xmailbox"}
	c96 := Checkpoint{Root: "0xroot96", Index: 96, Mailbox: "0xmailbox"}

	fakes[0].checkpoints[97] = &SignedCheckpoint{Checkpoint: c97, Signature: signCheckpoint(t, privs[0], c97)}
	fakes[1].checkpoints[97] = &SignedCheckpoint{Checkpoint: c97, Signature: signCheckpoint(t, privs[1], c97)}

	fakes[0].checkpoints[96] = &SignedCheckpoint{Checkpoint: c96, Signature: signCheckpoint(t, privs[0], c96)}
	fakes[1].checkpoints[96] = &SignedCheckpoint{Checkpoint: c96, Signature: signCheckpoint(t, privs[1], c96)}
	fakes[2].checkpoints[96] = &SignedCheckpoint{Checkpoint: c96, Signature: signCheckpoint(t, privs[2], c96)}

	s := NewSyncer(reg, addrs, 3)
	got, err := s.FetchCheckpointInRange(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected to find a quorum checkpoint at index 96")
	}
	if got.Checkpoint.Index != 96 {
		t.Fatalf("expected index 96, got %d", got.Checkpoint.Index)
	}
}

func TestFetchCheckpointInRange_EmptyWhenNoValidatorsRespond(t *testing.T) {
	reg := NewRegistry()
	s := NewSyncer(reg, []string{"0xa", "0xb"}, 1)
	got, err := s.FetchCheckpointInRange(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
