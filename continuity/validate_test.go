package continuity

import (
	"testing"

	"github.com/tos-network/ichain-scraper/chain"
)

func nonces(ns ...uint32) []chain.Message {
	msgs := make([]chain.Message, len(ns))
	for i, n := range ns {
		msgs[i] = chain.Message{Nonce: n}
	}
	return msgs
}

func u32(v uint32) *uint32 { return &v }

func TestValidate_Empty(t *testing.T) {
	if got := Validate(nil, nil); got != Empty {
		t.Fatalf("got %v, want Empty", got)
	}
	if got := Validate(u32(6), nonces()); got != Empty {
		t.Fatalf("got %v, want Empty", got)
	}
}

func TestValidate_HappyPath(t *testing.T) {
	got := Validate(nil, nonces(0, 1, 2))
	if got != Valid {
		t.Fatalf("got %v, want Valid", got)
	}
}

func TestValidate_Resume(t *testing.T) {
	got := Validate(u32(4), nonces(5, 6))
	if got != Valid {
		t.Fatalf("got %v, want Valid", got)
	}
}

func TestValidate_SingleExpectedNonce(t *testing.T) {
	got := Validate(u32(6), nonces(7))
	if got != Valid {
		t.Fatalf("got %v, want Valid", got)
	}
}

func TestValidate_ContainsGaps(t *testing.T) {
	got := Validate(u32(6), nonces(7, 9))
	if got != ContainsGaps {
		t.Fatalf("got %v, want ContainsGaps", got)
	}
}

func TestValidate_EqualNoncesAreGaps(t *testing.T) {
	got := Validate(u32(6), nonces(7, 7))
	if got != ContainsGaps {
		t.Fatalf("got %v, want ContainsGaps", got)
	}
}

func TestValidate_InvalidContinuation(t *testing.T) {
	got := Validate(u32(6), nonces(9, 10, 11))
	if got != InvalidContinuation {
		t.Fatalf("got %v, want InvalidContinuation", got)
	}
}

func TestValidate_ValidIffStrictlySequentialFromPrior(t *testing.T) {
	// Valid holds exactly when every nonce is prior+1+i for its index i.
	cases := []struct {
		prior *uint32
		ns    []uint32
		want  Classification
	}{
		{nil, []uint32{0, 1, 2, 3}, Valid},
		{nil, []uint32{1, 2, 3}, InvalidContinuation},
		{u32(0), []uint32{1}, Valid},
		{u32(0), []uint32{2}, InvalidContinuation},
		{u32(10), []uint32{11, 12, 14}, ContainsGaps},
	}
	for _, c := range cases {
		if got := Validate(c.prior, nonces(c.ns...)); got != c.want {
			t.Fatalf("Validate(%v, %v) = %v, want %v", c.prior, c.ns, got, c.want)
		}
	}
}
