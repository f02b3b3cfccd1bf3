package checkpoint

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// digest is the EIP-191 personal-message hash of a Checkpoint:
// validators sign Keccak256("\x19Ethereum Signed Message:\n32" ||
// checkpointHash), not the raw checkpoint hash.
func digest(c Checkpoint) [32]byte {
	inner := checkpointHash(c)
	prefixed := append([]byte("\x19Ethereum Signed Message:\n32"), inner[:]...)
	return keccak256(prefixed)
}

// checkpointHash is the Keccak256 of the checkpoint's canonical encoding:
// mailbox || root || index (big-endian uint32), the pre-image validators
// actually sign over before the EIP-191 wrapping.
func checkpointHash(c Checkpoint) [32]byte {
	buf := make([]byte, 0, 32+32+4)
	buf = append(buf, hexToBytes32(c.Mailbox)[:]...)
	buf = append(buf, hexToBytes32(c.Root)[:]...)
	buf = append(buf, byte(c.Index>>24), byte(c.Index>>16), byte(c.Index>>8), byte(c.Index))
	return keccak256(buf)
}

func keccak256(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hexToBytes32(s string) [32]byte {
	var out [32]byte
	b := hexDecodeLoose(s)
	n := len(b)
	if n > 32 {
		n = 32
	}
	copy(out[32-n:], b[len(b)-n:])
	return out
}

func hexDecodeLoose(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi := hexNibble(s[2*i])
		lo := hexNibble(s[2*i+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// recoverSigner recovers the signer address from sig over checkpoint c.
// The signature is the standard 65-byte [R || S || V] EVM format.
func recoverSigner(c Checkpoint, sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", fmt.Errorf("checkpoint: signature must be 65 bytes, got %d", len(sig))
	}
	h := digest(c)

	// btcec wants the recovery-id byte first, in [27,30] or [0,3] range.
	recID := sig[64]
	if recID >= 27 {
		recID -= 27
	}
	compact := make([]byte, 65)
	compact[0] = recID + 27
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, h[:])
	if err != nil {
		return "", fmt.Errorf("checkpoint: recover signer: %w", err)
	}
	return addressFromPubkey(pub), nil
}

// addressFromPubkey derives the 20-byte EVM-style address (last 20 bytes
// of Keccak256 of the uncompressed public key, sans the 0x04 prefix).
func addressFromPubkey(pub *btcec.PublicKey) string {
	raw := pub.SerializeUncompressed() // 0x04 || X(32) || Y(32)
	h := keccak256(raw[1:])
	addr := h[12:]
	return "0x" + bytesToHex(addr)
}

func bytesToHex(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[2*i] = hexdigits[v>>4]
		out[2*i+1] = hexdigits[v&0xf]
	}
	return string(out)
}
