// Package commitment defines the 32-byte commitments used across the pool
// protocol: the registry epoch chain, challenge message hashes and the
// domain-separated digests operators sign.
package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Size is the byte length of every commitment.
const Size = 32

// Domain separation tags. Each signed digest starts with exactly one of these.
const (
	TagCreation         = "Creation-Attest"
	TagExecutorResponse = "Challenge-Response"
	TagWatchdogResponse = "Watchdog-Response"
	TagDisputeRound     = "Dispute-Round"
)

// Hash is a 32-byte commitment.
type Hash [Size]byte

// Zero is the all-zero hash, the registry chain's starting value.
var Zero Hash

// Bytes returns a copy of the hash as a slice.
func (h Hash) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// String returns the 0x-prefixed hex encoding.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHex decodes a 32-byte hex string with optional 0x prefix.
func ParseHex(raw string) (Hash, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	trimmed = strings.TrimPrefix(trimmed, "0X")

	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return Hash{}, fmt.Errorf("hash must be hex: %w", err)
	}
	return FromBytes(decoded)
}

// FromBytes copies a 32-byte slice into a Hash.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("hash must be %d bytes, got %d", Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Hasher is the collision-resistant hash primitive consumed by the protocol.
// Sum hashes the concatenation of parts.
type Hasher interface {
	Sum(parts ...[]byte) Hash
}

// SHA256 is the default Hasher.
type SHA256 struct{}

// Sum implements Hasher.
func (SHA256) Sum(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Default is the Hasher used when none is configured.
var Default Hasher = SHA256{}

// Fold appends address to the chain: H(prev || address).
func Fold(h Hasher, prev Hash, address string) Hash {
	return h.Sum(prev[:], []byte(address))
}

// FoldAll folds addresses in order starting from Zero.
func FoldAll(h Hasher, addresses ...string) Hash {
	acc := Zero
	for _, a := range addresses {
		acc = Fold(h, acc, a)
	}
	return acc
}

// Message hashes an opaque challenge message.
func Message(h Hasher, message []byte) Hash {
	return h.Sum(message)
}

// Tagged hashes tag || parts.
func Tagged(h Hasher, tag string, parts ...[]byte) Hash {
	all := make([][]byte, 0, len(parts)+1)
	all = append(all, []byte(tag))
	all = append(all, parts...)
	return h.Sum(all...)
}
