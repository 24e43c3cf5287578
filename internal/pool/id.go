package pool

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
)

// PoolID is an opaque 128-bit unsigned pool identifier, stored little-endian.
type PoolID [16]byte

// NewPoolID returns the id with numeric value v.
func NewPoolID(v uint64) PoolID {
	var id PoolID
	binary.LittleEndian.PutUint64(id[:8], v)
	return id
}

// ParsePoolID parses a decimal (or 0x-prefixed hex) unsigned integer below 2^128.
func ParsePoolID(s string) (PoolID, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return PoolID{}, fmt.Errorf("pool id %q is not an integer", s)
	}
	return PoolIDFromBig(n)
}

// PoolIDFromBig converts n, which must lie in [0, 2^128).
func PoolIDFromBig(n *big.Int) (PoolID, error) {
	var id PoolID
	if n.Sign() < 0 || n.BitLen() > 128 {
		return id, fmt.Errorf("pool id %s out of range", n)
	}
	be := n.FillBytes(make([]byte, 16))
	for i := range be {
		id[i] = be[15-i]
	}
	return id, nil
}

// Big returns the numeric value.
func (id PoolID) Big() *big.Int {
	be := make([]byte, 16)
	for i := range id {
		be[i] = id[15-i]
	}
	return new(big.Int).SetBytes(be)
}

// Bytes returns the 16-byte little-endian encoding used in signed digests.
func (id PoolID) Bytes() []byte {
	out := make([]byte, 16)
	copy(out, id[:])
	return out
}

// Cmp compares numeric values: -1, 0 or +1.
func (id PoolID) Cmp(other PoolID) int {
	for i := 15; i >= 0; i-- {
		switch {
		case id[i] < other[i]:
			return -1
		case id[i] > other[i]:
			return 1
		}
	}
	return 0
}

// String returns the decimal value.
func (id PoolID) String() string {
	return id.Big().String()
}

// MarshalText implements encoding.TextMarshaler.
func (id PoolID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *PoolID) UnmarshalText(text []byte) error {
	parsed, err := ParsePoolID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
