package pool

import (
	"context"

	"github.com/R3E-Network/teepool/internal/commitment"
	"github.com/R3E-Network/teepool/internal/registry"
)

// OperatorDirectory resolves signing identities and exposes the registry
// epoch. *registry.Registry implements it.
type OperatorDirectory interface {
	Resolve(address string) (registry.Operator, error)
	CurrentEpoch() commitment.Hash
}

// SignatureVerifier checks a signature over a digest against a signer
// identity (an operator's TEE signature address).
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, digest commitment.Hash, signature []byte, signer string) (bool, error)
}

// Clock returns the current time as unsigned seconds. Readings must be
// monotonically non-decreasing.
type Clock interface {
	Now() uint64
}

// Ledger moves funds between identities.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

var _ OperatorDirectory = (*registry.Registry)(nil)
