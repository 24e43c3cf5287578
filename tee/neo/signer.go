// Package neo signs and verifies operator protocol messages with Neo N3
// secp256r1 keys. Private keys never leave the key manager; callers hold
// handles.
package neo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	neokeys "github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/teepool/internal/commitment"
	"github.com/R3E-Network/teepool/tee/keys"
	"github.com/R3E-Network/teepool/tee/types"
)

// SignatureSize is the length of a Neo N3 signature (r || s).
const SignatureSize = 64

// Signer holds operator identities derived inside the enclave.
type Signer struct {
	mu         sync.RWMutex
	keys       *keys.Manager
	identities map[types.KeyHandle]types.Identity
}

// Config for the Neo signer.
type Config struct {
	Keys *keys.Manager
}

// NewSigner creates a signer over a key manager.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.Keys == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	return &Signer{
		keys:       cfg.Keys,
		identities: make(map[types.KeyHandle]types.Identity),
	}, nil
}

// DeriveOperator derives (or returns the existing) identity for path.
func (s *Signer) DeriveOperator(ctx context.Context, path string) (types.Identity, error) {
	if err := ctx.Err(); err != nil {
		return types.Identity{}, err
	}

	handle, err := s.keys.DeriveSigningKey(path)
	if err != nil {
		return types.Identity{}, fmt.Errorf("derive signing key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.identities[handle]; exists {
		return cloneIdentity(id), nil
	}

	pub, err := s.keys.PublicKey(handle)
	if err != nil {
		return types.Identity{}, err
	}
	enc, err := s.keys.DeriveEncryptionKey(path)
	if err != nil {
		return types.Identity{}, fmt.Errorf("derive encryption key: %w", err)
	}

	id := types.Identity{
		Handle:           handle,
		Address:          pub.Address(),
		SignatureAddress: pub.StringCompressed(),
		EncryptionKey:    enc,
	}
	s.identities[handle] = id
	return cloneIdentity(id), nil
}

// Identity returns the identity for a handle.
func (s *Signer) Identity(handle types.KeyHandle) (types.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.identities[handle]
	if !exists {
		return types.Identity{}, types.ErrKeyNotFound
	}
	return cloneIdentity(id), nil
}

// Identities returns every derived identity ordered by address.
func (s *Signer) Identities() []types.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Identity, 0, len(s.identities))
	for _, id := range s.identities {
		out = append(out, cloneIdentity(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// SignDigest signs a protocol digest directly; the digest is not hashed
// again.
func (s *Signer) SignDigest(ctx context.Context, handle types.KeyHandle, digest commitment.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	priv, err := s.keys.PrivateKey(handle)
	if err != nil {
		return nil, err
	}

	h, err := util.Uint256DecodeBytesBE(digest[:])
	if err != nil {
		return nil, fmt.Errorf("decode digest: %w", err)
	}
	return priv.SignHash(h), nil
}

func cloneIdentity(id types.Identity) types.Identity {
	id.EncryptionKey = append([]byte(nil), id.EncryptionKey...)
	return id
}

// Verifier checks operator signatures. A signer identity is the operator's
// hex compressed public key.
type Verifier struct {
	mu   sync.RWMutex
	keys map[string]*neokeys.PublicKey
}

// NewVerifier creates a verifier with an empty public key cache.
func NewVerifier() *Verifier {
	return &Verifier{keys: make(map[string]*neokeys.PublicKey)}
}

// VerifySignature reports whether signature is a valid signature over digest
// by signer. A malformed signer key is an error; a malformed signature is
// simply invalid.
func (v *Verifier) VerifySignature(ctx context.Context, digest commitment.Hash, signature []byte, signer string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(signature) != SignatureSize {
		return false, nil
	}

	pub, err := v.publicKey(signer)
	if err != nil {
		return false, err
	}
	return pub.Verify(signature, digest[:]), nil
}

func (v *Verifier) publicKey(signer string) (*neokeys.PublicKey, error) {
	signer = strings.TrimPrefix(strings.TrimSpace(signer), "0x")

	v.mu.RLock()
	pub, ok := v.keys[signer]
	v.mu.RUnlock()
	if ok {
		return pub, nil
	}

	pub, err := neokeys.NewPublicKeyFromString(signer)
	if err != nil {
		return nil, fmt.Errorf("parse signer key %q: %w", signer, err)
	}

	v.mu.Lock()
	v.keys[signer] = pub
	v.mu.Unlock()
	return pub, nil
}
