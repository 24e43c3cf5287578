// Package keys derives operator key material inside the TEE enclave.
package keys

import (
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	neokeys "github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"golang.org/x/crypto/hkdf"

	"github.com/R3E-Network/teepool/tee/types"
)

var hkdfSalt = []byte("teepool-operator")

// Manager derives deterministic keys from a master seed. The seed and every
// derived private key stay inside the Manager.
type Manager struct {
	mu sync.RWMutex

	// Master seed for key derivation (stays in enclave)
	masterSeed []byte

	keys map[types.KeyHandle]*neokeys.PrivateKey
}

// New creates a key manager over masterSeed.
func New(masterSeed []byte) (*Manager, error) {
	if len(masterSeed) == 0 {
		return nil, types.ErrMasterSeedMissing
	}
	return &Manager{
		masterSeed: append([]byte(nil), masterSeed...),
		keys:       make(map[types.KeyHandle]*neokeys.PrivateKey),
	}, nil
}

// HandleFor returns the handle DeriveSigningKey assigns to path.
func HandleFor(path string) types.KeyHandle {
	h := sha256.Sum256([]byte(path))
	return types.KeyHandle(hex.EncodeToString(h[:16]))
}

// DeriveSigningKey derives the secp256r1 key for path. Repeated calls with
// the same path return the same handle.
func (m *Manager) DeriveSigningKey(path string) (types.KeyHandle, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", types.ErrInvalidKeyHandle)
	}
	handle := HandleFor(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.masterSeed == nil {
		return "", types.ErrMasterSeedMissing
	}
	if _, exists := m.keys[handle]; exists {
		return handle, nil
	}

	okm, err := m.expand("signing/"+path, 32)
	if err != nil {
		return "", err
	}

	// Map OKM into [1, n-1] to avoid invalid private keys.
	n := elliptic.P256().Params().N
	d := new(big.Int).SetBytes(okm)
	d.Mod(d, new(big.Int).Sub(n, big.NewInt(1)))
	d.Add(d, big.NewInt(1))

	priv, err := neokeys.NewPrivateKeyFromBytes(d.FillBytes(make([]byte, 32)))
	if err != nil {
		return "", types.NewTEEError("KEY_DERIVATION", "create signing key", err)
	}

	m.keys[handle] = priv
	return handle, nil
}

// DeriveEncryptionKey derives 32 bytes of symmetric key material for path.
func (m *Manager) DeriveEncryptionKey(path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", types.ErrInvalidKeyHandle)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.masterSeed == nil {
		return nil, types.ErrMasterSeedMissing
	}
	return m.expand("encryption/"+path, 32)
}

// expand must be called with m.mu held.
func (m *Manager) expand(info string, size int) ([]byte, error) {
	reader := hkdf.New(sha256.New, m.masterSeed, hkdfSalt, []byte(info))
	out := make([]byte, size)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, types.NewTEEError("KEY_DERIVATION", "derive key", err)
	}
	return out, nil
}

// PrivateKey returns the derived key for handle.
func (m *Manager) PrivateKey(handle types.KeyHandle) (*neokeys.PrivateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, exists := m.keys[handle]
	if !exists {
		return nil, types.ErrKeyNotFound
	}
	return key, nil
}

// PublicKey returns the public key for handle.
func (m *Manager) PublicKey(handle types.KeyHandle) (*neokeys.PublicKey, error) {
	key, err := m.PrivateKey(handle)
	if err != nil {
		return nil, err
	}
	return key.PublicKey(), nil
}

// Handles returns every derived handle.
func (m *Manager) Handles() []types.KeyHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.KeyHandle, 0, len(m.keys))
	for h := range m.keys {
		out = append(out, h)
	}
	return out
}

// Zero destroys the master seed and every derived key. The manager is
// unusable afterwards.
func (m *Manager) Zero() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.masterSeed {
		m.masterSeed[i] = 0
	}
	m.masterSeed = nil
	for handle, key := range m.keys {
		key.Destroy()
		delete(m.keys, handle)
	}
}
