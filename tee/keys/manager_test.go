package keys

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/teepool/tee/types"
)

var seed = []byte("0123456789abcdef0123456789abcdef")

func TestNew_RequiresSeed(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, types.ErrMasterSeedMissing)
}

func TestDeriveSigningKey_Deterministic(t *testing.T) {
	m1, err := New(seed)
	require.NoError(t, err)
	m2, err := New(seed)
	require.NoError(t, err)

	h1, err := m1.DeriveSigningKey("operator/A")
	require.NoError(t, err)
	h2, err := m2.DeriveSigningKey("operator/A")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, HandleFor("operator/A"), h1)

	again, err := m1.DeriveSigningKey("operator/A")
	require.NoError(t, err)
	assert.Equal(t, h1, again)
	assert.Len(t, m1.Handles(), 1)

	p1, err := m1.PublicKey(h1)
	require.NoError(t, err)
	p2, err := m2.PublicKey(h2)
	require.NoError(t, err)
	assert.True(t, p1.Equal(p2))
}

func TestDeriveSigningKey_DistinctPathsAndSeeds(t *testing.T) {
	m, err := New(seed)
	require.NoError(t, err)
	other, err := New([]byte("another seed"))
	require.NoError(t, err)

	ha, err := m.DeriveSigningKey("operator/A")
	require.NoError(t, err)
	hb, err := m.DeriveSigningKey("operator/B")
	require.NoError(t, err)
	ho, err := other.DeriveSigningKey("operator/A")
	require.NoError(t, err)

	pa, _ := m.PublicKey(ha)
	pb, _ := m.PublicKey(hb)
	po, _ := other.PublicKey(ho)
	assert.False(t, pa.Equal(pb))
	assert.False(t, pa.Equal(po))
}

func TestDeriveEncryptionKey(t *testing.T) {
	m, err := New(seed)
	require.NoError(t, err)

	a1, err := m.DeriveEncryptionKey("operator/A")
	require.NoError(t, err)
	a2, err := m.DeriveEncryptionKey("operator/A")
	require.NoError(t, err)
	b, err := m.DeriveEncryptionKey("operator/B")
	require.NoError(t, err)

	assert.Len(t, a1, 32)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)

	h, err := m.DeriveSigningKey("operator/A")
	require.NoError(t, err)
	priv, err := m.PrivateKey(h)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(priv.Bytes(), a1), "signing and encryption keys must differ")
}

func TestManager_Errors(t *testing.T) {
	m, err := New(seed)
	require.NoError(t, err)

	_, err = m.DeriveSigningKey("  ")
	assert.ErrorIs(t, err, types.ErrInvalidKeyHandle)
	_, err = m.DeriveEncryptionKey("")
	assert.ErrorIs(t, err, types.ErrInvalidKeyHandle)
	_, err = m.PrivateKey("missing")
	assert.ErrorIs(t, err, types.ErrKeyNotFound)
	_, err = m.PublicKey("missing")
	assert.ErrorIs(t, err, types.ErrKeyNotFound)
}

func TestManager_Zero(t *testing.T) {
	m, err := New(seed)
	require.NoError(t, err)
	h, err := m.DeriveSigningKey("operator/A")
	require.NoError(t, err)

	m.Zero()

	_, err = m.PrivateKey(h)
	assert.ErrorIs(t, err, types.ErrKeyNotFound)
	_, err = m.DeriveSigningKey("operator/A")
	assert.ErrorIs(t, err, types.ErrMasterSeedMissing)
	_, err = m.DeriveEncryptionKey("operator/A")
	assert.ErrorIs(t, err, types.ErrMasterSeedMissing)
}
