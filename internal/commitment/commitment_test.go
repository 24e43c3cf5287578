package commitment

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256_SumConcatenates(t *testing.T) {
	want := sha256.Sum256([]byte("abcdef"))
	got := SHA256{}.Sum([]byte("ab"), []byte("cd"), []byte("ef"))
	assert.Equal(t, Hash(want), got)
}

func TestFoldAll_MatchesIteratedFold(t *testing.T) {
	step1 := sha256.Sum256(append(Zero.Bytes(), 'A'))
	step2 := sha256.Sum256(append(step1[:], 'B'))
	step3 := sha256.Sum256(append(step2[:], 'C'))

	assert.Equal(t, Hash(step3), FoldAll(Default, "A", "B", "C"))
	assert.Equal(t, Zero, FoldAll(Default))
}

func TestFoldAll_OrderSensitive(t *testing.T) {
	assert.NotEqual(t, FoldAll(Default, "A", "B"), FoldAll(Default, "B", "A"))
}

func TestTagged_DomainSeparated(t *testing.T) {
	payload := []byte("response")
	a := Tagged(Default, TagExecutorResponse, payload)
	b := Tagged(Default, TagWatchdogResponse, payload)
	assert.NotEqual(t, a, b)

	want := sha256.Sum256(append([]byte(TagExecutorResponse), payload...))
	assert.Equal(t, Hash(want), a)
}

func TestParseHex(t *testing.T) {
	h := Message(Default, []byte("msg"))

	parsed, err := ParseHex(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHex("0x1234")
	assert.Error(t, err)

	_, err = ParseHex("zz")
	assert.Error(t, err)
}

func TestHash_JSON(t *testing.T) {
	h := Message(Default, []byte("msg"))
	data, err := json.Marshal(h)
	require.NoError(t, err)

	var out Hash
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, h, out)
	assert.False(t, out.IsZero())
	assert.True(t, Zero.IsZero())
}
