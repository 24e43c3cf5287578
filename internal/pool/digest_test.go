package pool

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/teepool/internal/commitment"
)

func TestCreationDigest_Layout(t *testing.T) {
	id := NewPoolID(7)
	epoch := commitment.FoldAll(commitment.Default, "A", "B", "C")

	h := sha256.New()
	h.Write([]byte("Creation-Attest"))
	h.Write(id.Bytes())
	h.Write(epoch[:])
	h.Write([]byte("P"))
	h.Write(testCodeHash[:])
	h.Write([]byte("A"))
	h.Write([]byte("B"))
	h.Write([]byte("C"))

	var want commitment.Hash
	copy(want[:], h.Sum(nil))
	assert.Equal(t, want, CreationDigest(commitment.Default, id, epoch, "P", testCodeHash, testOperators))
}

func TestResponseDigests_DomainSeparated(t *testing.T) {
	id := NewPoolID(7)
	anchor := commitment.FoldAll(commitment.Default, "A")
	resp := []byte("resp")

	exec := ExecutorResponseDigest(commitment.Default, id, anchor, resp)
	w1 := WatchdogResponseDigest(commitment.Default, id, anchor, 1, resp)
	w2 := WatchdogResponseDigest(commitment.Default, id, anchor, 2, resp)

	assert.NotEqual(t, exec, w1)
	assert.NotEqual(t, w1, w2)
	assert.Equal(t, commitment.Tagged(commitment.Default, "Challenge-Response", id.Bytes(), anchor[:], resp), exec)
}

func TestNextDisputeHash(t *testing.T) {
	prev := commitment.FoldAll(commitment.Default, "A")
	msg := commitment.Message(commitment.Default, []byte("m"))

	r1 := nextDisputeHash(commitment.Default, prev, 1, msg)
	r2 := nextDisputeHash(commitment.Default, prev, 2, msg)
	assert.NotEqual(t, r1, r2)
	assert.NotEqual(t, r1, nextDisputeHash(commitment.Default, r1, 1, msg))
	assert.Equal(t, r1, nextDisputeHash(commitment.Default, prev, 1, msg))
}
