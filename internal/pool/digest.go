package pool

import (
	"encoding/binary"

	"github.com/R3E-Network/teepool/internal/commitment"
)

// CreationDigest is the payload the creation operator signs:
// H("Creation-Attest" || id || epoch || poolAddress || codeHash || op0 || op1 || op2).
func CreationDigest(h commitment.Hasher, id PoolID, epoch commitment.Hash, poolAddress string, codeHash commitment.Hash, operators [PoolSize]string) commitment.Hash {
	parts := [][]byte{id.Bytes(), epoch[:], []byte(poolAddress), codeHash[:]}
	for _, op := range operators {
		parts = append(parts, []byte(op))
	}
	return commitment.Tagged(h, commitment.TagCreation, parts...)
}

// ExecutorResponseDigest is the payload the executive operator signs to
// answer a challenge: H("Challenge-Response" || id || anchor || response).
func ExecutorResponseDigest(h commitment.Hasher, id PoolID, anchor commitment.Hash, response []byte) commitment.Hash {
	return commitment.Tagged(h, commitment.TagExecutorResponse, id.Bytes(), anchor[:], response)
}

// WatchdogResponseDigest is the payload a challenged watchdog signs:
// H("Watchdog-Response" || id || anchor || slot || response).
func WatchdogResponseDigest(h commitment.Hasher, id PoolID, anchor commitment.Hash, slot int, response []byte) commitment.Hash {
	return commitment.Tagged(h, commitment.TagWatchdogResponse, id.Bytes(), anchor[:], []byte{byte(slot)}, response)
}

// nextDisputeHash folds a newly opened challenge into the pool's chain.
func nextDisputeHash(h commitment.Hasher, prev commitment.Hash, round uint64, challenge commitment.Hash) commitment.Hash {
	var r [8]byte
	binary.LittleEndian.PutUint64(r[:], round)
	return commitment.Tagged(h, commitment.TagDisputeRound, prev[:], r[:], challenge[:])
}
