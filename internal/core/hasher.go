package core

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
)

const GenesisHashSeed = "predict:genesis:v1"

// GenesisHash is the chain tip before the first event.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// StateHasher tracks the tip of the event hash chain.
type StateHasher struct {
	tip [32]byte
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	return &StateHasher{tip: GenesisHash()}
}

// Chain computes state_hash[N] = SHA-256(prev_hash || sequence || digest).
// It does not move the tip: the engine advances it only after the store
// committed the event.
func Chain(prev [32]byte, sequence int64, digest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(prev[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(digest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// Tip returns current chain tip
func (h *StateHasher) Tip() [32]byte {
	return h.tip
}

// SetTip moves the tip after a commit or during recovery.
func (h *StateHasher) SetTip(tip [32]byte) {
	h.tip = tip
}

// EnvelopeDigest is the per-event input to the chain: type, epoch,
// timestamp and the JSON payload. It depends only on what the event log
// stores, so the chain can be re-verified from the log alone.
func EnvelopeDigest(env *event.EventEnvelope) ([]byte, error) {
	payload, err := event.MarshalPayload(env.Payload)
	if err != nil {
		return nil, err
	}
	digest := make([]byte, 0, 20+len(payload))
	digest = binary.LittleEndian.AppendUint32(digest, uint32(env.EventType))
	digest = binary.LittleEndian.AppendUint64(digest, env.Epoch)
	digest = binary.LittleEndian.AppendUint64(digest, uint64(env.Timestamp))
	digest = append(digest, payload...)
	return digest, nil
}

// VerifyChain recomputes the hash of every envelope, in sequence order,
// starting from prev. It returns the tip after the last envelope.
func VerifyChain(prev [32]byte, envs []*event.EventEnvelope) ([32]byte, error) {
	for _, env := range envs {
		if env.PrevHash != prev {
			return prev, fmt.Errorf("sequence %d: prev hash mismatch", env.Sequence)
		}
		digest, err := EnvelopeDigest(env)
		if err != nil {
			return prev, fmt.Errorf("sequence %d: %w", env.Sequence, err)
		}
		if got := Chain(prev, env.Sequence, digest); got != env.StateHash {
			return prev, fmt.Errorf("sequence %d: state hash mismatch", env.Sequence)
		}
		prev = env.StateHash
	}
	return prev, nil
}
