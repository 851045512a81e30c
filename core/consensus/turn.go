package consensus

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// TurnState is the current turn, its seed and the leader that published it.
type TurnState struct {
	turn       uint16
	seed       uint32
	hasSeed    bool
	seedLeader string
}

func NewTurnState() *TurnState {
	return &TurnState{}
}

func (t *TurnState) Turn() uint16 {
	return t.turn
}

// Seed returns the current seed, if one has been published this turn.
func (t *TurnState) Seed() (uint32, bool) {
	return t.seed, t.hasSeed
}

func (t *TurnState) SeedLeader() string {
	return t.seedLeader
}

// PublishSeed records the leader's seed for the current turn. The caller has
// already checked that leaderID leads this turn.
func (t *TurnState) PublishSeed(leaderID string, turn uint16, randomness uint16) (uint32, error) {
	if turn != t.turn {
		return 0, fmt.Errorf("%w: got %d, current %d", ErrWrongTurn, turn, t.turn)
	}
	if t.hasSeed {
		return 0, fmt.Errorf("%w: turn %d by %s", ErrSeedPublished, t.turn, t.seedLeader)
	}
	t.seed = MakeSeed(turn, randomness)
	t.hasSeed = true
	t.seedLeader = leaderID
	return t.seed, nil
}

// Advance moves to the next turn, wrapping 65535 to 0, and forgets the seed.
func (t *TurnState) Advance() {
	t.turn = uint16((uint32(t.turn) + 1) % 65536)
	t.seed = 0
	t.hasSeed = false
	t.seedLeader = ""
}

// MakeSeed packs the turn into the upper 16 bits and the leader's randomness
// into the lower 16 bits.
func MakeSeed(turn uint16, randomness uint16) uint32 {
	return uint32(turn)<<16 | uint32(randomness)
}

// ExtractRandomness derives the leader's 16-bit contribution from the seed
// token it publishes. The token is standard base64; the first two decoded bytes
// are read big-endian and the rest is ignored. Every node must apply exactly
// this rule to reach the same seed, so changing it is a protocol version bump.
func ExtractRandomness(token string) (uint16, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadRandomness, err)
	}
	if len(decoded) < 2 {
		return 0, fmt.Errorf("%w: decoded %d bytes", ErrBadRandomness, len(decoded))
	}
	return binary.BigEndian.Uint16(decoded[:2]), nil
}
