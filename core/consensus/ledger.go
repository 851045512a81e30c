package consensus

import (
	"fmt"
)

// MaxStake caps a single node's frozen balance. With at most 65536 nodes the
// total weight stays below 2^56 and fits the int64 draw in ComputeSelection.
const MaxStake = uint64(1) << 40

// TokenLedger holds the stake each node has frozen. Stake only accumulates;
// there is no unfreeze.
type TokenLedger struct {
	frozen map[string]uint64
}

func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		frozen: make(map[string]uint64),
	}
}

// Freeze adds amount to the node's balance and returns the new balance.
// Registration is checked by the caller.
func (l *TokenLedger) Freeze(nodeID string, amount int64) (uint64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: got %d", ErrNegativeStake, amount)
	}
	balance := l.frozen[nodeID]
	if uint64(amount) > MaxStake || balance+uint64(amount) > MaxStake {
		return 0, fmt.Errorf("%w: %d + %d > %d", ErrStakeTooLarge, balance, amount, MaxStake)
	}
	balance += uint64(amount)
	l.frozen[nodeID] = balance
	return balance, nil
}

// Balance returns 0 for nodes that never froze anything.
func (l *TokenLedger) Balance(nodeID string) uint64 {
	return l.frozen[nodeID]
}

// All returns a copy of every balance.
func (l *TokenLedger) All() map[string]uint64 {
	all := make(map[string]uint64, len(l.frozen))
	for k, v := range l.frozen {
		all[k] = v
	}
	return all
}
