package consensus

import (
	"math/rand"
)

// ComputeSelection draws one index from weights, proportionally to weight,
// using a PRNG seeded with seed. It is pure: the same seed and weight vector
// give the same index in every process. An all-zero (or empty) weight vector
// falls back to uniform weights. Returns -1 only for an empty vector.
//
// math/rand's seeded source is frozen by the Go 1 compatibility promise, which
// is what makes the draw reproducible across nodes and Go releases.
func ComputeSelection(seed uint32, weights []uint64) int {
	if len(weights) == 0 {
		return -1
	}

	var total uint64
	for _, w := range weights {
		total += w
	}
	effective := weights
	if total == 0 {
		effective = make([]uint64, len(weights))
		for i := range effective {
			effective[i] = 1
		}
		total = uint64(len(weights))
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	draw := uint64(rng.Int63n(int64(total)))

	var cumulative uint64
	for i, w := range effective {
		cumulative += w
		if draw < cumulative {
			return i
		}
	}
	// Unreachable: draw < total == cumulative after the loop.
	return len(effective) - 1
}

// stakeWeights returns the frozen stake of each node in order.
func stakeWeights(ordered []*Node, ledger *TokenLedger) []uint64 {
	weights := make([]uint64, len(ordered))
	for i, node := range ordered {
		weights[i] = ledger.Balance(node.NodeID)
	}
	return weights
}
