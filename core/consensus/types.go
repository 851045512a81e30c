package consensus

import (
	"log"
)

// A Node is a registered network member.
type Node struct {
	NodeID    string `json:"nodeId"`
	IP        string `json:"ip"`
	PublicKey string `json:"publicKey"`
	// Position in the leader rotation. -1 while the node is inactive.
	RotationOrder int  `json:"rotationOrder"`
	Active        bool `json:"active"`

	// Big-endian uint32 of IP, cached for ordering.
	ipValue uint32
}

// A Vote is a node's ballot for the current turn. Token is opaque to the
// engine; SelectedIndex is computed locally from the turn seed and stake table.
type Vote struct {
	NodeID        string `json:"nodeId"`
	Token         string `json:"token"`
	SelectedIndex int    `json:"selectedIndex"`
}

// Evidence accompanies a fraud report.
type Evidence struct {
	BlockHash string `json:"blockHash"`
	Reason    string `json:"reason"`
}

// BlockDescriptor describes the block a leader wants to publish on the external
// ledger. The engine never interprets it beyond logging and commit history.
type BlockDescriptor struct {
	Index        uint64           `json:"index"`
	Timestamp    string           `json:"timestamp"`
	Transactions []map[string]any `json:"transactions"`
	PreviousHash string           `json:"previousHash"`
	Hash         string           `json:"hash,omitempty"`
}

// ConsensusResult is the tally of the current turn.
type ConsensusResult struct {
	Leader           string  `json:"leader"`
	Agreement        float64 `json:"agreement"`
	ThresholdReached bool    `json:"thresholdReached"`
}

// Phase is the per-turn state of the protocol. Only AwaitingSeed and
// AwaitingVotes are stored; the quorum phases are derived from the tally.
type Phase string

const (
	PhaseAwaitingSeed     Phase = "AwaitingSeed"
	PhaseAwaitingVotes    Phase = "AwaitingVotes"
	PhaseQuorumReached    Phase = "QuorumReached"
	PhaseQuorumNotReached Phase = "QuorumNotReached"
)

// Commit records a block publication that closed a turn.
type Commit struct {
	Turn       uint16  `json:"turn"`
	Seed       uint32  `json:"seed"`
	LeaderID   string  `json:"leaderId"`
	BlockIndex uint64  `json:"blockIndex"`
	BlockHash  string  `json:"blockHash"`
	Agreement  float64 `json:"agreement"`
	Timestamp  uint64  `json:"timestamp"`
}

// Status is a read-only view of the engine for operators.
type Status struct {
	Turn          uint16            `json:"currentTurn"`
	Seed          *uint32           `json:"currentSeed"`
	SeedLeader    *string           `json:"seedLeader"`
	Phase         Phase             `json:"phase"`
	LeaderForTurn string            `json:"leaderForTurn"`
	ActiveNodes   int               `json:"nodesCount"`
	Votes         int               `json:"votesCount"`
	FrozenStake   map[string]uint64 `json:"frozenTokens"`
	StateDigest   string            `json:"stateDigest"`
}

// NodeInfo is a registry entry joined with its frozen stake.
type NodeInfo struct {
	NodeID        string `json:"nodeId"`
	IP            string `json:"ip"`
	RotationOrder int    `json:"assignedOrder"`
	Active        bool   `json:"active"`
	FrozenTokens  uint64 `json:"frozenTokens"`
}

// Config wires an Engine to its collaborators.
type Config struct {
	// Store persists the aggregate after every mutation. Nil keeps state in memory.
	Store StateStore

	// Crypto verifies request signatures. Required.
	Crypto CryptoProvider

	// Logger defaults to a "consensus" prefixed stdout logger.
	Logger *log.Logger

	// OnTurnAdvanced is called after a block submission closes a turn, outside
	// the engine lock.
	OnTurnAdvanced func(Commit)
}
