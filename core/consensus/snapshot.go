package consensus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/jackpal/bencode-go"

	"github.com/MiguelVN7/Mini-Blockchain/core"
)

// Snapshot is the persisted form of the engine state. Loading a snapshot
// written by Save gives back an engine that behaves identically.
type Snapshot struct {
	// Registration order.
	Nodes       []Node              `json:"nodes"`
	FrozenStake map[string]uint64   `json:"frozenStake"`
	Turn        uint16              `json:"turn"`
	Seed        *uint32             `json:"seed"`
	SeedLeader  *string             `json:"seedLeader"`
	Votes       []Vote              `json:"votes"`
	Accusations map[string][]string `json:"accusations"`

	// accused id -> accuser id -> evidence. Optional; older snapshots omit it.
	Evidence map[string]map[string]Evidence `json:"evidence,omitempty"`
}

// Digest is the hex BLAKE3 hash of the bencoded snapshot. Bencode sorts
// dictionary keys, so two processes with the same logical state report the same
// digest whatever their map iteration order. Evidence is not part of it.
func (s *Snapshot) Digest() string {
	nodes := make([]interface{}, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		nodes = append(nodes, map[string]interface{}{
			"nodeId":        n.NodeID,
			"ip":            n.IP,
			"publicKey":     n.PublicKey,
			"rotationOrder": int64(n.RotationOrder),
			"active":        boolInt(n.Active),
		})
	}

	stake := make(map[string]interface{}, len(s.FrozenStake))
	for id, amount := range s.FrozenStake {
		stake[id] = int64(amount)
	}

	votes := make([]interface{}, 0, len(s.Votes))
	for _, v := range sortedVotes(s.Votes) {
		votes = append(votes, map[string]interface{}{
			"nodeId":        v.NodeID,
			"token":         v.Token,
			"selectedIndex": int64(v.SelectedIndex),
		})
	}

	accusations := make(map[string]interface{}, len(s.Accusations))
	for accused, accusers := range s.Accusations {
		sorted := append([]string(nil), accusers...)
		sort.Strings(sorted)
		list := make([]interface{}, len(sorted))
		for i, a := range sorted {
			list[i] = a
		}
		accusations[accused] = list
	}

	doc := map[string]interface{}{
		"nodes":       nodes,
		"frozenStake": stake,
		"turn":        int64(s.Turn),
		"votes":       votes,
		"accusations": accusations,
	}
	if s.Seed != nil {
		doc["seed"] = int64(*s.Seed)
	}
	if s.SeedLeader != nil {
		doc["seedLeader"] = *s.SeedLeader
	}

	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, doc); err != nil {
		// Only strings, integers, lists and dicts are encoded above.
		panic(err)
	}
	sum := core.HashBlake3(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func sortedVotes(votes []Vote) []Vote {
	sorted := append([]Vote(nil), votes...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].NodeID < sorted[j].NodeID
	})
	return sorted
}

// state is the engine aggregate. Every field is guarded by the engine lock.
type state struct {
	registry    *NodeRegistry
	ledger      *TokenLedger
	turn        *TurnState
	votes       *VoteStore
	accusations *AccusationStore
}

func newState() *state {
	return &state{
		registry:    NewNodeRegistry(),
		ledger:      NewTokenLedger(),
		turn:        NewTurnState(),
		votes:       NewVoteStore(),
		accusations: NewAccusationStore(),
	}
}

// snapshot deep copies the aggregate.
func (s *state) snapshot() *Snapshot {
	snap := &Snapshot{
		Nodes:       make([]Node, 0, len(s.registry.nodes)),
		FrozenStake: s.ledger.All(),
		Turn:        s.turn.Turn(),
		Votes:       s.votes.All(),
		Accusations: s.accusations.All(),
		Evidence:    make(map[string]map[string]Evidence),
	}
	for _, n := range s.registry.All() {
		snap.Nodes = append(snap.Nodes, *n)
	}
	if seed, ok := s.turn.Seed(); ok {
		leader := s.turn.SeedLeader()
		snap.Seed = &seed
		snap.SeedLeader = &leader
	}
	for accused, accusers := range s.accusations.reports {
		evidence := make(map[string]Evidence, len(accusers))
		for accuser, ev := range accusers {
			evidence[accuser] = ev
		}
		snap.Evidence[accused] = evidence
	}
	return snap
}

// stateFromSnapshot rebuilds an aggregate, rejecting snapshots that no sequence
// of engine operations could have produced.
func stateFromSnapshot(snap *Snapshot) (*state, error) {
	st := newState()
	if err := st.registry.restore(snap.Nodes); err != nil {
		return nil, err
	}

	for id, amount := range snap.FrozenStake {
		if _, ok := st.registry.Get(id); !ok {
			return nil, fmt.Errorf("%w: stake for unknown node %q", ErrInvalidStateFile, id)
		}
		if amount > MaxStake {
			return nil, fmt.Errorf("%w: stake of %q exceeds ceiling", ErrInvalidStateFile, id)
		}
		st.ledger.frozen[id] = amount
	}

	if (snap.Seed == nil) != (snap.SeedLeader == nil) {
		return nil, fmt.Errorf("%w: seed and seedLeader must be set together", ErrInvalidStateFile)
	}
	st.turn.turn = snap.Turn
	if snap.Seed != nil {
		if uint16(*snap.Seed>>16) != snap.Turn {
			return nil, fmt.Errorf("%w: seed %#x does not belong to turn %d", ErrInvalidStateFile, *snap.Seed, snap.Turn)
		}
		st.turn.seed = *snap.Seed
		st.turn.hasSeed = true
		st.turn.seedLeader = *snap.SeedLeader
	}

	if len(snap.Votes) > 0 && snap.Seed == nil {
		return nil, fmt.Errorf("%w: votes recorded without a seed", ErrInvalidStateFile)
	}
	for _, v := range snap.Votes {
		node, ok := st.registry.Get(v.NodeID)
		if !ok || !node.Active {
			return nil, fmt.Errorf("%w: vote from unknown or inactive node %q", ErrInvalidStateFile, v.NodeID)
		}
		if _, dup := st.votes.Get(v.NodeID); dup {
			return nil, fmt.Errorf("%w: duplicate vote from %q", ErrInvalidStateFile, v.NodeID)
		}
		st.votes.Record(v)
	}

	for accused, accusers := range snap.Accusations {
		if _, ok := st.registry.Get(accused); !ok {
			return nil, fmt.Errorf("%w: accusation against unknown node %q", ErrInvalidStateFile, accused)
		}
		for _, accuser := range accusers {
			if _, ok := st.registry.Get(accuser); !ok {
				return nil, fmt.Errorf("%w: accusation by unknown node %q", ErrInvalidStateFile, accuser)
			}
			st.accusations.Add(accuser, accused, snap.Evidence[accused][accuser])
		}
	}

	return st, nil
}
