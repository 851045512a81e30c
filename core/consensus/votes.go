package consensus

import (
	"sort"
)

// VoteStore holds the current turn's votes, one per node.
type VoteStore struct {
	votes map[string]Vote
}

func NewVoteStore() *VoteStore {
	return &VoteStore{
		votes: make(map[string]Vote),
	}
}

// Record stores a vote, replacing any earlier vote by the same node.
func (s *VoteStore) Record(v Vote) {
	s.votes[v.NodeID] = v
}

func (s *VoteStore) Get(nodeID string) (Vote, bool) {
	v, ok := s.votes[nodeID]
	return v, ok
}

func (s *VoteStore) Remove(nodeID string) {
	delete(s.votes, nodeID)
}

func (s *VoteStore) Clear() {
	s.votes = make(map[string]Vote)
}

func (s *VoteStore) Len() int {
	return len(s.votes)
}

// All returns the votes sorted by node id.
func (s *VoteStore) All() []Vote {
	all := make([]Vote, 0, len(s.votes))
	for _, v := range s.votes {
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].NodeID < all[j].NodeID
	})
	return all
}

// Tally attributes each voter's stake to the node its vote selected,
// order[selectedIndex mod len(order)], and picks the candidate with the most
// weight. Ties go to the earlier rotation position. Votes from nodes without
// stake carry no weight. The threshold is 2/3 of the weight cast, checked in
// integers so that exactly 2/3 passes.
func Tally(votes []Vote, ordered []*Node, stake func(nodeID string) uint64) ConsensusResult {
	none := ConsensusResult{Leader: "", Agreement: 0.0, ThresholdReached: false}
	if len(votes) == 0 || len(ordered) == 0 {
		return none
	}

	candidates := make([]uint64, len(ordered))
	var total uint64
	for _, v := range votes {
		weight := stake(v.NodeID)
		if weight == 0 {
			continue
		}
		idx := v.SelectedIndex % len(ordered)
		if idx < 0 {
			idx += len(ordered)
		}
		candidates[idx] += weight
		total += weight
	}
	if total == 0 {
		return none
	}

	winner := 0
	for i, w := range candidates {
		if w > candidates[winner] {
			winner = i
		}
	}
	winnerWeight := candidates[winner]

	return ConsensusResult{
		Leader:           ordered[winner].NodeID,
		Agreement:        float64(winnerWeight) / float64(total),
		ThresholdReached: 3*winnerWeight >= 2*total,
	}
}
