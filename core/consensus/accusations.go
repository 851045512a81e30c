package consensus

import (
	"sort"
)

// AccusationStore collects fraud reports. Each accused node has a set of
// distinct accusers; repeating an accusation changes nothing.
type AccusationStore struct {
	// accused id -> accuser id -> the evidence given with the first report
	reports map[string]map[string]Evidence
}

func NewAccusationStore() *AccusationStore {
	return &AccusationStore{
		reports: make(map[string]map[string]Evidence),
	}
}

// ExpulsionThreshold is ceil(2n/3): the number of distinct accusers needed to
// expel a node when n nodes are active.
func ExpulsionThreshold(activeCount int) int {
	return (2*activeCount + 2) / 3
}

// Add records an accusation and returns the number of distinct accusers.
func (s *AccusationStore) Add(accuserID, accusedID string, evidence Evidence) int {
	accusers, ok := s.reports[accusedID]
	if !ok {
		accusers = make(map[string]Evidence)
		s.reports[accusedID] = accusers
	}
	if _, dup := accusers[accuserID]; !dup {
		accusers[accuserID] = evidence
	}
	return len(accusers)
}

func (s *AccusationStore) Count(accusedID string) int {
	return len(s.reports[accusedID])
}

// Accusers returns the distinct accusers of a node, sorted.
func (s *AccusationStore) Accusers(accusedID string) []string {
	accusers := make([]string, 0, len(s.reports[accusedID]))
	for id := range s.reports[accusedID] {
		accusers = append(accusers, id)
	}
	sort.Strings(accusers)
	return accusers
}

func (s *AccusationStore) Evidence(accusedID, accuserID string) (Evidence, bool) {
	ev, ok := s.reports[accusedID][accuserID]
	return ev, ok
}

// Clear forgets every accusation against a node.
func (s *AccusationStore) Clear(accusedID string) {
	delete(s.reports, accusedID)
}

// Withdraw removes every accusation made by a node.
func (s *AccusationStore) Withdraw(accuserID string) {
	for accusedID, accusers := range s.reports {
		delete(accusers, accuserID)
		if len(accusers) == 0 {
			delete(s.reports, accusedID)
		}
	}
}

// All returns accused id -> sorted accuser ids.
func (s *AccusationStore) All() map[string][]string {
	all := make(map[string][]string, len(s.reports))
	for accusedID := range s.reports {
		all[accusedID] = s.Accusers(accusedID)
	}
	return all
}
