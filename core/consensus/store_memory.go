package consensus

import (
	"encoding/json"
	"sync"
)

// MemoryStore keeps the last saved snapshot in memory. It is used when no
// database is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	state   []byte
	commits []Commit
	failErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{}
	if s.state == nil {
		return snap, nil
	}
	if err := json.Unmarshal(s.state, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *MemoryStore) Save(snap *Snapshot, commits ...Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	// Stored encoded so later mutations of snap cannot leak in.
	buf, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.state = buf
	s.commits = append(s.commits, commits...)
	return nil
}

func (s *MemoryStore) Commits(limit int) ([]Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	commits := []Commit{}
	for i := len(s.commits) - 1; i >= 0; i-- {
		if limit > 0 && len(commits) >= limit {
			break
		}
		commits = append(commits, s.commits[i])
	}
	return commits, nil
}

// FailSaves makes every following Save return err. A nil err heals the store.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *MemoryStore) Close() error {
	return nil
}
