package consensus

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/MiguelVN7/Mini-Blockchain/core"
)

// Engine is the consensus state machine of one process. It owns the node
// registry, the stake ledger, the turn, the votes and the accusations, and
// persists them after every mutation.
//
// Mutating operations hold the write lock for their whole duration, including
// the save. Reads take the read lock. The engine never does network I/O.
type Engine struct {
	mu sync.RWMutex
	st *state

	store          StateStore
	crypto         CryptoProvider
	log            *log.Logger
	onTurnAdvanced func(Commit)

	// Clock for commit timestamps.
	now func() time.Time
}

// NewEngine loads the persisted state from cfg.Store and returns a ready
// engine. A snapshot that fails validation is an error; the engine never starts
// from a state it could not have produced itself.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Crypto == nil {
		return nil, errors.New("consensus: no crypto provider configured")
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.NewLogger("consensus", "")
	}

	snap, err := store.Load()
	if err != nil {
		if errors.Is(err, ErrInvalidStateFile) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load: %v", ErrPersistence, err)
	}
	st, err := stateFromSnapshot(snap)
	if err != nil {
		return nil, err
	}

	logger.Printf("Loaded state turn=%d nodes=%d digest=%s\n", snap.Turn, len(snap.Nodes), color.HiYellowString(snap.Digest()[:16]))

	return &Engine{
		st:             st,
		store:          store,
		crypto:         cfg.Crypto,
		log:            logger,
		onTurnAdvanced: cfg.OnTurnAdvanced,
		now:            time.Now,
	}, nil
}

// Close closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Close()
}

// RegisterNode adds a node to the network and returns its rotation order.
//
// A new node proves possession of the key it registers. Registering an existing
// id must be signed with the stored key and changes nothing; an expelled node
// stays expelled (see Readmit) and gets -1.
func (e *Engine) RegisterNode(req RegisterRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return -1, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if node, ok := e.st.registry.Get(req.NodeID); ok {
		if err := e.verify(&req, node.PublicKey); err != nil {
			return -1, err
		}
		return node.RotationOrder, nil
	}
	if err := e.verify(&req, req.PublicKey); err != nil {
		return -1, err
	}

	prev := e.st.snapshot()
	if _, err := e.st.registry.Register(req.NodeID, req.IP, req.PublicKey); err != nil {
		return -1, err
	}
	if err := e.persist(prev); err != nil {
		return -1, err
	}

	node, _ := e.st.registry.Get(req.NodeID)
	e.log.Printf("Registered node=%s ip=%s order=%d active=%d\n", color.HiYellowString(req.NodeID), req.IP, node.RotationOrder, e.st.registry.ActiveCount())
	return node.RotationOrder, nil
}

// FreezeStake adds tokens to the caller's frozen stake and returns the new
// balance.
func (e *Engine) FreezeStake(req FreezeRequest) (uint64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.authenticate(&req); err != nil {
		return 0, err
	}

	prev := e.st.snapshot()
	balance, err := e.st.ledger.Freeze(req.NodeID, req.Tokens)
	if err != nil {
		return 0, err
	}
	if err := e.persist(prev); err != nil {
		return 0, err
	}

	e.log.Printf("Froze node=%s amount=%d balance=%d\n", color.HiYellowString(req.NodeID), req.Tokens, balance)
	return balance, nil
}

// PublishSeed records the turn seed. Only the leader of the current turn may
// publish, once.
func (e *Engine) PublishSeed(req SeedRequest) (uint32, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	randomness, err := ExtractRandomness(req.EncryptedSeed)
	if err != nil {
		return 0, err
	}
	turn := uint16(req.Turn)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.authenticate(&req); err != nil {
		return 0, err
	}
	if current := e.st.turn.Turn(); turn != current {
		return 0, fmt.Errorf("%w: got %d, current %d", ErrWrongTurn, turn, current)
	}
	leader, ok := e.st.registry.LeaderForTurn(turn)
	if !ok || leader != req.LeaderID {
		return 0, fmt.Errorf("%w: turn %d is led by %q", ErrNotLeader, turn, leader)
	}

	prev := e.st.snapshot()
	seed, err := e.st.turn.PublishSeed(req.LeaderID, turn, randomness)
	if err != nil {
		return 0, err
	}
	if err := e.persist(prev); err != nil {
		return 0, err
	}

	e.log.Printf("Seed published turn=%d leader=%s seed=%#08x\n", turn, color.HiYellowString(req.LeaderID), seed)
	return seed, nil
}

// SubmitVote records the caller's vote for the current turn and returns the
// rotation index its weighted draw selected. A later vote replaces an earlier
// one.
func (e *Engine) SubmitVote(req VoteRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return -1, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.authenticate(&req)
	if err != nil {
		return -1, err
	}
	if !node.Active {
		return -1, fmt.Errorf("%w: %s", ErrNodeInactive, req.NodeID)
	}
	seed, ok := e.st.turn.Seed()
	if !ok {
		return -1, fmt.Errorf("%w: turn %d", ErrNoSeed, e.st.turn.Turn())
	}
	if e.st.ledger.Balance(req.NodeID) == 0 {
		return -1, fmt.Errorf("%w: %s", ErrNoStake, req.NodeID)
	}

	ordered := e.st.registry.Ordered()
	selected := ComputeSelection(seed, stakeWeights(ordered, e.st.ledger))

	prev := e.st.snapshot()
	e.st.votes.Record(Vote{
		NodeID:        req.NodeID,
		Token:         req.EncryptedVote,
		SelectedIndex: selected,
	})
	if err := e.persist(prev); err != nil {
		return -1, err
	}

	e.log.Printf("Vote recorded node=%s selected=%d votes=%d\n", color.HiYellowString(req.NodeID), selected, e.st.votes.Len())
	return selected, nil
}

// Result tallies the current turn's votes.
func (e *Engine) Result() ConsensusResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tally()
}

// Phase reports where the current turn is in the protocol.
func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase()
}

// ProposeBlock checks whether the caller may publish a block now. It returns
// false while the turn has no quorum, and ErrNotWinner if another node won. It
// never changes state.
func (e *Engine) ProposeBlock(req ProposeBlockRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	node, err := e.authenticate(&req)
	if err != nil {
		return false, err
	}
	if !node.Active {
		return false, fmt.Errorf("%w: %s", ErrNodeInactive, req.ProposerID)
	}

	result := e.tally()
	if !result.ThresholdReached {
		return false, nil
	}
	if result.Leader != req.ProposerID {
		return false, fmt.Errorf("%w: winner is %q", ErrNotWinner, result.Leader)
	}
	return true, nil
}

// SubmitBlock accepts the block of the tallied winner, records a commit and
// advances the turn. OnTurnAdvanced runs after the engine lock is released.
func (e *Engine) SubmitBlock(req SubmitBlockRequest) (Commit, error) {
	if err := req.Validate(); err != nil {
		return Commit{}, err
	}

	commit, err := e.submitBlock(&req)
	if err != nil {
		return Commit{}, err
	}
	if e.onTurnAdvanced != nil {
		e.onTurnAdvanced(commit)
	}
	return commit, nil
}

func (e *Engine) submitBlock(req *SubmitBlockRequest) (Commit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.authenticate(req)
	if err != nil {
		return Commit{}, err
	}
	if !node.Active {
		return Commit{}, fmt.Errorf("%w: %s", ErrNodeInactive, req.LeaderID)
	}

	result := e.tally()
	if !result.ThresholdReached {
		return Commit{}, fmt.Errorf("%w: agreement %.3f", ErrNoQuorum, result.Agreement)
	}
	if result.Leader != req.LeaderID {
		return Commit{}, fmt.Errorf("%w: winner is %q", ErrNotWinner, result.Leader)
	}

	blockHash := req.Block.Hash
	if blockHash == "" {
		blockHash, err = BlockDigest(req.Block)
		if err != nil {
			return Commit{}, err
		}
	}
	seed, _ := e.st.turn.Seed()
	commit := Commit{
		Turn:       e.st.turn.Turn(),
		Seed:       seed,
		LeaderID:   req.LeaderID,
		BlockIndex: req.Block.Index,
		BlockHash:  blockHash,
		Agreement:  result.Agreement,
		Timestamp:  uint64(e.now().Unix()),
	}

	prev := e.st.snapshot()
	e.st.turn.Advance()
	e.st.votes.Clear()
	if err := e.persist(prev, commit); err != nil {
		return Commit{}, err
	}

	e.log.Printf("Block committed turn=%d leader=%s index=%d hash=%s agreement=%.3f\n", commit.Turn, color.HiYellowString(commit.LeaderID), commit.BlockIndex, commit.BlockHash, commit.Agreement)
	return commit, nil
}

// ReportFraud records the caller's accusation against a node and expels the
// accused once ceil(2n/3) distinct active nodes have accused it. It reports
// whether this accusation caused the expulsion.
func (e *Engine) ReportFraud(req ReportRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	reporter, err := e.authenticate(&req)
	if err != nil {
		return false, err
	}
	if !reporter.Active {
		return false, fmt.Errorf("%w: %s", ErrNodeInactive, req.ReporterID)
	}
	accused, ok := e.st.registry.Get(req.LeaderID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, req.LeaderID)
	}
	if !accused.Active {
		return false, fmt.Errorf("%w: %s", ErrNodeInactive, req.LeaderID)
	}

	prev := e.st.snapshot()
	count := e.st.accusations.Add(req.ReporterID, req.LeaderID, req.Evidence)
	threshold := ExpulsionThreshold(e.st.registry.ActiveCount())
	expelled := count >= threshold
	if expelled {
		e.expel(req.LeaderID)
	}
	if err := e.persist(prev); err != nil {
		return false, err
	}

	if expelled {
		e.log.Printf("Node expelled node=%s accusers=%d threshold=%d\n", color.HiRedString(req.LeaderID), count, threshold)
	} else {
		e.log.Printf("Accusation recorded accused=%s reporter=%s accusers=%d/%d\n", color.HiYellowString(req.LeaderID), req.ReporterID, count, threshold)
	}
	return expelled, nil
}

// expel removes a node from the rotation, drops its vote and clears both the
// accusations against it and the ones it made.
func (e *Engine) expel(nodeID string) {
	e.st.registry.Deactivate(nodeID)
	e.st.accusations.Clear(nodeID)
	e.st.accusations.Withdraw(nodeID)
	e.st.votes.Remove(nodeID)
}

// Readmit returns an expelled node to the rotation with no accusations
// against it. It is an operator action and needs no signature.
func (e *Engine) Readmit(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := e.st.registry.Get(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	if node.Active {
		return nil
	}

	prev := e.st.snapshot()
	e.st.registry.Reactivate(nodeID)
	e.st.accusations.Clear(nodeID)
	if err := e.persist(prev); err != nil {
		return err
	}

	e.log.Printf("Node readmitted node=%s order=%d\n", color.HiYellowString(nodeID), node.RotationOrder)
	return nil
}

// Status returns an operator view of the engine.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := e.st.snapshot()
	leader, _ := e.st.registry.LeaderForTurn(snap.Turn)
	return Status{
		Turn:          snap.Turn,
		Seed:          snap.Seed,
		SeedLeader:    snap.SeedLeader,
		Phase:         e.phase(),
		LeaderForTurn: leader,
		ActiveNodes:   e.st.registry.ActiveCount(),
		Votes:         e.st.votes.Len(),
		FrozenStake:   snap.FrozenStake,
		StateDigest:   snap.Digest(),
	}
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.snapshot()
}

// Nodes lists every registered node with its stake, in registration order.
func (e *Engine) Nodes() []NodeInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	nodes := e.st.registry.All()
	infos := make([]NodeInfo, len(nodes))
	for i, n := range nodes {
		infos[i] = NodeInfo{
			NodeID:        n.NodeID,
			IP:            n.IP,
			RotationOrder: n.RotationOrder,
			Active:        n.Active,
			FrozenTokens:  e.st.ledger.Balance(n.NodeID),
		}
	}
	return infos
}

// Votes lists the current turn's votes sorted by node id.
func (e *Engine) Votes() []Vote {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.votes.All()
}

// History returns up to limit commits, newest first.
func (e *Engine) History(limit int) ([]Commit, error) {
	commits, err := e.store.Commits(limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return commits, nil
}

// BlockDigest is the hex BLAKE3 hash of the canonical JSON of a block. It
// stands in for the hash of blocks submitted without one.
func BlockDigest(block BlockDescriptor) (string, error) {
	payload, err := CanonicalJSON(block)
	if err != nil {
		return "", err
	}
	sum := core.HashBlake3(payload)
	return hex.EncodeToString(sum[:]), nil
}

func (e *Engine) tally() ConsensusResult {
	return Tally(e.st.votes.All(), e.st.registry.Ordered(), e.st.ledger.Balance)
}

func (e *Engine) phase() Phase {
	if _, ok := e.st.turn.Seed(); !ok {
		return PhaseAwaitingSeed
	}
	if e.st.votes.Len() == 0 {
		return PhaseAwaitingVotes
	}
	if e.tally().ThresholdReached {
		return PhaseQuorumReached
	}
	return PhaseQuorumNotReached
}

// authenticate looks up the caller and checks the request signature against
// its registered key.
func (e *Engine) authenticate(req SignedRequest) (*Node, error) {
	node, ok := e.st.registry.Get(req.callerID())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, req.callerID())
	}
	if err := e.verify(req, node.PublicKey); err != nil {
		return nil, err
	}
	return node, nil
}

func (e *Engine) verify(req SignedRequest, publicKey string) error {
	sig, err := decodeSignature(req)
	if err != nil {
		return err
	}
	payload, err := CanonicalJSON(req)
	if err != nil {
		return err
	}
	if !e.crypto.Verify(publicKey, payload, sig) {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, req.callerID())
	}
	return nil
}

// persist saves the mutated state along with any commits. On failure the
// state is rolled back to prev so memory never runs ahead of the store.
func (e *Engine) persist(prev *Snapshot, commits ...Commit) error {
	err := e.store.Save(e.st.snapshot(), commits...)
	if err == nil {
		return nil
	}

	restored, rerr := stateFromSnapshot(prev)
	if rerr != nil {
		// prev was taken from a live state, so this means a bug in snapshot.
		panic(fmt.Sprintf("consensus: cannot restore state: %v", rerr))
	}
	e.st = restored
	e.log.Printf("Save failed, state rolled back: %s\n", color.HiRedString(err.Error()))
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
