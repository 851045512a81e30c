package consensus

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	seed := uint32(0x000300AB)
	leader := "c"
	return &Snapshot{
		Nodes: []Node{
			{NodeID: "a", IP: "192.168.0.10", PublicKey: "pka", RotationOrder: 1, Active: true},
			{NodeID: "b", IP: "192.168.0.20", PublicKey: "pkb", RotationOrder: -1, Active: false},
			{NodeID: "c", IP: "192.168.0.30", PublicKey: "pkc", RotationOrder: 0, Active: true},
		},
		FrozenStake: map[string]uint64{"a": 100, "c": 200},
		Turn:        3,
		Seed:        &seed,
		SeedLeader:  &leader,
		Votes:       []Vote{{NodeID: "a", Token: "tok", SelectedIndex: 0}},
		Accusations: map[string][]string{"c": {"a"}},
		Evidence: map[string]map[string]Evidence{
			"c": {"a": {BlockHash: "h", Reason: "r"}},
		},
	}
}

func testCommits() []Commit {
	return []Commit{
		{Turn: 0, Seed: 0xAB, LeaderID: "c", BlockIndex: 1, BlockHash: "h1", Agreement: 1.0, Timestamp: 1700000000},
		{Turn: 1, Seed: 0x10001, LeaderID: "a", BlockIndex: 2, BlockHash: "h2", Agreement: 0.75, Timestamp: 1700000010},
		{Turn: 2, Seed: 0x20002, LeaderID: "c", BlockIndex: 3, BlockHash: "h3", Agreement: 1.0, Timestamp: 1700000020},
	}
}

func exerciseStore(t *testing.T, store StateStore) {
	assert := assert.New(t)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Empty(empty.Nodes)
	assert.Nil(empty.Seed)

	commits, err := store.Commits(0)
	require.NoError(t, err)
	assert.Empty(commits)

	snap := testSnapshot()
	all := testCommits()
	require.NoError(t, store.Save(snap, all[0]))
	require.NoError(t, store.Save(snap))
	require.NoError(t, store.Save(snap, all[1], all[2]))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(snap, loaded)

	commits, err = store.Commits(0)
	require.NoError(t, err)
	assert.Equal([]Commit{all[2], all[1], all[0]}, commits)

	commits, err = store.Commits(2)
	require.NoError(t, err)
	assert.Equal([]Commit{all[2], all[1]}, commits)

	// The latest snapshot wins.
	snap.Turn = 4
	snap.Seed = nil
	snap.SeedLeader = nil
	snap.Votes = []Vote{}
	require.NoError(t, store.Save(snap))
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Equal(uint16(4), loaded.Turn)
	assert.Nil(loaded.Seed)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreFailSaves(t *testing.T) {
	store := NewMemoryStore()
	store.FailSaves(assert.AnError)
	assert.ErrorIs(t, store.Save(testSnapshot()), assert.AnError)

	store.FailSaves(nil)
	assert.NoError(t, store.Save(testSnapshot()))
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consensus.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(testSnapshot(), testCommits()[0]))
	require.NoError(t, store.Close())

	// Migrations are skipped on an up to date database.
	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, testSnapshot(), loaded)

	commits, err := store.Commits(0)
	require.NoError(t, err)
	assert.Len(t, commits, 1)
}

func TestDataStoreKeys(t *testing.T) {
	assert := assert.New(t)

	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	keys, err := LoadDataStore[KeysStore](db, "keys")
	require.NoError(t, err)
	assert.Len(keys.Keys, 0)

	keys.Keys = append(keys.Keys, NodeKey{Label: "n1", Scheme: SchemeECDSA, PrivateKeyString: "01"})
	require.NoError(t, SaveDataStore(db, "keys", *keys))

	keys, err = LoadDataStore[KeysStore](db, "keys")
	require.NoError(t, err)
	assert.Equal([]NodeKey{{Label: "n1", Scheme: SchemeECDSA, PrivateKeyString: "01"}}, keys.Keys)
}

func TestPebbleStore(t *testing.T) {
	store, err := NewPebbleStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestPebbleStoreReopenKeepsCommitSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	all := testCommits()

	store, err := NewPebbleStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(testSnapshot(), all[0], all[1]))
	require.NoError(t, store.Close())

	store, err = NewPebbleStore(path)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Save(testSnapshot(), all[2]))

	commits, err := store.Commits(0)
	require.NoError(t, err)
	assert.Equal(t, []Commit{all[2], all[1], all[0]}, commits)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, testSnapshot(), loaded)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("commit0"), prefixUpperBound([]byte("commit/")))
	assert.Equal(t, []byte{0x01, 0x00}, prefixUpperBound([]byte{0x00, 0xFF}))
	assert.Nil(t, prefixUpperBound([]byte{0xFF, 0xFF}))
}
