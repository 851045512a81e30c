package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPv4(t *testing.T) {
	assert := assert.New(t)

	v, err := ParseIPv4("10.0.0.1")
	assert.NoError(err)
	assert.Equal(uint32(0x0A000001), v)

	v, err = ParseIPv4("255.255.255.255")
	assert.NoError(err)
	assert.Equal(uint32(0xFFFFFFFF), v)

	for _, bad := range []string{"", "abc", "256.1.1.1", "1.2.3", "::1", "10.0.0.1:8080"} {
		_, err := ParseIPv4(bad)
		assert.ErrorIs(err, ErrInvalidAddress, bad)
	}
}

func TestRegistryRotationOrder(t *testing.T) {
	assert := assert.New(t)
	r := NewNodeRegistry()

	order, err := r.Register("a", "192.168.0.10", "pka")
	require.NoError(t, err)
	assert.Equal(0, order)

	// Higher addresses go first.
	order, err = r.Register("b", "192.168.0.20", "pkb")
	require.NoError(t, err)
	assert.Equal(0, order)

	order, err = r.Register("c", "192.168.0.30", "pkc")
	require.NoError(t, err)
	assert.Equal(0, order)

	ordered := r.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal("c", ordered[0].NodeID)
	assert.Equal("b", ordered[1].NodeID)
	assert.Equal("a", ordered[2].NodeID)

	a, _ := r.Get("a")
	assert.Equal(2, a.RotationOrder)
}

func TestRegistryReRegisterIsNoop(t *testing.T) {
	assert := assert.New(t)
	r := NewNodeRegistry()

	_, err := r.Register("a", "10.0.0.1", "pka")
	require.NoError(t, err)
	_, err = r.Register("b", "10.0.0.2", "pkb")
	require.NoError(t, err)

	order, err := r.Register("a", "10.0.0.99", "other")
	assert.NoError(err)
	assert.Equal(1, order)
	assert.Equal(2, r.ActiveCount())
	assert.Len(r.All(), 2)

	a, _ := r.Get("a")
	assert.Equal("10.0.0.1", a.IP)
	assert.Equal("pka", a.PublicKey)
}

func TestRegistryInvalidAddress(t *testing.T) {
	r := NewNodeRegistry()
	_, err := r.Register("a", "not-an-ip", "pk")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, 0, r.ActiveCount())
}

func TestRegistrySameAddressKeepsRegistrationOrder(t *testing.T) {
	assert := assert.New(t)
	r := NewNodeRegistry()

	for _, id := range []string{"first", "second", "third"} {
		_, err := r.Register(id, "10.0.0.5", "pk")
		require.NoError(t, err)
	}
	_, err := r.Register("top", "10.0.0.6", "pk")
	require.NoError(t, err)

	ordered := r.Ordered()
	assert.Equal("top", ordered[0].NodeID)
	assert.Equal("first", ordered[1].NodeID)
	assert.Equal("second", ordered[2].NodeID)
	assert.Equal("third", ordered[3].NodeID)
}

func TestRegistryLeaderForTurn(t *testing.T) {
	assert := assert.New(t)
	r := NewNodeRegistry()

	_, ok := r.LeaderForTurn(0)
	assert.False(ok)

	r.Register("a", "192.168.0.10", "pk")
	r.Register("b", "192.168.0.20", "pk")
	r.Register("c", "192.168.0.30", "pk")

	expected := []string{"c", "b", "a", "c", "b", "a"}
	for turn, id := range expected {
		leader, ok := r.LeaderForTurn(uint16(turn))
		assert.True(ok)
		assert.Equal(id, leader, "turn %d", turn)
	}

	// 65535 mod 3 == 0
	leader, _ := r.LeaderForTurn(65535)
	assert.Equal("c", leader)
}

func TestRegistryDeactivate(t *testing.T) {
	assert := assert.New(t)
	r := NewNodeRegistry()

	r.Register("a", "192.168.0.10", "pk")
	r.Register("b", "192.168.0.20", "pk")
	r.Register("c", "192.168.0.30", "pk")

	assert.True(r.Deactivate("b"))
	assert.False(r.Deactivate("missing"))
	assert.Equal(2, r.ActiveCount())

	b, _ := r.Get("b")
	assert.False(b.Active)
	assert.Equal(-1, b.RotationOrder)

	a, _ := r.Get("a")
	assert.Equal(1, a.RotationOrder)

	leader, _ := r.LeaderForTurn(1)
	assert.Equal("a", leader)

	// Re-registering an inactive node does not bring it back.
	order, err := r.Register("b", "192.168.0.20", "pk")
	assert.NoError(err)
	assert.Equal(-1, order)
	assert.Equal(2, r.ActiveCount())

	assert.True(r.Reactivate("b"))
	assert.Equal(3, r.ActiveCount())
	assert.Equal(1, b.RotationOrder)
}

func TestRegistryRestore(t *testing.T) {
	assert := assert.New(t)
	r := NewNodeRegistry()

	err := r.restore([]Node{
		{NodeID: "a", IP: "10.0.0.1", PublicKey: "pk", RotationOrder: 7, Active: true},
		{NodeID: "b", IP: "10.0.0.2", PublicKey: "pk", RotationOrder: 7, Active: true},
		{NodeID: "c", IP: "10.0.0.3", PublicKey: "pk", RotationOrder: 0, Active: false},
	})
	require.NoError(t, err)

	// Orders are recomputed, not trusted.
	a, _ := r.Get("a")
	b, _ := r.Get("b")
	c, _ := r.Get("c")
	assert.Equal(1, a.RotationOrder)
	assert.Equal(0, b.RotationOrder)
	assert.Equal(-1, c.RotationOrder)

	err = NewNodeRegistry().restore([]Node{
		{NodeID: "a", IP: "10.0.0.1"},
		{NodeID: "a", IP: "10.0.0.2"},
	})
	assert.ErrorIs(err, ErrInvalidStateFile)

	err = NewNodeRegistry().restore([]Node{{NodeID: "a", IP: "bad"}})
	assert.ErrorIs(err, ErrInvalidStateFile)
}
