package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpulsionThreshold(t *testing.T) {
	expected := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 4, 6: 4, 7: 5, 9: 6, 10: 7}
	for n, threshold := range expected {
		assert.Equal(t, threshold, ExpulsionThreshold(n), "n=%d", n)
	}
}

func TestAccusationSetSemantics(t *testing.T) {
	assert := assert.New(t)
	s := NewAccusationStore()

	ev := Evidence{BlockHash: "abc", Reason: "double proposal"}
	assert.Equal(1, s.Add("a", "x", ev))
	assert.Equal(1, s.Add("a", "x", Evidence{Reason: "again"}))
	assert.Equal(2, s.Add("b", "x", Evidence{}))

	assert.Equal(2, s.Count("x"))
	assert.Equal([]string{"a", "b"}, s.Accusers("x"))

	// The first evidence is kept.
	got, ok := s.Evidence("x", "a")
	assert.True(ok)
	assert.Equal(ev, got)

	assert.Equal(0, s.Count("y"))
}

func TestAccusationClearAndWithdraw(t *testing.T) {
	assert := assert.New(t)
	s := NewAccusationStore()

	s.Add("a", "x", Evidence{})
	s.Add("b", "x", Evidence{})
	s.Add("a", "y", Evidence{})

	s.Withdraw("a")
	assert.Equal([]string{"b"}, s.Accusers("x"))
	assert.Equal(0, s.Count("y"))
	assert.Equal(map[string][]string{"x": {"b"}}, s.All())

	s.Clear("x")
	assert.Empty(s.All())
}
