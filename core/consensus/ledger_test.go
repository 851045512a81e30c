package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerFreezeAccumulates(t *testing.T) {
	assert := assert.New(t)
	l := NewTokenLedger()

	assert.Equal(uint64(0), l.Balance("a"))

	balance, err := l.Freeze("a", 100)
	assert.NoError(err)
	assert.Equal(uint64(100), balance)

	balance, err = l.Freeze("a", 50)
	assert.NoError(err)
	assert.Equal(uint64(150), balance)

	balance, err = l.Freeze("a", 0)
	assert.NoError(err)
	assert.Equal(uint64(150), balance)

	assert.Equal(map[string]uint64{"a": 150}, l.All())
}

func TestLedgerRejectsBadAmounts(t *testing.T) {
	assert := assert.New(t)
	l := NewTokenLedger()

	_, err := l.Freeze("a", -1)
	assert.ErrorIs(err, ErrNegativeStake)
	assert.Equal(KindValidation, KindOf(err))

	_, err = l.Freeze("a", int64(MaxStake)+1)
	assert.ErrorIs(err, ErrStakeTooLarge)

	_, err = l.Freeze("a", int64(MaxStake))
	assert.NoError(err)
	_, err = l.Freeze("a", 1)
	assert.ErrorIs(err, ErrStakeTooLarge)
	assert.Equal(MaxStake, l.Balance("a"))
}

func TestLedgerAllIsACopy(t *testing.T) {
	l := NewTokenLedger()
	l.Freeze("a", 10)

	all := l.All()
	all["a"] = 999
	assert.Equal(t, uint64(10), l.Balance("a"))
}
