package escrow

import (
	"testing"

	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/store"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	s, err := store.New(dbm.NewMemDB(), nil)
	require.NoError(t, err)
	return NewLedger(store.NewCache(s.Block()))
}

func addr(b byte) core.Address {
	var a core.Address
	a[0] = b
	return a
}

func TestTransferConservesUnits(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint(addr(1), 1000))

	require.NoError(t, l.Transfer(addr(1), addr(2), 400, 0))

	from, err := l.Balance(addr(1))
	require.NoError(t, err)
	to, err := l.Balance(addr(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(600), from)
	assert.Equal(t, uint64(400), to)
}

func TestTransferHonoursStandingBalance(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint(addr(1), 1000))

	err := l.Transfer(addr(1), addr(2), 901, 100)
	assert.True(t, errors.Is(err, core.ErrInsufficientFunds))
	assert.True(t, errors.Is(err, core.ErrFunds))

	require.NoError(t, l.Transfer(addr(1), addr(2), 900, 100))
	bal, err := l.Balance(addr(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
}

func TestTransferRejectsOverdraft(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint(addr(1), 10))
	err := l.Transfer(addr(1), addr(2), 11, 0)
	assert.True(t, errors.Is(err, core.ErrInsufficientFunds))

	bal, err := l.Balance(addr(2))
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestMintOverflow(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint(addr(1), ^uint64(0)))
	err := l.Mint(addr(1), 1)
	assert.True(t, errors.Is(err, core.ErrOverflow))

	require.NoError(t, l.Mint(addr(2), 1))
	err = l.Transfer(addr(2), addr(1), 1, 0)
	assert.True(t, errors.Is(err, core.ErrOverflow))
}

func TestSweepEmptiesAccount(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint(addr(1), 77))

	moved, err := l.Sweep(addr(1), addr(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), moved)

	bal, err := l.Balance(addr(1))
	require.NoError(t, err)
	assert.Zero(t, bal)
	bal, err = l.Balance(addr(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), bal)
}
