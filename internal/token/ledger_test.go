package token_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/token"
)

var (
	alice   = common.HexToAddress("0xa11ce")
	bob     = common.HexToAddress("0xb0b")
	custody = common.HexToAddress("0xc0ffee")
)

func units(n uint64) amount.Amount { return amount.Units(n, amount.BaseDecimals) }

func balance(t *testing.T, l *token.MemoryLedger, addr common.Address) amount.Amount {
	t.Helper()
	bal, err := l.BalanceOf(context.Background(), addr)
	require.NoError(t, err)
	return bal
}

func TestMemoryLedger_MintAndMove(t *testing.T) {
	l := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	require.NoError(t, l.Mint(alice, units(100)))

	require.NoError(t, l.Move(alice, bob, units(30)))
	assert.Equal(t, units(70), balance(t, l, alice))
	assert.Equal(t, units(30), balance(t, l, bob))
	assert.Equal(t, units(100), l.TotalSupply())

	err := l.Move(bob, alice, units(31))
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.Equal(t, units(30), balance(t, l, bob))

	assert.ErrorIs(t, l.Move(alice, common.Address{}, units(1)), token.ErrZeroAddress)
}

func TestMemoryLedger_MoveFromSpendsAllowance(t *testing.T) {
	l := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	require.NoError(t, l.Mint(alice, units(50)))
	require.NoError(t, l.Approve(alice, custody, units(20)))

	require.NoError(t, l.MoveFrom(custody, alice, custody, units(15)))
	assert.Equal(t, units(5), l.Allowance(alice, custody))
	assert.Equal(t, units(15), balance(t, l, custody))

	err := l.MoveFrom(custody, alice, custody, units(6))
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
	assert.Equal(t, units(35), balance(t, l, alice))
}

func TestMemoryLedger_CheckpointRollback(t *testing.T) {
	l := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	require.NoError(t, l.Mint(alice, units(10)))

	rollback, commit := l.Checkpoint()
	require.NoError(t, l.Move(alice, bob, units(4)))
	require.NoError(t, l.Approve(alice, custody, units(3)))
	rollback()
	commit()

	assert.Equal(t, units(10), balance(t, l, alice))
	assert.True(t, balance(t, l, bob).IsZero())
	assert.True(t, l.Allowance(alice, custody).IsZero())
}

func TestMemoryLedger_NestedCheckpoints(t *testing.T) {
	l := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	require.NoError(t, l.Mint(alice, units(10)))

	_, outerCommit := l.Checkpoint()
	require.NoError(t, l.Move(alice, bob, units(1)))

	innerRollback, _ := l.Checkpoint()
	require.NoError(t, l.Move(alice, bob, units(2)))
	innerRollback()

	assert.Equal(t, units(1), balance(t, l, bob))
	outerCommit()

	// Writes outside any checkpoint are not journaled.
	rollback, _ := l.Checkpoint()
	rollback()
	assert.Equal(t, units(1), balance(t, l, bob))
	assert.Equal(t, units(9), balance(t, l, alice))
}

func TestCustodian(t *testing.T) {
	l := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	c := token.NewCustodian(l, custody)
	ctx := context.Background()

	require.NoError(t, l.Mint(alice, units(10)))
	require.NoError(t, l.Approve(alice, custody, units(10)))

	require.NoError(t, c.TransferFrom(ctx, alice, custody, units(6)))
	require.NoError(t, c.Transfer(ctx, bob, units(4)))

	assert.Equal(t, units(2), balance(t, l, custody))
	assert.Equal(t, units(4), balance(t, l, bob))
	assert.ErrorIs(t, c.Transfer(ctx, bob, units(3)), token.ErrInsufficientBalance)
}

func TestMemoryLedger_ExportImport(t *testing.T) {
	l := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	require.NoError(t, l.Mint(alice, units(100)))
	require.NoError(t, l.Mint(bob, units(5)))
	require.NoError(t, l.Approve(alice, custody, units(40)))
	require.NoError(t, l.Move(bob, alice, units(5)))

	h := l.Export()
	assert.Equal(t, map[common.Address]amount.Amount{alice: units(105)}, h.Balances)
	assert.Equal(t, units(40), h.Allowances[alice][custody])

	restored := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	require.NoError(t, restored.Import(h))
	assert.Equal(t, units(105), balance(t, restored, alice))
	assert.Equal(t, units(105), restored.TotalSupply())
	assert.Equal(t, units(40), restored.Allowance(alice, custody))

	// The export is a copy.
	h.Balances[alice] = units(1)
	assert.Equal(t, units(105), balance(t, restored, alice))
}

func TestMemoryLedger_ImportDuringCheckpoint(t *testing.T) {
	l := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	rollback, _ := l.Checkpoint()
	defer rollback()
	assert.Error(t, l.Import(l.Export()))
}
