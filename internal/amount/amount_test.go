package amount_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/amount"
)

func TestParseAndFormat(t *testing.T) {
	a, err := amount.Parse("29.1", amount.BaseDecimals)
	require.NoError(t, err)
	assert.Equal(t, "29100000000000000000", a.String())
	assert.Equal(t, "29.1", a.Format(amount.BaseDecimals))

	usdc, err := amount.Parse("1250.67", amount.SecondaryDecimals)
	require.NoError(t, err)
	assert.Equal(t, "1250670000", usdc.String())

	zero, err := amount.Parse("0", amount.BaseDecimals)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
	assert.Equal(t, "0", zero.Format(amount.BaseDecimals))
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"-1", "abc", "", "0.0000001"} {
		_, err := amount.Parse(in, amount.SecondaryDecimals)
		assert.ErrorIs(t, err, amount.ErrInvalid, in)
	}
}

func TestUnitsAndBps(t *testing.T) {
	pot := amount.Units(30, amount.BaseDecimals)
	fee, err := pot.Bps(300)
	require.NoError(t, err)
	assert.Equal(t, "0.9", fee.Format(amount.BaseDecimals))
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := amount.FromUint64(1).Sub(amount.FromUint64(2))
	assert.ErrorIs(t, err, amount.ErrUnderflow)

	_, err = amount.FromUint64(1).MulDiv(amount.FromUint64(1), amount.Zero())
	assert.ErrorIs(t, err, amount.ErrDivisionByZero)

	top := amount.MustParseUnits("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	_, err = top.Add(amount.FromUint64(1))
	assert.ErrorIs(t, err, amount.ErrOverflow)

	// 512-bit intermediate: top*2/2 does not overflow.
	got, err := top.MulDiv(amount.FromUint64(2), amount.FromUint64(2))
	require.NoError(t, err)
	assert.True(t, got.Eq(top))
}

func TestJSONRoundTripAsString(t *testing.T) {
	type wrapper struct {
		Pot amount.Amount `json:"pot"`
	}
	raw, err := json.Marshal(wrapper{Pot: amount.Units(3, amount.BaseDecimals)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pot":"3000000000000000000"}`, string(raw))

	var back wrapper
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Pot.Eq(amount.Units(3, amount.BaseDecimals)))
}
