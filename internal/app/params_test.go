package app_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/app"
	"github.com/DIGIX666/Arena/internal/config"
	"github.com/DIGIX666/Arena/internal/engine"
)

const (
	operatorHex  = "0x1000000000000000000000000000000000000001"
	custodyHex   = "0x2000000000000000000000000000000000000002"
	authorityHex = "0x3000000000000000000000000000000000000003"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Engine.Operator = operatorHex
	cfg.Engine.Custody = custodyHex
	cfg.Voucher.Authority = authorityHex
	return &cfg
}

func TestEngineParams_DefaultsMatchEngine(t *testing.T) {
	got, err := app.EngineParams(testConfig())
	require.NoError(t, err)

	want := engine.DefaultParams()
	want.Operator = common.HexToAddress(operatorHex)
	want.Custody = common.HexToAddress(custodyHex)
	want.VoucherAuthority = common.HexToAddress(authorityHex)
	assert.Equal(t, want, got)
}

func TestEngineParams_Overrides(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.CreationFee = "1.25"
	cfg.Engine.PlatformFeeBps = 250
	cfg.Engine.BonusTiers = []config.BonusTierConfig{{MinFanTokens: "10", BonusBps: 50}}
	cfg.Engine.Seasonal.InsuranceFee = "0"

	got, err := app.EngineParams(cfg)
	require.NoError(t, err)
	assert.Equal(t, amount.MustParse("1.25", amount.BaseDecimals), got.CreationFee)
	assert.Equal(t, uint64(250), got.Fees.PlatformFeeBps)
	require.Len(t, got.Fees.BonusTiers, 1)
	assert.Equal(t, amount.Units(10, amount.BaseDecimals), got.Fees.BonusTiers[0].MinFanTokens)
	assert.True(t, got.Seasonal.InsuranceFee.IsZero())
}

func TestEngineParams_RejectsBadAmount(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.Seasonal.MinEntryFee = "lots"
	_, err := app.EngineParams(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seasonal.min_entry_fee")
}

func TestVoucherDomainAndResolvers(t *testing.T) {
	cfg := testConfig()
	cfg.Voucher.VerifyingContract = custodyHex
	cfg.Engine.Resolvers = []string{operatorHex, authorityHex}

	d := app.VoucherDomain(cfg)
	assert.Equal(t, "BetFi Exclusive", d.Name)
	assert.Equal(t, int64(88882), d.ChainID)
	assert.Equal(t, common.HexToAddress(custodyHex), d.VerifyingContract)

	assert.Equal(t, []common.Address{
		common.HexToAddress(operatorHex),
		common.HexToAddress(authorityHex),
	}, app.Resolvers(cfg))
}
