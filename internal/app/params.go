package app

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/config"
	"github.com/DIGIX666/Arena/internal/crypto"
	"github.com/DIGIX666/Arena/internal/engine"
	"github.com/DIGIX666/Arena/internal/fees"
)

// EngineParams converts the engine section into engine.Params. Limits the
// configuration does not expose keep their defaults.
func EngineParams(cfg *config.Config) (engine.Params, error) {
	ec := cfg.Engine
	p := engine.DefaultParams()
	p.Operator = common.HexToAddress(ec.Operator)
	p.Custody = common.HexToAddress(ec.Custody)
	if cfg.Voucher.Authority != "" {
		p.VoucherAuthority = common.HexToAddress(cfg.Voucher.Authority)
	}

	var err error
	parse := func(field, s string, decimals uint8) amount.Amount {
		if err != nil || s == "" {
			return amount.Zero()
		}
		var a amount.Amount
		if a, err = amount.Parse(s, decimals); err != nil {
			err = fmt.Errorf("app: engine %s: %w", field, err)
		}
		return a
	}

	p.CreationFee = parse("creation_fee", ec.CreationFee, amount.BaseDecimals)
	p.UserCreationEnabled = ec.UserCreationEnabled
	p.Fees = fees.Schedule{
		PlatformFeeBps:     uint64(ec.PlatformFeeBps),
		ExemptionThreshold: parse("exemption_threshold", ec.ExemptionThreshold, amount.BaseDecimals),
	}
	for i, tier := range ec.BonusTiers {
		p.Fees.BonusTiers = append(p.Fees.BonusTiers, fees.BonusTier{
			MinFanTokens: parse(fmt.Sprintf("bonus_tiers[%d]", i), tier.MinFanTokens, amount.BaseDecimals),
			BonusBps:     uint64(tier.BonusBps),
		})
	}
	p.DisputeWindow = ec.DisputeWindow.Duration
	p.UserMaxHorizon = ec.UserMaxHorizon.Duration
	p.AdminMaxHorizon = ec.AdminMaxHorizon.Duration
	p.CreationPoints = uint64(ec.CreationPoints)
	p.ActivationCost = uint64(ec.ActivationCost)
	p.ImbalanceBps = uint64(ec.ImbalanceBps)

	sc := ec.Seasonal
	p.Seasonal = engine.SeasonalParams{
		MaxDuration:            sc.MaxDuration.Duration,
		MinEntryFee:            parse("seasonal.min_entry_fee", sc.MinEntryFee, amount.BaseDecimals),
		MaxEntryFee:            parse("seasonal.max_entry_fee", sc.MaxEntryFee, amount.BaseDecimals),
		MinFanTokens:           parse("seasonal.min_fan_tokens", sc.MinFanTokens, amount.BaseDecimals),
		FreeInsuranceThreshold: parse("seasonal.free_insurance_threshold", sc.FreeInsuranceThreshold, amount.BaseDecimals),
		InsuranceFee:           parse("seasonal.insurance_fee", sc.InsuranceFee, amount.BaseDecimals),
		VolatilityThresholdBps: uint64(sc.VolatilityThresholdBps),
		CheckInterval:          sc.CheckInterval.Duration,
		SecondaryBps:           uint64(sc.SecondaryBps),
	}
	if err != nil {
		return engine.Params{}, err
	}
	return p, nil
}

// VoucherDomain builds the EIP-712 domain vouchers are signed under.
func VoucherDomain(cfg *config.Config) crypto.VoucherDomain {
	return crypto.VoucherDomain{
		Name:              cfg.Voucher.Name,
		Version:           cfg.Voucher.Version,
		ChainID:           cfg.Voucher.ChainID,
		VerifyingContract: common.HexToAddress(cfg.Voucher.VerifyingContract),
	}
}

// Resolvers returns the configured resolver addresses.
func Resolvers(cfg *config.Config) []common.Address {
	out := make([]common.Address, 0, len(cfg.Engine.Resolvers))
	for _, r := range cfg.Engine.Resolvers {
		out = append(out, common.HexToAddress(r))
	}
	return out
}
