// Package fees computes creation fees, the platform skim, pari-mutuel shares,
// loyalty bonuses and the dual-currency split. Every function is pure.
package fees

import (
	"errors"
	"fmt"
	"sort"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
)

// ErrNoWinners is returned when the winning outcome carries no stake.
var ErrNoWinners = errors.New("fees: winning outcome has no stake")

// BonusTier grants BonusBps to holders of at least MinFanTokens.
type BonusTier struct {
	MinFanTokens amount.Amount
	BonusBps     uint64
}

// Schedule is the fee configuration the calculator works from.
type Schedule struct {
	PlatformFeeBps     uint64
	ExemptionThreshold amount.Amount
	BonusTiers         []BonusTier
}

// CreationFee returns the fee a creator owes. A zero fee, or a fan-token
// balance at or above the exemption threshold, owes nothing.
func (s Schedule) CreationFee(fee, fanBalance amount.Amount) (charge amount.Amount, exempt bool) {
	if fee.IsZero() {
		return amount.Zero(), false
	}
	if fanBalance.Gte(s.ExemptionThreshold) {
		return amount.Zero(), true
	}
	return fee, false
}

// Skim splits the pot into the platform fee and the net pot.
func (s Schedule) Skim(pot amount.Amount) (fee, net amount.Amount, err error) {
	fee, err = pot.Bps(s.PlatformFeeBps)
	if err != nil {
		return amount.Zero(), amount.Zero(), fmt.Errorf("fees: skim: %w", err)
	}
	net, err = pot.Sub(fee)
	if err != nil {
		return amount.Zero(), amount.Zero(), fmt.Errorf("fees: skim: %w", err)
	}
	return fee, net, nil
}

// BaseGain is the pari-mutuel share stake*netPot/winningPot.
func BaseGain(stake, netPot, winningPot amount.Amount) (amount.Amount, error) {
	if winningPot.IsZero() {
		return amount.Zero(), ErrNoWinners
	}
	gain, err := stake.MulDiv(netPot, winningPot)
	if err != nil {
		return amount.Zero(), fmt.Errorf("fees: base gain: %w", err)
	}
	return gain, nil
}

// Share computes a winner's payout with exact conservation. The claimant
// whose stake completes the winning pot receives whatever the earlier floors
// left behind, so the sum of all shares equals netPot.
func Share(stake, netPot, winningPot, claimedStake, paidOut amount.Amount) (amount.Amount, error) {
	remaining, err := netPot.Sub(paidOut)
	if err != nil {
		return amount.Zero(), fmt.Errorf("fees: share: %w", err)
	}
	afterClaim, err := claimedStake.Add(stake)
	if err != nil {
		return amount.Zero(), fmt.Errorf("fees: share: %w", err)
	}
	if afterClaim.Gte(winningPot) {
		return remaining, nil
	}
	gain, err := BaseGain(stake, netPot, winningPot)
	if err != nil {
		return amount.Zero(), err
	}
	return amount.Min(gain, remaining), nil
}

// BonusBps returns the best tier the fan-token balance qualifies for.
func (s Schedule) BonusBps(fanBalance amount.Amount) uint64 {
	tiers := append([]BonusTier(nil), s.BonusTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinFanTokens.Gt(tiers[j].MinFanTokens) })
	for _, t := range tiers {
		if fanBalance.Gte(t.MinFanTokens) {
			return t.BonusBps
		}
	}
	return 0
}

// Surplus is what a claim of stake may add as bonus on top of base without
// touching the shares other winners have yet to claim:
//
//	netPot - paidOut - base - (winningPot-claimedStake-stake)*netPot/winningPot
//
// floored at zero.
func Surplus(netPot, paidOut, base, winningPot, claimedStake, stake amount.Amount) (amount.Amount, error) {
	left, err := netPot.Sub(paidOut)
	if err != nil {
		return amount.Zero(), fmt.Errorf("fees: surplus: %w", err)
	}
	if left, err = left.Sub(base); err != nil {
		return amount.Zero(), fmt.Errorf("fees: surplus: %w", err)
	}
	afterClaim, err := claimedStake.Add(stake)
	if err != nil {
		return amount.Zero(), fmt.Errorf("fees: surplus: %w", err)
	}
	if afterClaim.Gte(winningPot) {
		return left, nil
	}
	others, err := winningPot.Sub(afterClaim)
	if err != nil {
		return amount.Zero(), fmt.Errorf("fees: surplus: %w", err)
	}
	reserved, err := BaseGain(others, netPot, winningPot)
	if err != nil {
		return amount.Zero(), err
	}
	if reserved.Gte(left) {
		return amount.Zero(), nil
	}
	return left.Sub(reserved)
}

// Bonus is min(baseGain*bonusBps/10000, remaining).
func Bonus(baseGain amount.Amount, bonusBps uint64, remaining amount.Amount) (amount.Amount, error) {
	if bonusBps == 0 {
		return amount.Zero(), nil
	}
	b, err := baseGain.Bps(bonusBps)
	if err != nil {
		return amount.Zero(), fmt.Errorf("fees: bonus: %w", err)
	}
	return amount.Min(b, remaining), nil
}

// SplitPayout divides a gross base-currency payout into a base part and a
// secondary part. secondaryBps of the gross converts at rate, expressed as
// secondary units per one whole base unit. converted is the base amount
// that was exchanged for the secondary part.
func SplitPayout(gross amount.Amount, secondaryBps uint64, rate amount.Amount) (p domain.Payout, converted amount.Amount, err error) {
	converted, err = gross.Bps(secondaryBps)
	if err != nil {
		return domain.Payout{}, amount.Zero(), fmt.Errorf("fees: split: %w", err)
	}
	base, err := gross.Sub(converted)
	if err != nil {
		return domain.Payout{}, amount.Zero(), fmt.Errorf("fees: split: %w", err)
	}
	secondary, err := converted.MulDiv(rate, amount.One(amount.BaseDecimals))
	if err != nil {
		return domain.Payout{}, amount.Zero(), fmt.Errorf("fees: split: %w", err)
	}
	return domain.Split(base, secondary), converted, nil
}

// Imbalanced reports whether a pool is too one-sided to settle fairly: fewer
// than two outcomes carry stake, or the largest outcome pot holds at least
// thresholdBps of the total.
func Imbalanced(outcomePots []amount.Amount, total amount.Amount, thresholdBps uint64) (bool, error) {
	staked := 0
	largest := amount.Zero()
	for _, p := range outcomePots {
		if !p.IsZero() {
			staked++
		}
		largest = amount.Max(largest, p)
	}
	if staked < 2 {
		return true, nil
	}
	limit, err := total.Bps(thresholdBps)
	if err != nil {
		return false, fmt.Errorf("fees: imbalance: %w", err)
	}
	return largest.Gte(limit), nil
}
