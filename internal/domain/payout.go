package domain

import "github.com/DIGIX666/Arena/internal/amount"

// PayoutKind distinguishes single- from split-currency disbursements.
type PayoutKind string

const (
	SingleCurrency PayoutKind = "single"
	SplitCurrency  PayoutKind = "split"
)

// Payout is the result of a payout computation. Secondary is zero unless
// Kind is SplitCurrency.
type Payout struct {
	Kind      PayoutKind    `json:"kind"`
	Base      amount.Amount `json:"base"`
	Secondary amount.Amount `json:"secondary"`
	// Bonus is the loyalty uplift already included in Base.
	Bonus amount.Amount `json:"bonus"`
}

// Single builds a base-currency payout.
func Single(base amount.Amount) Payout {
	return Payout{Kind: SingleCurrency, Base: base}
}

// Split builds a payout across both currencies.
func Split(base, secondary amount.Amount) Payout {
	return Payout{Kind: SplitCurrency, Base: base, Secondary: secondary}
}
