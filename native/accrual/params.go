package accrual

import (
	"errors"
	"math/big"
)

const (
	// BuybackBpsDenominator is the fixed denominator for the buyback rate.
	BuybackBpsDenominator = 10_000
	// DefaultDayLength is the length of one accrual day in seconds.
	DefaultDayLength = 24 * 60 * 60
)

// DefaultPayoutQuantum truncates 18-decimal accrual amounts to 6-decimal
// payout granularity at the settlement boundary.
var DefaultPayoutQuantum = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

// Params carries the static ledger configuration supplied at construction.
type Params struct {
	// DayLength is the duration of one accrual day in seconds.
	DayLength uint64
	// BuybackRateBps is the share of a referred payment credited to the
	// referrer's buyback balance, in basis points.
	BuybackRateBps uint32
	// PayoutQuantum is the coarse payout unit; claim amounts are truncated
	// to a multiple of it exactly once, before transfer.
	PayoutQuantum *big.Int
	// RewardToken is the symbol of the asset paid out on claims.
	RewardToken string
	// PaymentToken is the symbol of the asset contributions are paid in and
	// buyback balances are denominated in.
	PaymentToken string
	// Treasury funds claim payouts and buyback withdrawals and receives
	// contribution payments.
	Treasury [20]byte
}

// Normalize fills zero-valued fields with defaults. The receiver is returned
// to allow fluent usage.
func (p *Params) Normalize() *Params {
	if p == nil {
		return nil
	}
	if p.DayLength == 0 {
		p.DayLength = DefaultDayLength
	}
	if p.PayoutQuantum == nil || p.PayoutQuantum.Sign() <= 0 {
		p.PayoutQuantum = new(big.Int).Set(DefaultPayoutQuantum)
	}
	if p.RewardToken == "" {
		p.RewardToken = "VST"
	}
	if p.PaymentToken == "" {
		p.PaymentToken = "USDV"
	}
	return p
}

// Validate checks the parameter set for internal consistency.
func (p *Params) Validate() error {
	if p == nil {
		return errors.New("accrual: nil params")
	}
	if p.DayLength == 0 {
		return errors.New("accrual: day length must be positive")
	}
	if p.BuybackRateBps > BuybackBpsDenominator {
		return errors.New("accrual: buyback rate above 100%")
	}
	if p.PayoutQuantum == nil || p.PayoutQuantum.Sign() <= 0 {
		return errors.New("accrual: payout quantum must be positive")
	}
	if p.Treasury == ([20]byte{}) {
		return errors.New("accrual: treasury address required")
	}
	return nil
}
