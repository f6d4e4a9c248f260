package events

import (
	"math/big"
	"strconv"

	"vestchain/core/types"
	"vestchain/crypto"
)

const (
	// TypeScheduleInitialized is emitted once when the epoch schedule is set.
	TypeScheduleInitialized = "accrual.schedule_initialized"
	// TypeEpochTotalsUpdated records an admin adjustment of a future epoch.
	TypeEpochTotalsUpdated = "accrual.epoch_totals_updated"
	// TypeDayFinalized captures the rates and denominators of a finalized day.
	TypeDayFinalized = "accrual.day_finalized"
	// TypeContributionRecorded captures an accepted contribution.
	TypeContributionRecorded = "accrual.contribution_recorded"
	// TypeClaimSettled is emitted when a reward claim pays out.
	TypeClaimSettled = "accrual.claim_settled"
	// TypeBuybackWithdrawn is emitted when a buyback balance is swept.
	TypeBuybackWithdrawn = "accrual.buyback_withdrawn"
	// TypeReferralCodeAssigned records a freshly assigned referral code.
	TypeReferralCodeAssigned = "accrual.referral_code_assigned"
)

// ScheduleInitialized records the one-time schedule setup.
type ScheduleInitialized struct {
	StartTime uint64
	Epochs    uint64
	LastDay   uint64
}

// EventType satisfies the Event interface.
func (ScheduleInitialized) EventType() string { return TypeScheduleInitialized }

// Event converts the structured payload into a broadcastable event.
func (e ScheduleInitialized) Event() *types.Event {
	return &types.Event{Type: TypeScheduleInitialized, Attributes: map[string]string{
		"startTime": strconv.FormatUint(e.StartTime, 10),
		"epochs":    strconv.FormatUint(e.Epochs, 10),
		"lastDay":   strconv.FormatUint(e.LastDay, 10),
	}}
}

// EpochTotalsUpdated captures an adjustment of a not-yet-started epoch.
type EpochTotalsUpdated struct {
	Epoch         uint64
	PrimaryTotal  *big.Int
	ReferralTotal *big.Int
}

func (EpochTotalsUpdated) EventType() string { return TypeEpochTotalsUpdated }

func (e EpochTotalsUpdated) Event() *types.Event {
	return &types.Event{Type: TypeEpochTotalsUpdated, Attributes: map[string]string{
		"epoch":         strconv.FormatUint(e.Epoch, 10),
		"primaryTotal":  formatAmount(e.PrimaryTotal),
		"referralTotal": formatAmount(e.ReferralTotal),
	}}
}

// DayFinalized captures the per-unit rates and denominators written for a day.
type DayFinalized struct {
	Day            uint64
	RatePrimary    *big.Int
	RateReferral   *big.Int
	DenomPrimary   *big.Int
	DenomReferral  *big.Int
	PoolPrimary    *big.Int
	PoolReferral   *big.Int
	CumRatePrimary *big.Int
}

func (DayFinalized) EventType() string { return TypeDayFinalized }

func (e DayFinalized) Event() *types.Event {
	attrs := map[string]string{
		"day":           strconv.FormatUint(e.Day, 10),
		"ratePrimary":   formatAmount(e.RatePrimary),
		"rateReferral":  formatAmount(e.RateReferral),
		"denomPrimary":  formatAmount(e.DenomPrimary),
		"denomReferral": formatAmount(e.DenomReferral),
	}
	if e.PoolPrimary != nil {
		attrs["poolPrimary"] = e.PoolPrimary.String()
	}
	if e.PoolReferral != nil {
		attrs["poolReferral"] = e.PoolReferral.String()
	}
	if e.CumRatePrimary != nil {
		attrs["cumRatePrimary"] = e.CumRatePrimary.String()
	}
	return &types.Event{Type: TypeDayFinalized, Attributes: attrs}
}

// ContributionRecorded captures an accepted contribution and its referral
// attribution, if any.
type ContributionRecorded struct {
	Participant [20]byte
	Units       *big.Int
	Day         uint64
	Referrer    [20]byte
	HasReferrer bool
	Payment     *big.Int
	Code        string
}

func (ContributionRecorded) EventType() string { return TypeContributionRecorded }

func (e ContributionRecorded) Event() *types.Event {
	attrs := map[string]string{
		"participant": crypto.MustNewAddress(crypto.VestPrefix, e.Participant[:]).String(),
		"units":       formatAmount(e.Units),
		"day":         strconv.FormatUint(e.Day, 10),
	}
	if e.HasReferrer && !zeroAddress(e.Referrer) {
		attrs["referrer"] = crypto.MustNewAddress(crypto.VestPrefix, e.Referrer[:]).String()
	}
	if e.Payment != nil && e.Payment.Sign() > 0 {
		attrs["payment"] = e.Payment.String()
	}
	if e.Code != "" {
		attrs["creditedCode"] = e.Code
	}
	return &types.Event{Type: TypeContributionRecorded, Attributes: attrs}
}

// ClaimSettled captures a settled reward claim window.
type ClaimSettled struct {
	ReceiptID   string
	Participant [20]byte
	Stream      string
	Amount      *big.Int
	FromDay     uint64
	ToDay       uint64
}

func (ClaimSettled) EventType() string { return TypeClaimSettled }

func (e ClaimSettled) Event() *types.Event {
	return &types.Event{Type: TypeClaimSettled, Attributes: map[string]string{
		"receipt":     e.ReceiptID,
		"participant": crypto.MustNewAddress(crypto.VestPrefix, e.Participant[:]).String(),
		"stream":      e.Stream,
		"amount":      formatAmount(e.Amount),
		"fromDay":     strconv.FormatUint(e.FromDay, 10),
		"toDay":       strconv.FormatUint(e.ToDay, 10),
	}}
}

// BuybackWithdrawn captures a full buyback balance withdrawal.
type BuybackWithdrawn struct {
	Participant [20]byte
	Amount      *big.Int
}

func (BuybackWithdrawn) EventType() string { return TypeBuybackWithdrawn }

func (e BuybackWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeBuybackWithdrawn, Attributes: map[string]string{
		"participant": crypto.MustNewAddress(crypto.VestPrefix, e.Participant[:]).String(),
		"amount":      formatAmount(e.Amount),
	}}
}

// ReferralCodeAssigned records the lazily generated referral code for a
// participant.
type ReferralCodeAssigned struct {
	Participant [20]byte
	Code        string
}

func (ReferralCodeAssigned) EventType() string { return TypeReferralCodeAssigned }

func (e ReferralCodeAssigned) Event() *types.Event {
	return &types.Event{Type: TypeReferralCodeAssigned, Attributes: map[string]string{
		"participant": crypto.MustNewAddress(crypto.VestPrefix, e.Participant[:]).String(),
		"code":        e.Code,
	}}
}
