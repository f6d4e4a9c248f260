package accrual

import (
	"errors"
	"math/big"
	"strings"
)

// Stream identifies one of the two entitlement accrual streams.
type Stream uint8

const (
	// StreamPrimary accrues rewards for a participant's own contributions.
	StreamPrimary Stream = iota
	// StreamReferral accrues rewards for contributions credited to a referrer.
	StreamReferral
)

func (s Stream) Valid() bool {
	switch s {
	case StreamPrimary, StreamReferral:
		return true
	default:
		return false
	}
}

func (s Stream) String() string {
	switch s {
	case StreamPrimary:
		return "primary"
	case StreamReferral:
		return "referral"
	default:
		return "unknown"
	}
}

// ParseStream converts the wire representation of a stream into its typed form.
func ParseStream(raw string) (Stream, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "primary":
		return StreamPrimary, nil
	case "referral":
		return StreamReferral, nil
	default:
		return StreamPrimary, errors.New("accrual: unknown stream " + raw)
	}
}

// Epoch is a contiguous run of days carrying one fixed reward budget per
// stream. EndDay is inclusive and epoch-relative to the schedule start.
type Epoch struct {
	EndDay        uint64
	PrimaryTotal  *big.Int
	ReferralTotal *big.Int
}

// Clone returns a deep copy of the epoch.
func (e Epoch) Clone() Epoch {
	return Epoch{
		EndDay:        e.EndDay,
		PrimaryTotal:  copyBigInt(e.PrimaryTotal),
		ReferralTotal: copyBigInt(e.ReferralTotal),
	}
}

// Total returns the epoch budget for the requested stream.
func (e Epoch) Total(stream Stream) *big.Int {
	if stream == StreamReferral {
		return copyBigInt(e.ReferralTotal)
	}
	return copyBigInt(e.PrimaryTotal)
}

// DailyAccrual is the write-once record produced when a day is finalized.
// CumRate* form the prefix-sum reward index enabling O(1) range queries
// between any two finalized days.
type DailyAccrual struct {
	Day                uint64
	UnitsAddedPrimary  *big.Int
	UnitsAddedReferral *big.Int
	CumUnitsPrimary    *big.Int
	CumUnitsReferral   *big.Int
	RatePrimary        *big.Int
	RateReferral       *big.Int
	CumRatePrimary     *big.Int
	CumRateReferral    *big.Int
}

func (d *DailyAccrual) cumUnits(stream Stream) *big.Int {
	if d == nil {
		return big.NewInt(0)
	}
	if stream == StreamReferral {
		return copyBigInt(d.CumUnitsReferral)
	}
	return copyBigInt(d.CumUnitsPrimary)
}

func (d *DailyAccrual) cumRate(stream Stream) *big.Int {
	if d == nil {
		return big.NewInt(0)
	}
	if stream == StreamReferral {
		return copyBigInt(d.CumRateReferral)
	}
	return copyBigInt(d.CumRatePrimary)
}

// Checkpoint marks the day from which a participant's cumulative unit balance
// took a new value. Lists are strictly increasing by day and append-only.
type Checkpoint struct {
	Day   uint64
	Units *big.Int
}

// ScheduleState tracks the lazy finalization pointer for the schedule.
type ScheduleState struct {
	Initialized      bool
	StartTime        uint64
	NextTickTime     uint64
	LastFinalizedDay uint64
}

// Clone returns a copy of the schedule state.
func (s *ScheduleState) Clone() *ScheduleState {
	if s == nil {
		return &ScheduleState{}
	}
	clone := *s
	return &clone
}

// ClaimState records how far a participant has been settled on a stream. The
// zero value means the participant has never claimed.
type ClaimState struct {
	Claimed bool
	LastDay uint64
}

// ClaimReceipt is the persisted record of a settled claim.
type ClaimReceipt struct {
	ID        string
	Stream    string
	FromDay   uint64
	ToDay     uint64
	Accrued   *big.Int
	Paid      *big.Int
	SettledAt uint64
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
