package accrual

import "errors"

var (
	ErrScheduleNotInitialized     = errors.New("accrual: schedule not initialized")
	ErrScheduleAlreadyInitialized = errors.New("accrual: schedule already initialized")
	ErrScheduleNotStarted         = errors.New("accrual: schedule not started")
	ErrInvalidEpochOrdering       = errors.New("accrual: invalid epoch ordering")
	ErrEpochStarted               = errors.New("accrual: epoch already started")
	ErrEpochNotFound              = errors.New("accrual: epoch not found")
	ErrDayAlreadyFinalized        = errors.New("accrual: day already finalized")
	ErrNothingToClaim             = errors.New("accrual: nothing to claim")
	ErrZeroAmount                 = errors.New("accrual: amount must be positive")
	ErrSelfReferral               = errors.New("accrual: self referral not allowed")
	ErrSelfTransfer               = errors.New("accrual: self transfer not allowed")
	ErrReferralCodeNotFound       = errors.New("accrual: referral code not found")
	ErrInvalidReferralCode        = errors.New("accrual: invalid referral code format")
	ErrReferralCodeSpace          = errors.New("accrual: referral code space exhausted")
	ErrPaymentTransfer            = errors.New("accrual: payment transfer failed")
	ErrNoDaysToTick               = errors.New("accrual: no days to tick")
	ErrInsufficientUnits          = errors.New("accrual: insufficient units")
)
