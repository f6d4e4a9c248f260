package accrual

import (
	"math/big"

	"vestchain/core/events"
)

// BackfillContribution inserts a historical contribution event into a day
// that is not yet finalized, performing the same ledger writes as a live
// contribution. A finalized day can never be rewritten.
func (e *Engine) BackfillContribution(participant, referrer [20]byte, units *big.Int, eventTime uint64, paidAmount *big.Int, creditBuyback bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sched, err := e.state.ScheduleState()
	if err != nil {
		return err
	}
	if !sched.Initialized {
		return ErrScheduleNotInitialized
	}
	if units == nil || units.Sign() <= 0 {
		return ErrZeroAmount
	}
	hasReferrer := referrer != [20]byte{}
	if hasReferrer && referrer == participant {
		return ErrSelfReferral
	}
	day := e.dayOf(sched, eventTime)
	if day < sched.LastFinalizedDay {
		return ErrDayAlreadyFinalized
	}
	if err := e.recordContribution(participant, referrer, hasReferrer, units, day); err != nil {
		return err
	}
	if creditBuyback && hasReferrer && e.params.BuybackRateBps > 0 && paidAmount != nil && paidAmount.Sign() > 0 {
		credited := new(big.Int).Mul(paidAmount, new(big.Int).SetUint64(uint64(e.params.BuybackRateBps)))
		credited.Quo(credited, big.NewInt(BuybackBpsDenominator))
		if credited.Sign() > 0 {
			balance, err := e.state.BuybackBalance(referrer)
			if err != nil {
				return err
			}
			if err := e.state.SetBuybackBalance(referrer, balance.Add(balance, credited)); err != nil {
				return err
			}
		}
	}
	e.emit(events.ContributionRecorded{
		Participant: participant,
		Units:       copyBigInt(units),
		Day:         day,
		Referrer:    referrer,
		HasReferrer: hasReferrer,
		Payment:     copyBigInt(paidAmount),
	})
	e.telemetry.ObserveContribution(hasReferrer)
	return nil
}

// BackfillTransfer moves units between participants effective on a day that
// is not yet finalized. Global per-day totals are unchanged; only the two
// checkpoint histories are re-based. The sender must have enough units on the
// effective day and on every later checkpoint.
func (e *Engine) BackfillTransfer(from, to [20]byte, units *big.Int, eventTime uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sched, err := e.state.ScheduleState()
	if err != nil {
		return err
	}
	if !sched.Initialized {
		return ErrScheduleNotInitialized
	}
	if units == nil || units.Sign() <= 0 {
		return ErrZeroAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	day := e.dayOf(sched, eventTime)
	if day < sched.LastFinalizedDay {
		return ErrDayAlreadyFinalized
	}
	debit := new(big.Int).Neg(units)
	if err := e.adjustCheckpoints(StreamPrimary, from, day+1, debit); err != nil {
		return err
	}
	return e.adjustCheckpoints(StreamPrimary, to, day+1, units)
}
