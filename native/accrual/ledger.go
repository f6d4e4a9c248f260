package accrual

import (
	"fmt"
	"math/big"
	"time"

	"vestchain/core/events"
)

// ContributionReceipt summarises an accepted contribution.
type ContributionReceipt struct {
	Day             uint64
	EffectiveDay    uint64
	Units           *big.Int
	Code            string
	Referrer        [20]byte
	HasReferrer     bool
	BuybackCredited *big.Int
}

// Contribute records a contribution of units at the current time. Units start
// earning the following day; if a referral code resolves to another
// participant, the same units are mirrored on the referrer's referral stream
// and a share of the payment is credited to the referrer's buyback balance.
func (e *Engine) Contribute(now time.Time, participant [20]byte, units *big.Int, code string, payment *big.Int) (*ContributionReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.tickLocked(now, 0); err != nil {
		return nil, err
	}
	sched, err := e.state.ScheduleState()
	if err != nil {
		return nil, err
	}
	nowTs := unixTimestamp(now)
	if nowTs < sched.StartTime {
		return nil, ErrScheduleNotStarted
	}
	if units == nil || units.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	var referrer [20]byte
	hasReferrer := false
	if code != "" {
		owner, err := e.resolveLocked(code)
		if err != nil {
			return nil, err
		}
		if owner == participant {
			return nil, ErrSelfReferral
		}
		referrer = owner
		hasReferrer = true
	}

	if payment != nil && payment.Sign() > 0 {
		if err := e.payments.Transfer(e.params.PaymentToken, participant, e.params.Treasury, payment); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentTransfer, err)
		}
	}

	ownCode, _, err := e.ensureCodeLocked(participant)
	if err != nil {
		return nil, err
	}

	day := e.dayOf(sched, nowTs)
	if err := e.recordContribution(participant, referrer, hasReferrer, units, day); err != nil {
		return nil, err
	}

	credited := big.NewInt(0)
	if hasReferrer && e.params.BuybackRateBps > 0 && payment != nil && payment.Sign() > 0 {
		credited = new(big.Int).Mul(payment, new(big.Int).SetUint64(uint64(e.params.BuybackRateBps)))
		credited.Quo(credited, big.NewInt(BuybackBpsDenominator))
		if credited.Sign() > 0 {
			balance, err := e.state.BuybackBalance(referrer)
			if err != nil {
				return nil, err
			}
			if err := e.state.SetBuybackBalance(referrer, balance.Add(balance, credited)); err != nil {
				return nil, err
			}
		}
	}

	e.emit(events.ContributionRecorded{
		Participant: participant,
		Units:       copyBigInt(units),
		Day:         day,
		Referrer:    referrer,
		HasReferrer: hasReferrer,
		Payment:     copyBigInt(payment),
		Code:        code,
	})
	e.telemetry.ObserveContribution(hasReferrer)

	return &ContributionReceipt{
		Day:             day,
		EffectiveDay:    day + 1,
		Units:           copyBigInt(units),
		Code:            ownCode,
		Referrer:        referrer,
		HasReferrer:     hasReferrer,
		BuybackCredited: credited,
	}, nil
}

// recordContribution performs the ledger writes shared by live contributions
// and admin backfill: pending units for the event day plus a checkpoint
// effective the following day, mirrored on the referrer's referral stream.
func (e *Engine) recordContribution(participant, referrer [20]byte, hasReferrer bool, units *big.Int, day uint64) error {
	if err := e.state.AddPendingUnits(StreamPrimary, day, units); err != nil {
		return err
	}
	if err := e.adjustCheckpoints(StreamPrimary, participant, day+1, units); err != nil {
		return err
	}
	if hasReferrer {
		if err := e.state.AddPendingUnits(StreamReferral, day, units); err != nil {
			return err
		}
		if err := e.adjustCheckpoints(StreamReferral, referrer, day+1, units); err != nil {
			return err
		}
	}
	total, err := e.state.TotalUnits()
	if err != nil {
		return err
	}
	return e.state.SetTotalUnits(total.Add(total, units))
}

// adjustCheckpoints applies a signed unit delta effective on the given day.
// The common case appends at the tail; backfilled days insert in order and
// re-base every later checkpoint so cumulative balances stay consistent.
func (e *Engine) adjustCheckpoints(stream Stream, addr [20]byte, day uint64, delta *big.Int) error {
	list, err := e.state.Checkpoints(stream, addr)
	if err != nil {
		return err
	}

	// Position of the first checkpoint with Day >= day.
	pos := len(list)
	for i := range list {
		if list[i].Day >= day {
			pos = i
			break
		}
	}

	prior := big.NewInt(0)
	if pos > 0 {
		prior = copyBigInt(list[pos-1].Units)
	}

	if pos < len(list) && list[pos].Day == day {
		list[pos].Units = new(big.Int).Add(list[pos].Units, delta)
		if list[pos].Units.Sign() < 0 {
			return ErrInsufficientUnits
		}
		pos++
	} else {
		inserted := Checkpoint{Day: day, Units: new(big.Int).Add(prior, delta)}
		if inserted.Units.Sign() < 0 {
			return ErrInsufficientUnits
		}
		list = append(list, Checkpoint{})
		copy(list[pos+1:], list[pos:])
		list[pos] = inserted
		pos++
	}
	for i := pos; i < len(list); i++ {
		list[i].Units = new(big.Int).Add(list[i].Units, delta)
		if list[i].Units.Sign() < 0 {
			return ErrInsufficientUnits
		}
	}
	return e.state.SetCheckpoints(stream, addr, list)
}
