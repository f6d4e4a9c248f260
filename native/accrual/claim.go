package accrual

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"vestchain/core/events"
)

// Claim settles every finalized, unclaimed day for the participant on the
// given stream. The accrued amount is floored to the payout quantum exactly
// once, at this settlement boundary, so the ledger never promises more than
// it pays; internal accounting stays at full precision.
func (e *Engine) Claim(now time.Time, addr [20]byte, stream Stream) (*ClaimReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !stream.Valid() {
		return nil, fmt.Errorf("accrual: invalid stream %d", stream)
	}
	if _, err := e.tickLocked(now, 0); err != nil {
		return nil, err
	}
	sched, err := e.state.ScheduleState()
	if err != nil {
		return nil, err
	}
	if sched.LastFinalizedDay == 0 {
		return nil, ErrNothingToClaim
	}
	toDay := sched.LastFinalizedDay - 1

	cs, err := e.state.ClaimState(stream, addr)
	if err != nil {
		return nil, err
	}
	fromDay := uint64(0)
	if cs.Claimed {
		fromDay = cs.LastDay + 1
	}
	if fromDay > toDay {
		return nil, ErrNothingToClaim
	}

	accrued, err := e.accruedLocked(stream, addr, fromDay, toDay)
	if err != nil {
		return nil, err
	}
	if accrued.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	paid := new(big.Int).Quo(accrued, e.params.PayoutQuantum)
	paid.Mul(paid, e.params.PayoutQuantum)
	if paid.Sign() == 0 {
		return nil, ErrZeroAmount
	}

	if err := e.payments.Transfer(e.params.RewardToken, e.params.Treasury, addr, paid); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentTransfer, err)
	}
	if err := e.state.SetClaimState(stream, addr, &ClaimState{Claimed: true, LastDay: toDay}); err != nil {
		return nil, err
	}

	receipt := ClaimReceipt{
		ID:        uuid.NewString(),
		Stream:    stream.String(),
		FromDay:   fromDay,
		ToDay:     toDay,
		Accrued:   accrued,
		Paid:      paid,
		SettledAt: unixTimestamp(now),
	}
	if err := e.state.AppendClaimReceipt(addr, receipt); err != nil {
		return nil, err
	}

	e.emit(events.ClaimSettled{
		ReceiptID:   receipt.ID,
		Participant: addr,
		Stream:      receipt.Stream,
		Amount:      copyBigInt(paid),
		FromDay:     fromDay,
		ToDay:       toDay,
	})
	e.telemetry.ObserveClaimSettled(stream.String())
	return &receipt, nil
}

// WithdrawBuyback transfers and zeroes the participant's buyback balance.
func (e *Engine) WithdrawBuyback(addr [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	balance, err := e.state.BuybackBalance(addr)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if err := e.payments.Transfer(e.params.PaymentToken, e.params.Treasury, addr, balance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentTransfer, err)
	}
	if err := e.state.SetBuybackBalance(addr, big.NewInt(0)); err != nil {
		return nil, err
	}
	e.emit(events.BuybackWithdrawn{Participant: addr, Amount: copyBigInt(balance)})
	e.telemetry.ObserveBuybackWithdrawn()
	return balance, nil
}

// BuybackBalanceOf reports the participant's withdrawable buyback credit.
func (e *Engine) BuybackBalanceOf(addr [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.BuybackBalance(addr)
}
