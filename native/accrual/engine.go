package accrual

import (
	"math/big"
	"sync"
	"time"

	"vestchain/core/events"
	"vestchain/observability/metrics"
)

// Ledger describes the persistence the accrual engine needs from the
// surrounding state implementation. All returned values are copies; mutations
// go through the setters.
type Ledger interface {
	ScheduleState() (*ScheduleState, error)
	SetScheduleState(*ScheduleState) error
	Epochs() ([]Epoch, error)
	SetEpochs([]Epoch) error

	DailyAccrual(day uint64) (*DailyAccrual, bool, error)
	PutDailyAccrual(*DailyAccrual) error
	PendingUnits(stream Stream, day uint64) (*big.Int, error)
	AddPendingUnits(stream Stream, day uint64, delta *big.Int) error

	Checkpoints(stream Stream, addr [20]byte) ([]Checkpoint, error)
	SetCheckpoints(stream Stream, addr [20]byte, list []Checkpoint) error
	ClaimState(stream Stream, addr [20]byte) (*ClaimState, error)
	SetClaimState(stream Stream, addr [20]byte, cs *ClaimState) error
	AppendClaimReceipt(addr [20]byte, receipt ClaimReceipt) error

	ReferralCodeOf(addr [20]byte) (string, bool, error)
	ReferralOwner(code string) ([20]byte, bool, error)
	SetReferralCode(addr [20]byte, code string) error

	BuybackBalance(addr [20]byte) (*big.Int, error)
	SetBuybackBalance(addr [20]byte, amount *big.Int) error

	TotalUnits() (*big.Int, error)
	SetTotalUnits(*big.Int) error
}

// PaymentLedger moves value between accounts. It is the external collaborator
// settling payouts; the accrual engine never holds balances itself.
type PaymentLedger interface {
	Transfer(token string, from, to [20]byte, amount *big.Int) error
}

// Engine is the time-sliced reward-accrual ledger. All mutating operations are
// serialized behind a single mutex so no two mutations interleave on the same
// instance; tick catch-up always runs before a mutation reads current state.
type Engine struct {
	mu        sync.Mutex
	state     Ledger
	payments  PaymentLedger
	emitter   events.Emitter
	params    Params
	telemetry *metrics.AccrualMetrics
}

// NewEngine constructs an accrual engine bound to the provided state and
// payment collaborator.
func NewEngine(state Ledger, payments PaymentLedger, emitter events.Emitter, params Params) (*Engine, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{
		state:     state,
		payments:  payments,
		emitter:   emitter,
		params:    params,
		telemetry: metrics.Accrual(),
	}, nil
}

// Params returns a copy of the engine configuration.
func (e *Engine) Params() Params {
	clone := e.params
	clone.PayoutQuantum = copyBigInt(e.params.PayoutQuantum)
	return clone
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// dayOf maps a unix timestamp at or after the schedule start to its day index.
func (e *Engine) dayOf(sched *ScheduleState, ts uint64) uint64 {
	if ts <= sched.StartTime {
		return 0
	}
	return (ts - sched.StartTime) / e.params.DayLength
}

func unixTimestamp(now time.Time) uint64 {
	ts := now.UTC().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// ScheduleStatus returns the current schedule pointers.
func (e *Engine) ScheduleStatus() (*ScheduleState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ScheduleState()
}

// TotalUnits reports the cumulative units ever contributed on the primary
// stream, including units whose day is not yet finalized.
func (e *Engine) TotalUnits() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TotalUnits()
}

// UnitsAtDay resolves the participant's cumulative unit balance effective on
// the given day by walking the checkpoint history.
func (e *Engine) UnitsAtDay(addr [20]byte, stream Stream, day uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list, err := e.state.Checkpoints(stream, addr)
	if err != nil {
		return nil, err
	}
	return unitsAtDay(list, day), nil
}

func unitsAtDay(list []Checkpoint, day uint64) *big.Int {
	units := big.NewInt(0)
	for i := range list {
		if list[i].Day > day {
			break
		}
		units = copyBigInt(list[i].Units)
	}
	return units
}
