package accrual

import (
	"math/big"
	"time"
)

// rangeRate returns the summed per-unit rate over the inclusive finalized-day
// window [a, b] using the prefix-sum index. It fails closed to zero when the
// window is empty.
func (e *Engine) rangeRate(stream Stream, a, b uint64) (*big.Int, error) {
	if a > b {
		return big.NewInt(0), nil
	}
	end, _, err := e.state.DailyAccrual(b)
	if err != nil {
		return nil, err
	}
	sum := end.cumRate(stream)
	if a > 0 {
		start, _, err := e.state.DailyAccrual(a - 1)
		if err != nil {
			return nil, err
		}
		sum.Sub(sum, start.cumRate(stream))
	}
	return sum, nil
}

// accruedLocked computes the exact accrued amount over the inclusive
// finalized-day window [fromDay, toDay] by walking the checkpoint history
// once: within each segment bounded by consecutive checkpoints the balance is
// constant, so the segment contributes balance times the range-summed rate.
// Cost is proportional to checkpoint count, not elapsed days.
func (e *Engine) accruedLocked(stream Stream, addr [20]byte, fromDay, toDay uint64) (*big.Int, error) {
	total := big.NewInt(0)
	if fromDay > toDay {
		return total, nil
	}
	list, err := e.state.Checkpoints(stream, addr)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Units == nil || list[i].Units.Sign() == 0 {
			continue
		}
		segStart := list[i].Day
		if segStart < fromDay {
			segStart = fromDay
		}
		segEnd := toDay
		if i+1 < len(list) && list[i+1].Day-1 < segEnd {
			segEnd = list[i+1].Day - 1
		}
		if segStart > segEnd {
			continue
		}
		rate, err := e.rangeRate(stream, segStart, segEnd)
		if err != nil {
			return nil, err
		}
		if rate.Sign() == 0 {
			continue
		}
		total.Add(total, rate.Mul(rate, list[i].Units))
	}
	return total, nil
}

// PreviewClaimable projects the amount a claim at the supplied time would
// settle, plus the still-unfinalized tail up to that time. It is pure: rates
// for unfinalized days are re-derived locally and discarded, never written.
func (e *Engine) PreviewClaimable(atTime time.Time, addr [20]byte, stream Stream) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sched, err := e.state.ScheduleState()
	if err != nil {
		return nil, err
	}
	if !sched.Initialized {
		return nil, ErrScheduleNotInitialized
	}
	cs, err := e.state.ClaimState(stream, addr)
	if err != nil {
		return nil, err
	}
	fromDay := uint64(0)
	if cs.Claimed {
		fromDay = cs.LastDay + 1
	}

	total := big.NewInt(0)
	if sched.LastFinalizedDay > 0 && fromDay <= sched.LastFinalizedDay-1 {
		finalized, err := e.accruedLocked(stream, addr, fromDay, sched.LastFinalizedDay-1)
		if err != nil {
			return nil, err
		}
		total.Add(total, finalized)
	}

	tail, err := e.simulateUnfinalized(sched, stream, addr, fromDay, unixTimestamp(atTime))
	if err != nil {
		return nil, err
	}
	return total.Add(total, tail), nil
}

// simulateUnfinalized re-derives per-unit rates for days that have elapsed by
// atTs but are not yet finalized, projecting the denominator from the last
// finalized cumulative units plus recorded-but-unfinalized additions.
func (e *Engine) simulateUnfinalized(sched *ScheduleState, stream Stream, addr [20]byte, fromDay, atTs uint64) (*big.Int, error) {
	total := big.NewInt(0)
	if atTs < sched.StartTime {
		return total, nil
	}
	epochs, err := e.state.Epochs()
	if err != nil {
		return nil, err
	}
	list, err := e.state.Checkpoints(stream, addr)
	if err != nil {
		return nil, err
	}

	denom := big.NewInt(0)
	if sched.LastFinalizedDay > 0 {
		prev, _, err := e.state.DailyAccrual(sched.LastFinalizedDay - 1)
		if err != nil {
			return nil, err
		}
		denom = prev.cumUnits(stream)
	}

	for day := sched.LastFinalizedDay; sched.StartTime+(day+1)*e.params.DayLength <= atTs; day++ {
		if day >= fromDay {
			pool := dailyPoolForDay(epochs, day, stream)
			if denom.Sign() > 0 && pool.Sign() > 0 {
				balance := unitsAtDay(list, day)
				if balance.Sign() > 0 {
					rate := new(big.Int).Quo(pool, denom)
					total.Add(total, rate.Mul(rate, balance))
				}
			}
		}
		added, err := e.state.PendingUnits(stream, day)
		if err != nil {
			return nil, err
		}
		denom = new(big.Int).Add(denom, added)
	}
	return total, nil
}
