package accrual

import (
	"math/big"
	"time"

	"vestchain/core/events"
)

// Tick finalizes every day fully elapsed at the supplied time. It is
// idempotent with respect to the clock: calling it again with no elapsed day
// is a no-op. The number of days finalized is returned.
func (e *Engine) Tick(now time.Time) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickLocked(now, 0)
}

// TickLimited finalizes at most maxDays days, letting an operator amortize a
// large backlog across multiple calls. It fails with ErrNoDaysToTick when no
// day could be processed; maxDays must be positive.
func (e *Engine) TickLimited(now time.Time, maxDays uint64) (uint64, error) {
	if maxDays == 0 {
		return 0, ErrNoDaysToTick
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	processed, err := e.tickLocked(now, maxDays)
	if err != nil {
		return 0, err
	}
	if processed == 0 {
		return 0, ErrNoDaysToTick
	}
	return processed, nil
}

// tickLocked advances the finalization pointer one day at a time. maxDays of
// zero means unbounded. Callers must hold e.mu.
func (e *Engine) tickLocked(now time.Time, maxDays uint64) (uint64, error) {
	sched, err := e.state.ScheduleState()
	if err != nil {
		return 0, err
	}
	if !sched.Initialized {
		return 0, ErrScheduleNotInitialized
	}
	nowTs := unixTimestamp(now)
	if sched.NextTickTime+e.params.DayLength > nowTs {
		return 0, nil
	}
	epochs, err := e.state.Epochs()
	if err != nil {
		return 0, err
	}

	var processed uint64
	for sched.NextTickTime+e.params.DayLength <= nowTs {
		if maxDays > 0 && processed >= maxDays {
			break
		}
		day := (sched.NextTickTime - sched.StartTime) / e.params.DayLength
		record, finalized, err := e.finalizeDay(epochs, day)
		if err != nil {
			return processed, err
		}
		sched.NextTickTime += e.params.DayLength
		sched.LastFinalizedDay = day + 1
		// Persisting the pointer per day keeps the record write and the
		// frontier advance in step: a failure here resumes on the next
		// tick by adopting the already-written record.
		if err := e.state.SetScheduleState(sched); err != nil {
			return processed, err
		}
		processed++
		if finalized {
			e.emit(events.DayFinalized{
				Day:            day,
				RatePrimary:    copyBigInt(record.RatePrimary),
				RateReferral:   copyBigInt(record.RateReferral),
				DenomPrimary:   denomForDay(record, StreamPrimary),
				DenomReferral:  denomForDay(record, StreamReferral),
				PoolPrimary:    dailyPoolForDay(epochs, day, StreamPrimary),
				PoolReferral:   dailyPoolForDay(epochs, day, StreamReferral),
				CumRatePrimary: copyBigInt(record.CumRatePrimary),
			})
			e.telemetry.ObserveDayFinalized()
		}
	}
	e.telemetry.SetLastFinalizedDay(sched.LastFinalizedDay)
	return processed, nil
}

// finalizeDay computes and persists the write-once accrual record for one day.
// A record already present at the frontier is adopted as-is so a crash between
// the record write and the schedule-pointer write is recoverable; the second
// return reports whether this call wrote the record.
func (e *Engine) finalizeDay(epochs []Epoch, day uint64) (*DailyAccrual, bool, error) {
	if existing, exists, err := e.state.DailyAccrual(day); err != nil {
		return nil, false, err
	} else if exists {
		return existing, false, nil
	}

	var prev *DailyAccrual
	if day > 0 {
		record, exists, err := e.state.DailyAccrual(day - 1)
		if err != nil {
			return nil, false, err
		}
		if exists {
			prev = record
		}
	}

	record := &DailyAccrual{Day: day}
	for _, stream := range []Stream{StreamPrimary, StreamReferral} {
		denom := prev.cumUnits(stream)
		pool := dailyPoolForDay(epochs, day, stream)
		rate := big.NewInt(0)
		if denom.Sign() > 0 && pool.Sign() > 0 {
			// Truncating division: a day nobody held units simply
			// forfeits that day's pool.
			rate = new(big.Int).Quo(pool, denom)
		}
		added, err := e.state.PendingUnits(stream, day)
		if err != nil {
			return nil, false, err
		}
		cumUnits := new(big.Int).Add(denom, added)
		cumRate := new(big.Int).Add(prev.cumRate(stream), rate)
		switch stream {
		case StreamPrimary:
			record.UnitsAddedPrimary = added
			record.CumUnitsPrimary = cumUnits
			record.RatePrimary = rate
			record.CumRatePrimary = cumRate
		case StreamReferral:
			record.UnitsAddedReferral = added
			record.CumUnitsReferral = cumUnits
			record.RateReferral = rate
			record.CumRateReferral = cumRate
		}
	}
	if err := e.state.PutDailyAccrual(record); err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// denomForDay reconstructs the denominator used when day d was finalized: the
// cumulative units as of the previous day.
func denomForDay(record *DailyAccrual, stream Stream) *big.Int {
	if record == nil {
		return big.NewInt(0)
	}
	cum := record.cumUnits(stream)
	var added *big.Int
	if stream == StreamReferral {
		added = copyBigInt(record.UnitsAddedReferral)
	} else {
		added = copyBigInt(record.UnitsAddedPrimary)
	}
	return cum.Sub(cum, added)
}
