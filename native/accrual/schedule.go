package accrual

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vestchain/core/events"
)

// ValidateEpochs checks the ordered epoch table: non-empty, strictly
// increasing inclusive end days, non-negative totals.
func ValidateEpochs(epochs []Epoch) error {
	if len(epochs) == 0 {
		return errors.New("accrual: schedule requires at least one epoch")
	}
	for i := range epochs {
		if epochs[i].PrimaryTotal == nil || epochs[i].PrimaryTotal.Sign() < 0 {
			return fmt.Errorf("accrual: epoch %d primary total invalid", i)
		}
		if epochs[i].ReferralTotal == nil || epochs[i].ReferralTotal.Sign() < 0 {
			return fmt.Errorf("accrual: epoch %d referral total invalid", i)
		}
		if i > 0 && epochs[i].EndDay <= epochs[i-1].EndDay {
			return ErrInvalidEpochOrdering
		}
	}
	return nil
}

// InitializeSchedule installs the epoch table and arms the tick pointer at the
// supplied start time. It may only succeed once per ledger instance.
func (e *Engine) InitializeSchedule(startTime time.Time, epochs []Epoch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sched, err := e.state.ScheduleState()
	if err != nil {
		return err
	}
	if sched.Initialized {
		return ErrScheduleAlreadyInitialized
	}
	if err := ValidateEpochs(epochs); err != nil {
		return err
	}
	cloned := make([]Epoch, len(epochs))
	for i := range epochs {
		cloned[i] = epochs[i].Clone()
	}
	if err := e.state.SetEpochs(cloned); err != nil {
		return err
	}
	startTs := unixTimestamp(startTime)
	next := &ScheduleState{
		Initialized:      true,
		StartTime:        startTs,
		NextTickTime:     startTs,
		LastFinalizedDay: 0,
	}
	if err := e.state.SetScheduleState(next); err != nil {
		return err
	}
	e.emit(events.ScheduleInitialized{
		StartTime: startTs,
		Epochs:    uint64(len(cloned)),
		LastDay:   cloned[len(cloned)-1].EndDay,
	})
	return nil
}

// EpochCount returns the number of configured epochs.
func (e *Engine) EpochCount() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	epochs, err := e.state.Epochs()
	if err != nil {
		return 0, err
	}
	return uint64(len(epochs)), nil
}

// EpochTotals returns the budget totals of epoch i.
func (e *Engine) EpochTotals(i uint64) (Epoch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	epochs, err := e.state.Epochs()
	if err != nil {
		return Epoch{}, err
	}
	if i >= uint64(len(epochs)) {
		return Epoch{}, ErrEpochNotFound
	}
	return epochs[i].Clone(), nil
}

// UpdateEpochTotals adjusts the budgets of an epoch that has not yet begun.
func (e *Engine) UpdateEpochTotals(i uint64, primaryTotal, referralTotal *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sched, err := e.state.ScheduleState()
	if err != nil {
		return err
	}
	if !sched.Initialized {
		return ErrScheduleNotInitialized
	}
	epochs, err := e.state.Epochs()
	if err != nil {
		return err
	}
	if i >= uint64(len(epochs)) {
		return ErrEpochNotFound
	}
	if primaryTotal == nil || primaryTotal.Sign() < 0 || referralTotal == nil || referralTotal.Sign() < 0 {
		return ErrZeroAmount
	}
	epochStartTs := sched.StartTime + epochStartDay(epochs, int(i))*e.params.DayLength
	if sched.NextTickTime > epochStartTs {
		return ErrEpochStarted
	}
	epochs[i].PrimaryTotal = copyBigInt(primaryTotal)
	epochs[i].ReferralTotal = copyBigInt(referralTotal)
	if err := e.state.SetEpochs(epochs); err != nil {
		return err
	}
	e.emit(events.EpochTotalsUpdated{
		Epoch:         i,
		PrimaryTotal:  copyBigInt(primaryTotal),
		ReferralTotal: copyBigInt(referralTotal),
	})
	return nil
}

// epochStartDay is the first day covered by epoch i.
func epochStartDay(epochs []Epoch, i int) uint64 {
	if i <= 0 {
		return 0
	}
	return epochs[i-1].EndDay + 1
}

// epochForDay locates the epoch covering day d. The boolean reports whether
// the day falls inside the schedule at all.
func epochForDay(epochs []Epoch, d uint64) (Epoch, uint64, bool) {
	for i := range epochs {
		if d <= epochs[i].EndDay {
			return epochs[i], epochStartDay(epochs, i), true
		}
	}
	return Epoch{}, 0, false
}

// dailyPoolForDay derives the reward budget attributable to day d on the given
// stream. The final day of an epoch absorbs the integer-division remainder so
// the per-day pools sum exactly to the epoch total.
func dailyPoolForDay(epochs []Epoch, d uint64, stream Stream) *big.Int {
	ep, startDay, ok := epochForDay(epochs, d)
	if !ok {
		return big.NewInt(0)
	}
	total := ep.Total(stream)
	if total.Sign() == 0 {
		return total
	}
	length := ep.EndDay - startDay + 1
	lengthBig := new(big.Int).SetUint64(length)
	base := new(big.Int).Quo(total, lengthBig)
	if d == ep.EndDay {
		consumed := new(big.Int).Mul(base, new(big.Int).SetUint64(length-1))
		return new(big.Int).Sub(total, consumed)
	}
	return base
}

// --- schedule file loading ---

type fileSchedule struct {
	Epochs []fileEpoch `json:"epochs" toml:"epochs"`
}

type fileEpoch struct {
	EndDay        uint64 `json:"endDay" toml:"endDay"`
	PrimaryTotal  string `json:"primaryTotal" toml:"primaryTotal"`
	ReferralTotal string `json:"referralTotal" toml:"referralTotal"`
}

// LoadScheduleFile parses an epoch table from a TOML or JSON file. Totals are
// decimal strings in the 18-decimal accrual unit.
func LoadScheduleFile(path string) ([]Epoch, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("accrual: schedule path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("accrual: read schedule: %w", err)
	}
	var parsed fileSchedule
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&parsed); err != nil {
			return nil, fmt.Errorf("accrual: decode schedule json: %w", err)
		}
	case ".toml", ".tml":
		meta, err := toml.DecodeReader(bytes.NewReader(data), &parsed)
		if err != nil {
			return nil, fmt.Errorf("accrual: decode schedule toml: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("accrual: unknown schedule fields %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("accrual: unsupported schedule format %q", ext)
	}
	epochs := make([]Epoch, len(parsed.Epochs))
	for i := range parsed.Epochs {
		entry := parsed.Epochs[i]
		primary, ok := new(big.Int).SetString(strings.TrimSpace(entry.PrimaryTotal), 10)
		if !ok {
			return nil, fmt.Errorf("accrual: epoch %d primary total invalid", i)
		}
		referral := big.NewInt(0)
		if strings.TrimSpace(entry.ReferralTotal) != "" {
			referral, ok = new(big.Int).SetString(strings.TrimSpace(entry.ReferralTotal), 10)
			if !ok {
				return nil, fmt.Errorf("accrual: epoch %d referral total invalid", i)
			}
		}
		epochs[i] = Epoch{EndDay: entry.EndDay, PrimaryTotal: primary, ReferralTotal: referral}
	}
	if err := ValidateEpochs(epochs); err != nil {
		return nil, err
	}
	return epochs, nil
}
