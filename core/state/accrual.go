package state

import (
	"fmt"
	"math/big"

	"vestchain/native/accrual"
)

// maxClaimReceipts bounds the per-participant claim history kept in state.
const maxClaimReceipts = 64

// The Manager implements accrual.Ledger so the engine can run directly over
// the key-value state.

func (m *Manager) ScheduleState() (*accrual.ScheduleState, error) {
	sched := new(accrual.ScheduleState)
	ok, err := m.KVGet(accrualScheduleKey, sched)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &accrual.ScheduleState{}, nil
	}
	return sched, nil
}

func (m *Manager) SetScheduleState(sched *accrual.ScheduleState) error {
	if sched == nil {
		return fmt.Errorf("state: nil schedule state")
	}
	return m.KVPut(accrualScheduleKey, sched)
}

func (m *Manager) Epochs() ([]accrual.Epoch, error) {
	var epochs []accrual.Epoch
	ok, err := m.KVGet(accrualEpochsKey, &epochs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []accrual.Epoch{}, nil
	}
	return epochs, nil
}

func (m *Manager) SetEpochs(epochs []accrual.Epoch) error {
	return m.KVPut(accrualEpochsKey, epochs)
}

func dayKey(day uint64) []byte {
	return []byte(fmt.Sprintf(accrualDayKeyFormat, day))
}

func (m *Manager) DailyAccrual(day uint64) (*accrual.DailyAccrual, bool, error) {
	record := new(accrual.DailyAccrual)
	ok, err := m.KVGet(dayKey(day), record)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return record, true, nil
}

func (m *Manager) PutDailyAccrual(record *accrual.DailyAccrual) error {
	if record == nil {
		return fmt.Errorf("state: nil daily accrual")
	}
	return m.KVPut(dayKey(record.Day), record)
}

func pendingKey(stream accrual.Stream, day uint64) []byte {
	return []byte(fmt.Sprintf(accrualPendingKeyFormat, stream.String(), day))
}

func (m *Manager) PendingUnits(stream accrual.Stream, day uint64) (*big.Int, error) {
	units := new(big.Int)
	ok, err := m.KVGet(pendingKey(stream, day), units)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return units, nil
}

func (m *Manager) AddPendingUnits(stream accrual.Stream, day uint64, delta *big.Int) error {
	if delta == nil {
		return fmt.Errorf("state: nil pending delta")
	}
	units, err := m.PendingUnits(stream, day)
	if err != nil {
		return err
	}
	units.Add(units, delta)
	if units.Sign() < 0 {
		return fmt.Errorf("state: pending units for day %d would go negative", day)
	}
	return m.KVPut(pendingKey(stream, day), units)
}

func checkpointKey(stream accrual.Stream, addr [20]byte) []byte {
	return []byte(fmt.Sprintf(accrualCheckpointKeyFormat, stream.String(), addr))
}

func (m *Manager) Checkpoints(stream accrual.Stream, addr [20]byte) ([]accrual.Checkpoint, error) {
	var list []accrual.Checkpoint
	ok, err := m.KVGet(checkpointKey(stream, addr), &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []accrual.Checkpoint{}, nil
	}
	return list, nil
}

func (m *Manager) SetCheckpoints(stream accrual.Stream, addr [20]byte, list []accrual.Checkpoint) error {
	return m.KVPut(checkpointKey(stream, addr), list)
}

func claimKey(stream accrual.Stream, addr [20]byte) []byte {
	return []byte(fmt.Sprintf(accrualClaimKeyFormat, stream.String(), addr))
}

func (m *Manager) ClaimState(stream accrual.Stream, addr [20]byte) (*accrual.ClaimState, error) {
	cs := new(accrual.ClaimState)
	ok, err := m.KVGet(claimKey(stream, addr), cs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &accrual.ClaimState{}, nil
	}
	return cs, nil
}

func (m *Manager) SetClaimState(stream accrual.Stream, addr [20]byte, cs *accrual.ClaimState) error {
	if cs == nil {
		return fmt.Errorf("state: nil claim state")
	}
	return m.KVPut(claimKey(stream, addr), cs)
}

func receiptsKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf(accrualReceiptsKeyFormat, addr))
}

func (m *Manager) AppendClaimReceipt(addr [20]byte, receipt accrual.ClaimReceipt) error {
	receipts, err := m.ClaimReceipts(addr)
	if err != nil {
		return err
	}
	receipts = append(receipts, receipt)
	if len(receipts) > maxClaimReceipts {
		receipts = receipts[len(receipts)-maxClaimReceipts:]
	}
	return m.KVPut(receiptsKey(addr), receipts)
}

// ClaimReceipts returns the participant's retained settlement history, oldest
// first.
func (m *Manager) ClaimReceipts(addr [20]byte) ([]accrual.ClaimReceipt, error) {
	var receipts []accrual.ClaimReceipt
	ok, err := m.KVGet(receiptsKey(addr), &receipts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []accrual.ClaimReceipt{}, nil
	}
	return receipts, nil
}

func codeByAddrKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf(accrualCodeByAddrFormat, addr))
}

func codeByValueKey(code string) []byte {
	return []byte(fmt.Sprintf(accrualCodeByValueFormat, code))
}

func (m *Manager) ReferralCodeOf(addr [20]byte) (string, bool, error) {
	var code string
	ok, err := m.KVGet(codeByAddrKey(addr), &code)
	if err != nil {
		return "", false, err
	}
	return code, ok, nil
}

func (m *Manager) ReferralOwner(code string) ([20]byte, bool, error) {
	var raw []byte
	ok, err := m.KVGet(codeByValueKey(code), &raw)
	if err != nil {
		return [20]byte{}, false, err
	}
	if !ok || len(raw) != 20 {
		return [20]byte{}, false, nil
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, true, nil
}

// SetReferralCode stores the bidirectional participant/code mapping.
func (m *Manager) SetReferralCode(addr [20]byte, code string) error {
	if len(code) == 0 {
		return fmt.Errorf("state: referral code required")
	}
	if err := m.KVPut(codeByAddrKey(addr), code); err != nil {
		return err
	}
	return m.KVPut(codeByValueKey(code), addr[:])
}

func buybackKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf(accrualBuybackKeyFormat, addr))
}

func (m *Manager) BuybackBalance(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(buybackKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (m *Manager) SetBuybackBalance(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: buyback balance must be non-negative")
	}
	return m.KVPut(buybackKey(addr), amount)
}

func (m *Manager) TotalUnits() (*big.Int, error) {
	total := new(big.Int)
	ok, err := m.KVGet(accrualTotalUnitsKey, total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

func (m *Manager) SetTotalUnits(total *big.Int) error {
	if total == nil || total.Sign() < 0 {
		return fmt.Errorf("state: total units must be non-negative")
	}
	return m.KVPut(accrualTotalUnitsKey, total)
}
