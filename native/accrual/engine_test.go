package accrual

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"vestchain/core/events"
)

// testStart is a fixed day-aligned schedule origin used across the package
// tests.
const testStart = uint64(1_700_000_000)

func testAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func testTime(daysAfterStart uint64, extraSeconds int64) time.Time {
	return time.Unix(int64(testStart+daysAfterStart*DefaultDayLength)+extraSeconds, 0)
}

type memLedger struct {
	sched       ScheduleState
	epochs      []Epoch
	days        map[uint64]*DailyAccrual
	pending     map[Stream]map[uint64]*big.Int
	checkpoints map[Stream]map[[20]byte][]Checkpoint
	claims      map[Stream]map[[20]byte]ClaimState
	receipts    map[[20]byte][]ClaimReceipt
	codeByAddr  map[[20]byte]string
	addrByCode  map[string][20]byte
	buyback     map[[20]byte]*big.Int
	totalUnits  *big.Int
}

func newMemLedger() *memLedger {
	return &memLedger{
		days: make(map[uint64]*DailyAccrual),
		pending: map[Stream]map[uint64]*big.Int{
			StreamPrimary:  {},
			StreamReferral: {},
		},
		checkpoints: map[Stream]map[[20]byte][]Checkpoint{
			StreamPrimary:  {},
			StreamReferral: {},
		},
		claims: map[Stream]map[[20]byte]ClaimState{
			StreamPrimary:  {},
			StreamReferral: {},
		},
		receipts:   make(map[[20]byte][]ClaimReceipt),
		codeByAddr: make(map[[20]byte]string),
		addrByCode: make(map[string][20]byte),
		buyback:    make(map[[20]byte]*big.Int),
		totalUnits: big.NewInt(0),
	}
}

func (l *memLedger) ScheduleState() (*ScheduleState, error) {
	clone := l.sched
	return &clone, nil
}

func (l *memLedger) SetScheduleState(s *ScheduleState) error {
	l.sched = *s
	return nil
}

func (l *memLedger) Epochs() ([]Epoch, error) {
	out := make([]Epoch, len(l.epochs))
	for i := range l.epochs {
		out[i] = l.epochs[i].Clone()
	}
	return out, nil
}

func (l *memLedger) SetEpochs(epochs []Epoch) error {
	out := make([]Epoch, len(epochs))
	for i := range epochs {
		out[i] = epochs[i].Clone()
	}
	l.epochs = out
	return nil
}

func (l *memLedger) DailyAccrual(day uint64) (*DailyAccrual, bool, error) {
	record, ok := l.days[day]
	if !ok {
		return nil, false, nil
	}
	clone := *record
	return &clone, true, nil
}

func (l *memLedger) PutDailyAccrual(record *DailyAccrual) error {
	clone := *record
	l.days[record.Day] = &clone
	return nil
}

func (l *memLedger) PendingUnits(stream Stream, day uint64) (*big.Int, error) {
	if v, ok := l.pending[stream][day]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (l *memLedger) AddPendingUnits(stream Stream, day uint64, delta *big.Int) error {
	current, _ := l.PendingUnits(stream, day)
	l.pending[stream][day] = current.Add(current, delta)
	return nil
}

func (l *memLedger) Checkpoints(stream Stream, addr [20]byte) ([]Checkpoint, error) {
	list := l.checkpoints[stream][addr]
	out := make([]Checkpoint, len(list))
	for i := range list {
		out[i] = Checkpoint{Day: list[i].Day, Units: new(big.Int).Set(list[i].Units)}
	}
	return out, nil
}

func (l *memLedger) SetCheckpoints(stream Stream, addr [20]byte, list []Checkpoint) error {
	out := make([]Checkpoint, len(list))
	for i := range list {
		out[i] = Checkpoint{Day: list[i].Day, Units: new(big.Int).Set(list[i].Units)}
	}
	l.checkpoints[stream][addr] = out
	return nil
}

func (l *memLedger) ClaimState(stream Stream, addr [20]byte) (*ClaimState, error) {
	cs := l.claims[stream][addr]
	return &cs, nil
}

func (l *memLedger) SetClaimState(stream Stream, addr [20]byte, cs *ClaimState) error {
	l.claims[stream][addr] = *cs
	return nil
}

func (l *memLedger) AppendClaimReceipt(addr [20]byte, receipt ClaimReceipt) error {
	l.receipts[addr] = append(l.receipts[addr], receipt)
	return nil
}

func (l *memLedger) ReferralCodeOf(addr [20]byte) (string, bool, error) {
	code, ok := l.codeByAddr[addr]
	return code, ok, nil
}

func (l *memLedger) ReferralOwner(code string) ([20]byte, bool, error) {
	owner, ok := l.addrByCode[code]
	return owner, ok, nil
}

func (l *memLedger) SetReferralCode(addr [20]byte, code string) error {
	l.codeByAddr[addr] = code
	l.addrByCode[code] = addr
	return nil
}

func (l *memLedger) BuybackBalance(addr [20]byte) (*big.Int, error) {
	if v, ok := l.buyback[addr]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (l *memLedger) SetBuybackBalance(addr [20]byte, amount *big.Int) error {
	l.buyback[addr] = new(big.Int).Set(amount)
	return nil
}

func (l *memLedger) TotalUnits() (*big.Int, error) {
	return new(big.Int).Set(l.totalUnits), nil
}

func (l *memLedger) SetTotalUnits(total *big.Int) error {
	l.totalUnits = new(big.Int).Set(total)
	return nil
}

type transferCall struct {
	Token  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

type memPayments struct {
	transfers []transferCall
	fail      error
}

func (p *memPayments) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	if p.fail != nil {
		return p.fail
	}
	p.transfers = append(p.transfers, transferCall{
		Token:  token,
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) countType(eventType string) int {
	n := 0
	for _, evt := range r.events {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}

func testParams() Params {
	return Params{
		DayLength:      DefaultDayLength,
		BuybackRateBps: 500,
		PayoutQuantum:  big.NewInt(1),
		RewardToken:    "VST",
		PaymentToken:   "USDV",
		Treasury:       testAddr(0xff),
	}
}

func newTestEngine(t *testing.T) (*Engine, *memLedger, *memPayments, *recordingEmitter) {
	t.Helper()
	ledger := newMemLedger()
	payments := &memPayments{}
	emitter := &recordingEmitter{}
	engine, err := NewEngine(ledger, payments, emitter, testParams())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, ledger, payments, emitter
}

func singleEpoch(endDay uint64, primary, referral int64) []Epoch {
	return []Epoch{{
		EndDay:        endDay,
		PrimaryTotal:  big.NewInt(primary),
		ReferralTotal: big.NewInt(referral),
	}}
}

func initSchedule(t *testing.T, engine *Engine, epochs []Epoch) {
	t.Helper()
	if err := engine.InitializeSchedule(time.Unix(int64(testStart), 0), epochs); err != nil {
		t.Fatalf("InitializeSchedule: %v", err)
	}
}

func TestUnitsAtDayWalksCheckpoints(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(t)
	addr := testAddr(1)
	list := []Checkpoint{
		{Day: 1, Units: big.NewInt(10)},
		{Day: 4, Units: big.NewInt(25)},
		{Day: 9, Units: big.NewInt(5)},
	}
	if err := ledger.SetCheckpoints(StreamPrimary, addr, list); err != nil {
		t.Fatalf("SetCheckpoints: %v", err)
	}

	cases := []struct {
		day  uint64
		want int64
	}{
		{0, 0}, {1, 10}, {3, 10}, {4, 25}, {8, 25}, {9, 5}, {100, 5},
	}
	for _, tc := range cases {
		got, err := engine.UnitsAtDay(addr, StreamPrimary, tc.day)
		if err != nil {
			t.Fatalf("UnitsAtDay(%d): %v", tc.day, err)
		}
		if got.Int64() != tc.want {
			t.Fatalf("UnitsAtDay(%d) = %s, want %d", tc.day, got, tc.want)
		}
	}
}

func TestTotalUnitsAccumulates(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(9, 1000, 0))

	if _, err := engine.Contribute(testTime(0, 10), testAddr(1), big.NewInt(40), "", nil); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if _, err := engine.Contribute(testTime(0, 20), testAddr(2), big.NewInt(60), "", nil); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	total, err := engine.TotalUnits()
	if err != nil {
		t.Fatalf("TotalUnits: %v", err)
	}
	if total.Int64() != 100 {
		t.Fatalf("TotalUnits = %s, want 100", total)
	}
}

func TestParamsReturnsCopy(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	params := engine.Params()
	params.PayoutQuantum.SetInt64(999)
	if engine.Params().PayoutQuantum.Int64() == 999 {
		t.Fatal("mutating returned params leaked into the engine")
	}
}

func TestNewEngineRejectsBadParams(t *testing.T) {
	params := testParams()
	params.BuybackRateBps = BuybackBpsDenominator + 1
	if _, err := NewEngine(newMemLedger(), &memPayments{}, nil, params); err == nil {
		t.Fatal("expected error for out-of-range buyback rate")
	}
}

func ExampleStream_String() {
	fmt.Println(StreamPrimary, StreamReferral)
	// Output: primary referral
}
