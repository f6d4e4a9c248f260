package accrual

import (
	"errors"
	"math/big"
	"testing"
)

func backfillTs(day uint64) uint64 {
	return testStart + day*DefaultDayLength + 100
}

func TestBackfillContributionRequiresSchedule(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	err := engine.BackfillContribution(testAddr(1), [20]byte{}, big.NewInt(10), backfillTs(0), nil, false)
	if !errors.Is(err, ErrScheduleNotInitialized) {
		t.Fatalf("err = %v, want ErrScheduleNotInitialized", err)
	}
}

func TestBackfillContributionIntoOpenDay(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(9, 1000, 0))

	a := testAddr(1)
	if err := engine.BackfillContribution(a, [20]byte{}, big.NewInt(60), backfillTs(2), nil, false); err != nil {
		t.Fatalf("BackfillContribution: %v", err)
	}
	pending, err := ledger.PendingUnits(StreamPrimary, 2)
	if err != nil {
		t.Fatalf("PendingUnits: %v", err)
	}
	if pending.Int64() != 60 {
		t.Fatalf("pending day 2 = %s, want 60", pending)
	}
	list, err := ledger.Checkpoints(StreamPrimary, a)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(list) != 1 || list[0].Day != 3 || list[0].Units.Int64() != 60 {
		t.Fatalf("unexpected checkpoints: %+v", list)
	}
	total, err := ledger.TotalUnits()
	if err != nil {
		t.Fatalf("TotalUnits: %v", err)
	}
	if total.Int64() != 60 {
		t.Fatalf("total units = %s, want 60", total)
	}
}

func TestBackfillContributionRejectsFinalizedDay(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(9, 1000, 0))
	if _, err := engine.Tick(testTime(3, 0)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	err := engine.BackfillContribution(testAddr(1), [20]byte{}, big.NewInt(10), backfillTs(1), nil, false)
	if !errors.Is(err, ErrDayAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrDayAlreadyFinalized", err)
	}
	// The frontier day itself is still open.
	if err := engine.BackfillContribution(testAddr(1), [20]byte{}, big.NewInt(10), backfillTs(3), nil, false); err != nil {
		t.Fatalf("frontier-day backfill: %v", err)
	}
}

func TestBackfillContributionSelfReferral(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(9, 1000, 0))
	a := testAddr(1)
	err := engine.BackfillContribution(a, a, big.NewInt(10), backfillTs(0), nil, false)
	if !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("err = %v, want ErrSelfReferral", err)
	}
}

func TestBackfillContributionWithReferrerAndBuyback(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(9, 1000, 100))

	a := testAddr(1)
	ref := testAddr(2)
	if err := engine.BackfillContribution(a, ref, big.NewInt(40), backfillTs(1), big.NewInt(2000), true); err != nil {
		t.Fatalf("BackfillContribution: %v", err)
	}
	mirror, err := ledger.Checkpoints(StreamReferral, ref)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(mirror) != 1 || mirror[0].Day != 2 || mirror[0].Units.Int64() != 40 {
		t.Fatalf("mirrored checkpoints unexpected: %+v", mirror)
	}
	balance, err := ledger.BuybackBalance(ref)
	if err != nil {
		t.Fatalf("BuybackBalance: %v", err)
	}
	if balance.Int64() != 100 {
		t.Fatalf("buyback = %s, want 100 (500 bps of 2000)", balance)
	}
}

func TestBackfillContributionSkipsBuybackWhenDisabled(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(9, 1000, 100))

	if err := engine.BackfillContribution(testAddr(1), testAddr(2), big.NewInt(40), backfillTs(1), big.NewInt(2000), false); err != nil {
		t.Fatalf("BackfillContribution: %v", err)
	}
	balance, err := ledger.BuybackBalance(testAddr(2))
	if err != nil {
		t.Fatalf("BuybackBalance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("buyback = %s, want 0", balance)
	}
}

func TestBackfillRebasesLaterCheckpoints(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(19, 1000, 0))

	a := testAddr(1)
	// Day 5 lands first; the second backfilled event predates it.
	if err := engine.BackfillContribution(a, [20]byte{}, big.NewInt(100), backfillTs(5), nil, false); err != nil {
		t.Fatalf("BackfillContribution: %v", err)
	}
	if err := engine.BackfillContribution(a, [20]byte{}, big.NewInt(50), backfillTs(2), nil, false); err != nil {
		t.Fatalf("BackfillContribution: %v", err)
	}

	list, err := ledger.Checkpoints(StreamPrimary, a)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("checkpoints = %d, want 2", len(list))
	}
	if list[0].Day != 3 || list[0].Units.Int64() != 50 {
		t.Fatalf("inserted checkpoint unexpected: %+v", list[0])
	}
	if list[1].Day != 6 || list[1].Units.Int64() != 150 {
		t.Fatalf("later checkpoint not re-based: %+v", list[1])
	}
}

func TestBackfillTransfer(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(19, 1000, 0))

	a := testAddr(1)
	b := testAddr(2)
	if _, err := engine.Contribute(testTime(0, 10), a, big.NewInt(100), "", nil); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if err := engine.BackfillTransfer(a, b, big.NewInt(30), backfillTs(4)); err != nil {
		t.Fatalf("BackfillTransfer: %v", err)
	}

	fromList, err := ledger.Checkpoints(StreamPrimary, a)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(fromList) != 2 || fromList[1].Day != 5 || fromList[1].Units.Int64() != 70 {
		t.Fatalf("sender checkpoints unexpected: %+v", fromList)
	}
	toList, err := ledger.Checkpoints(StreamPrimary, b)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(toList) != 1 || toList[0].Day != 5 || toList[0].Units.Int64() != 30 {
		t.Fatalf("receiver checkpoints unexpected: %+v", toList)
	}
	// Global totals are untouched by a transfer.
	total, err := ledger.TotalUnits()
	if err != nil {
		t.Fatalf("TotalUnits: %v", err)
	}
	if total.Int64() != 100 {
		t.Fatalf("total units = %s, want 100", total)
	}
}

func TestBackfillTransferInsufficientUnits(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(19, 1000, 0))

	a := testAddr(1)
	b := testAddr(2)
	if _, err := engine.Contribute(testTime(0, 10), a, big.NewInt(20), "", nil); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	err := engine.BackfillTransfer(a, b, big.NewInt(30), backfillTs(4))
	if !errors.Is(err, ErrInsufficientUnits) {
		t.Fatalf("err = %v, want ErrInsufficientUnits", err)
	}
}

func TestBackfillTransferGuards(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	initSchedule(t, engine, singleEpoch(19, 1000, 0))

	a := testAddr(1)
	if err := engine.BackfillTransfer(a, a, big.NewInt(10), backfillTs(0)); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("self transfer err = %v, want ErrSelfTransfer", err)
	}
	if err := engine.BackfillTransfer(a, testAddr(2), big.NewInt(0), backfillTs(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero units err = %v, want ErrZeroAmount", err)
	}
	if _, err := engine.Tick(testTime(3, 0)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := engine.BackfillTransfer(a, testAddr(2), big.NewInt(10), backfillTs(1)); !errors.Is(err, ErrDayAlreadyFinalized) {
		t.Fatalf("finalized day err = %v, want ErrDayAlreadyFinalized", err)
	}
}
