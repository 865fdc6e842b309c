package matoken

import (
	"errors"
	"testing"

	"redbank/core/types"
	"redbank/native/decimal"
)

type mockLedgerState struct {
	balances map[string]decimal.Dec
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{balances: make(map[string]decimal.Dec)}
}

func (m *mockLedgerState) key(asset string, holder types.Address) string {
	return asset + "/" + holder.Hex()
}

func (m *mockLedgerState) GetBalance(asset string, holder types.Address) (decimal.Dec, error) {
	return m.balances[m.key(asset, holder)], nil
}

func (m *mockLedgerState) PutBalance(asset string, holder types.Address, balance decimal.Dec) error {
	m.balances[m.key(asset, holder)] = balance
	return nil
}

type observerCall struct {
	stage         string
	asset         string
	from, to      types.Address
	amount        decimal.Dec
	fromRemaining decimal.Dec
	toBalance     decimal.Dec
}

type mockObserver struct {
	calls     []observerCall
	rejectErr error
}

func (o *mockObserver) BeforeCollateralTransfer(asset string, from, to types.Address, scaled decimal.Dec) error {
	o.calls = append(o.calls, observerCall{stage: "before", asset: asset, from: from, to: to, amount: scaled})
	return o.rejectErr
}

func (o *mockObserver) AfterCollateralTransfer(asset string, from, to types.Address, fromRemaining, toBalance decimal.Dec) error {
	o.calls = append(o.calls, observerCall{
		stage: "after", asset: asset, from: from, to: to,
		fromRemaining: fromRemaining, toBalance: toBalance,
	})
	return nil
}

func testAddr(suffix byte) types.Address {
	var addr types.Address
	addr[len(addr)-1] = suffix
	return addr
}

func dec(t *testing.T, value string) decimal.Dec {
	t.Helper()
	parsed, err := decimal.FromString(value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func newTestLedger() (*Ledger, *mockLedgerState, *mockObserver) {
	state := newMockLedgerState()
	observer := &mockObserver{}
	ledger := NewLedger()
	ledger.SetState(state)
	ledger.SetObserver(observer)
	return ledger, state, observer
}

func TestMintBurnLifecycle(t *testing.T) {
	ledger, _, _ := newTestLedger()
	holder := testAddr(0x01)

	if err := ledger.Mint("uusd", holder, dec(t, "100")); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := ledger.Balance("uusd", holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(dec(t, "100")) {
		t.Fatalf("balance after mint: got %s want 100", balance)
	}

	if err := ledger.Burn("uusd", holder, dec(t, "101")); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Burn("uusd", holder, dec(t, "100")); err != nil {
		t.Fatalf("burn: %v", err)
	}
	balance, err = ledger.Balance("uusd", holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("balance after burn: got %s want 0", balance)
	}
}

func TestTransferNotifiesObserverInOrder(t *testing.T) {
	ledger, state, observer := newTestLedger()
	from := testAddr(0x01)
	to := testAddr(0x02)
	if err := ledger.Mint("uusd", from, dec(t, "100")); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.Transfer("uusd", from, to, dec(t, "40")); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if len(observer.calls) != 2 {
		t.Fatalf("expected before and after calls, got %d", len(observer.calls))
	}
	before, after := observer.calls[0], observer.calls[1]
	if before.stage != "before" || !before.amount.Equal(dec(t, "40")) {
		t.Fatalf("unexpected before call: %+v", before)
	}
	if after.stage != "after" {
		t.Fatalf("unexpected after call: %+v", after)
	}
	if !after.fromRemaining.Equal(dec(t, "60")) || !after.toBalance.Equal(dec(t, "40")) {
		t.Fatalf("after call balances: %+v", after)
	}

	fromBalance, _ := state.GetBalance("uusd", from)
	toBalance, _ := state.GetBalance("uusd", to)
	if !fromBalance.Equal(dec(t, "60")) || !toBalance.Equal(dec(t, "40")) {
		t.Fatalf("stored balances: from %s to %s", fromBalance, toBalance)
	}
}

func TestTransferRejectedByObserverLeavesBalances(t *testing.T) {
	ledger, state, observer := newTestLedger()
	from := testAddr(0x01)
	to := testAddr(0x02)
	if err := ledger.Mint("uusd", from, dec(t, "100")); err != nil {
		t.Fatalf("mint: %v", err)
	}

	rejection := errors.New("unhealthy")
	observer.rejectErr = rejection
	if err := ledger.Transfer("uusd", from, to, dec(t, "40")); !errors.Is(err, rejection) {
		t.Fatalf("expected observer rejection, got %v", err)
	}

	fromBalance, _ := state.GetBalance("uusd", from)
	toBalance, _ := state.GetBalance("uusd", to)
	if !fromBalance.Equal(dec(t, "100")) || !toBalance.IsZero() {
		t.Fatalf("rejected transfer must not move funds: from %s to %s", fromBalance, toBalance)
	}
}

func TestTransferValidation(t *testing.T) {
	ledger, _, _ := newTestLedger()
	from := testAddr(0x01)
	to := testAddr(0x02)
	if err := ledger.Mint("uusd", from, dec(t, "10")); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.Transfer("uusd", from, to, decimal.Zero()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Transfer("uusd", from, from, dec(t, "1")); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
	if err := ledger.Transfer("uusd", from, to, dec(t, "11")); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
