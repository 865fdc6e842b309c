package redbank

import (
	"errors"
	"testing"

	nativecommon "redbank/native/common"
	"redbank/native/decimal"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool {
	return p[module]
}

func TestEngineHonoursPauseGuard(t *testing.T) {
	f := newEngineFixture()
	user := testAddr(0x01)
	if _, err := f.engine.InitAsset("uusd", defaultMarketParams(t)); err != nil {
		t.Fatalf("init asset: %v", err)
	}
	f.prices.Post("uusd", decimal.One())
	if _, err := f.engine.Deposit(user, "uusd", dec(t, "1000")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	f.engine.SetPauses(pauseMap{moduleName: true})

	if _, err := f.engine.Deposit(user, "uusd", dec(t, "1")); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("deposit while paused: got %v", err)
	}
	if _, err := f.engine.Borrow(user, "uusd", dec(t, "1")); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("borrow while paused: got %v", err)
	}
	if _, err := f.engine.Withdraw(user, "uusd", nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("withdraw while paused: got %v", err)
	}
	if _, err := f.engine.Liquidate(testAddr(0x02), user, "uusd", "uusd", dec(t, "1"), false); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("liquidate while paused: got %v", err)
	}
	if err := f.engine.BeforeCollateralTransfer("uusd", user, testAddr(0x02), dec(t, "1")); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("transfer while paused: got %v", err)
	}

	f.engine.SetPauses(pauseMap{moduleName: false})
	if _, err := f.engine.Deposit(user, "uusd", dec(t, "1")); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}
