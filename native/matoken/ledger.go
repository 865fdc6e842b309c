package matoken

import (
	"errors"
	"strings"

	"redbank/core/types"
	"redbank/native/decimal"
)

var (
	ErrInvalidAmount       = errors.New("matoken: amount must be positive")
	ErrInsufficientBalance = errors.New("matoken: insufficient balance")
	ErrSelfTransfer        = errors.New("matoken: transfer to self")

	errNilState = errors.New("matoken: state not configured")
)

type ledgerState interface {
	GetBalance(asset string, holder types.Address) (decimal.Dec, error)
	PutBalance(asset string, holder types.Address, balance decimal.Dec) error
}

// CollateralObserver is notified around every transfer so the risk engine can
// settle rewards, enforce health and maintain collateral flags. Both calls
// run synchronously inside the transfer; an error from Before aborts it.
type CollateralObserver interface {
	BeforeCollateralTransfer(asset string, from, to types.Address, scaled decimal.Dec) error
	AfterCollateralTransfer(asset string, from, to types.Address, fromRemaining, toBalance decimal.Dec) error
}

// Ledger owns the scaled receipt-token balances minted against deposits. It
// implements the transfer mechanics only; everything risk related lives in
// the observer.
type Ledger struct {
	state    ledgerState
	observer CollateralObserver
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) SetState(state ledgerState) {
	if l == nil {
		return
	}
	l.state = state
}

// SetObserver wires the collateral-status observer. A nil observer leaves
// transfers as plain balance moves.
func (l *Ledger) SetObserver(observer CollateralObserver) {
	if l == nil {
		return
	}
	l.observer = observer
}

// Balance reports the holder's scaled balance, zero for unknown holders.
func (l *Ledger) Balance(asset string, holder types.Address) (decimal.Dec, error) {
	if l == nil || l.state == nil {
		return decimal.Dec{}, errNilState
	}
	return l.state.GetBalance(normalizeAsset(asset), holder)
}

// Mint credits freshly issued receipt tokens. Only the money market engine
// calls this, inside a deposit or a liquidation payout.
func (l *Ledger) Mint(asset string, holder types.Address, amount decimal.Dec) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	asset = normalizeAsset(asset)
	balance, err := l.state.GetBalance(asset, holder)
	if err != nil {
		return err
	}
	next, err := balance.Add(amount)
	if err != nil {
		return err
	}
	return l.state.PutBalance(asset, holder, next)
}

// Burn destroys receipt tokens on withdrawal or seizure.
func (l *Ledger) Burn(asset string, holder types.Address, amount decimal.Dec) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	asset = normalizeAsset(asset)
	balance, err := l.state.GetBalance(asset, holder)
	if err != nil {
		return err
	}
	if amount.GT(balance) {
		return ErrInsufficientBalance
	}
	next, err := balance.Sub(amount)
	if err != nil {
		return err
	}
	return l.state.PutBalance(asset, holder, next)
}

// Transfer moves scaled balance between holders. The observer's Before hook
// runs against the pre-transfer balances and can reject the move; the After
// hook sees the settled balances.
func (l *Ledger) Transfer(asset string, from, to types.Address, amount decimal.Dec) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	asset = normalizeAsset(asset)

	fromBalance, err := l.state.GetBalance(asset, from)
	if err != nil {
		return err
	}
	if amount.GT(fromBalance) {
		return ErrInsufficientBalance
	}

	if l.observer != nil {
		if err := l.observer.BeforeCollateralTransfer(asset, from, to, amount); err != nil {
			return err
		}
	}

	fromRemaining, err := fromBalance.Sub(amount)
	if err != nil {
		return err
	}
	toBalance, err := l.state.GetBalance(asset, to)
	if err != nil {
		return err
	}
	if toBalance, err = toBalance.Add(amount); err != nil {
		return err
	}
	if err := l.state.PutBalance(asset, from, fromRemaining); err != nil {
		return err
	}
	if err := l.state.PutBalance(asset, to, toBalance); err != nil {
		return err
	}

	if l.observer != nil {
		return l.observer.AfterCollateralTransfer(asset, from, to, fromRemaining, toBalance)
	}
	return nil
}

func normalizeAsset(asset string) string {
	return strings.TrimSpace(asset)
}
