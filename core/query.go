package core

import (
	"redbank/core/types"
	"redbank/native/decimal"
	"redbank/native/incentives"
	"redbank/native/redbank"
	redbankstate "redbank/state/redbank"
)

// Queries run against committed state. Amount conversions use indices
// projected to the current block time; nothing is written back.

// CollateralView pairs a holder's scaled receipt balance with its current
// underlying value.
type CollateralView struct {
	Asset      string
	Scaled     decimal.Dec
	Underlying decimal.Dec
	Enabled    bool
}

// DebtView mirrors CollateralView for the borrow side.
type DebtView struct {
	Asset      string
	Scaled     decimal.Dec
	Underlying decimal.Dec
}

func (p *Processor) QueryMarket(asset string) (*redbank.Market, error) {
	stack := p.newStack(p.db)
	return stack.engine.Market(asset)
}

func (p *Processor) QueryMarkets() ([]*redbank.Market, error) {
	keeper := redbankstate.NewKeeper(p.db)
	return keeper.Markets()
}

func (p *Processor) QueryUserHealth(addr types.Address) (*redbank.Health, error) {
	stack := p.newStack(p.db)
	return stack.engine.UserHealth(addr)
}

func (p *Processor) QueryCollateral(addr types.Address, asset string) (*CollateralView, error) {
	return collateralView(p.newStack(p.db), addr, asset)
}

func (p *Processor) QueryDebt(addr types.Address, asset string) (*DebtView, error) {
	return debtView(p.newStack(p.db), addr, asset)
}

// UserPositionView enumerates a user's footprint across every market they
// have touched, alongside the health aggregates computed from it.
type UserPositionView struct {
	Collateral []*CollateralView
	Debts      []*DebtView
	Health     *redbank.Health
}

// QueryUserPosition walks the user's touched-asset index so callers need no
// prior knowledge of which markets the user entered. Markets where both sides
// are empty are omitted.
func (p *Processor) QueryUserPosition(addr types.Address) (*UserPositionView, error) {
	stack := p.newStack(p.db)
	assets, err := stack.keeper.UserAssets(addr)
	if err != nil {
		return nil, err
	}
	view := &UserPositionView{}
	for _, asset := range assets {
		collateral, err := collateralView(stack, addr, asset)
		if err != nil {
			return nil, err
		}
		debt, err := debtView(stack, addr, asset)
		if err != nil {
			return nil, err
		}
		if collateral.Scaled.IsZero() && debt.Scaled.IsZero() {
			continue
		}
		if !collateral.Scaled.IsZero() {
			view.Collateral = append(view.Collateral, collateral)
		}
		if !debt.Scaled.IsZero() {
			view.Debts = append(view.Debts, debt)
		}
	}
	health, err := stack.engine.UserHealth(addr)
	if err != nil {
		return nil, err
	}
	view.Health = health
	return view, nil
}

func collateralView(stack *engineStack, addr types.Address, asset string) (*CollateralView, error) {
	scaled, err := stack.ledger.Balance(asset, addr)
	if err != nil {
		return nil, err
	}
	underlying := decimal.Zero()
	if !scaled.IsZero() {
		if underlying, err = stack.engine.UnderlyingLiquidityAmount(asset, scaled); err != nil {
			return nil, err
		}
	}
	position, err := stack.keeper.GetPosition(addr, asset)
	if err != nil {
		return nil, err
	}
	enabled := position != nil && position.CollateralEnabled
	return &CollateralView{Asset: asset, Scaled: scaled, Underlying: underlying, Enabled: enabled}, nil
}

func debtView(stack *engineStack, addr types.Address, asset string) (*DebtView, error) {
	position, err := stack.keeper.GetPosition(addr, asset)
	if err != nil {
		return nil, err
	}
	scaled := decimal.Zero()
	if position != nil {
		scaled = position.ScaledDebt
	}
	underlying := decimal.Zero()
	if !scaled.IsZero() {
		if underlying, err = stack.engine.UnderlyingDebtAmount(asset, scaled); err != nil {
			return nil, err
		}
	}
	return &DebtView{Asset: asset, Scaled: scaled, Underlying: underlying}, nil
}

func (p *Processor) QueryClaimable(addr types.Address) (decimal.Dec, error) {
	stack := p.newStack(p.db)
	return stack.inc.Claimable(addr)
}

// QueryAssetIncentive returns the stored incentive configuration for an
// asset, nil when none was ever set.
func (p *Processor) QueryAssetIncentive(asset string) (*incentives.AssetIncentive, error) {
	keeper := redbankstate.NewKeeper(p.db)
	return keeper.GetIncentive(asset)
}

func (p *Processor) QueryPrice(asset string) (decimal.Dec, error) {
	return p.prices.Price(asset)
}
