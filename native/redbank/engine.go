package redbank

import (
	"fmt"

	"redbank/core/types"
	nativecommon "redbank/native/common"
	"redbank/native/decimal"
)

const moduleName = "redbank"

// engineState is the narrow persistence surface the engine mutates. Markets
// and positions are fetched fresh on every message; nothing is cached across
// calls.
type engineState interface {
	GetMarket(asset string) (*Market, error)
	PutMarket(market *Market) error
	GetPosition(addr types.Address, asset string) (*Position, error)
	PutPosition(addr types.Address, asset string, position *Position) error
	UserAssets(addr types.Address) ([]string, error)
	AppendEvent(evt *types.Event)
}

// CollateralLedger abstracts the receipt-token balances backing deposits.
// The engine mints and burns through it and keeps the market's scaled supply
// in step within the same mutation.
type CollateralLedger interface {
	Balance(asset string, holder types.Address) (decimal.Dec, error)
	Mint(asset string, holder types.Address, amount decimal.Dec) error
	Burn(asset string, holder types.Address, amount decimal.Dec) error
}

// IncentiveHook settles reward accrual for a holder using their balance as
// it stands right now. It must run before any collateral balance mutation.
type IncentiveHook interface {
	BeforeBalanceChange(asset string, holder types.Address, now uint64) error
}

// PriceSource supplies the USD unit price per asset. A missing or stale
// price is a hard error that aborts the operation.
type PriceSource interface {
	Price(asset string) (decimal.Dec, error)
}

// Engine orchestrates the primary state transitions for the money market.
type Engine struct {
	state       engineState
	collateral  CollateralLedger
	incentives  IncentiveHook
	prices      PriceSource
	pauses      nativecommon.PauseView
	closeFactor decimal.Dec
	blockTime   uint64
}

// NewEngine constructs an engine with the protocol-wide close factor.
func NewEngine(closeFactor decimal.Dec) *Engine {
	return &Engine{closeFactor: closeFactor}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

// SetCollateralLedger wires the receipt-token ledger.
func (e *Engine) SetCollateralLedger(ledger CollateralLedger) {
	if e == nil {
		return
	}
	e.collateral = ledger
}

// SetIncentives wires the reward distributor hook. A nil hook disables
// incentive accounting.
func (e *Engine) SetIncentives(hook IncentiveHook) {
	if e == nil {
		return
	}
	e.incentives = hook
}

// SetPriceSource wires the external price resolver.
func (e *Engine) SetPriceSource(source PriceSource) {
	if e == nil {
		return
	}
	e.prices = source
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBlockTime records the deterministic timestamp (seconds) used for all
// interest and reward accrual in subsequent operations.
func (e *Engine) SetBlockTime(now uint64) {
	if e == nil {
		return
	}
	e.blockTime = now
}

// BlockTime returns the currently configured block timestamp.
func (e *Engine) BlockTime() uint64 {
	if e == nil {
		return 0
	}
	return e.blockTime
}

// InitAsset creates a market for the asset. Markets are created exactly once
// and never deleted; gates are toggled through UpdateAsset instead.
func (e *Engine) InitAsset(asset string, params MarketParams) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	asset = normalizeAsset(asset)
	if asset == "" {
		return nil, fmt.Errorf("%w: empty asset", errInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	existing, err := e.state.GetMarket(asset)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrMarketExists
	}

	market := &Market{
		Asset:                asset,
		LiquidityIndex:       decimal.One(),
		BorrowIndex:          decimal.One(),
		InterestsLastUpdated: e.blockTime,
	}
	market.applyParams(params)
	if err := e.updateRates(market); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emit(eventMarketInitialised, map[string]string{
		"asset": asset,
	})
	return market, nil
}

// UpdateAsset retunes a market's risk parameters. Interest is accrued first
// so the elapsed interval is settled under the old parameters.
func (e *Engine) UpdateAsset(asset string, params MarketParams) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market, e.blockTime); err != nil {
		return nil, err
	}
	market.applyParams(params)
	if err := e.updateRates(market); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emit(eventMarketUpdated, map[string]string{
		"asset": market.Asset,
	})
	return market, nil
}

// Deposit converts the supplied underlying amount into scaled collateral and
// mints the matching receipt balance. The minted scaled amount is returned.
func (e *Engine) Deposit(depositor types.Address, asset string, amount decimal.Dec) (decimal.Dec, error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, errNilState
	}
	if e.collateral == nil {
		return decimal.Dec{}, errNilCollateral
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return decimal.Dec{}, err
	}
	if amount.IsZero() {
		return decimal.Dec{}, ErrInvalidAmount
	}

	market, err := e.loadMarket(asset)
	if err != nil {
		return decimal.Dec{}, err
	}
	if !market.Active {
		return decimal.Dec{}, ErrMarketNotActive
	}
	if !market.DepositEnabled {
		return decimal.Dec{}, ErrDepositNotEnabled
	}
	if err := e.accrueInterest(market, e.blockTime); err != nil {
		return decimal.Dec{}, err
	}

	if !market.DepositCap.IsZero() {
		supplied, err := market.ScaledLiquiditySupply.MulDown(market.LiquidityIndex)
		if err != nil {
			return decimal.Dec{}, err
		}
		after, err := supplied.Add(amount)
		if err != nil {
			return decimal.Dec{}, err
		}
		if after.GT(market.DepositCap) {
			return decimal.Dec{}, ErrDepositCapExceeded
		}
	}

	if err := e.settleIncentives(market.Asset, depositor); err != nil {
		return decimal.Dec{}, err
	}

	scaled, err := amount.DivDown(market.LiquidityIndex)
	if err != nil {
		return decimal.Dec{}, err
	}
	if scaled.IsZero() {
		return decimal.Dec{}, ErrInvalidAmount
	}
	if err := e.collateral.Mint(market.Asset, depositor, scaled); err != nil {
		return decimal.Dec{}, err
	}

	if market.ScaledLiquiditySupply, err = market.ScaledLiquiditySupply.Add(scaled); err != nil {
		return decimal.Dec{}, err
	}
	if market.AvailableLiquidity, err = market.AvailableLiquidity.Add(amount); err != nil {
		return decimal.Dec{}, err
	}
	if err := e.updateRates(market); err != nil {
		return decimal.Dec{}, err
	}

	position, err := e.ensurePosition(depositor, market.Asset)
	if err != nil {
		return decimal.Dec{}, err
	}
	position.CollateralEnabled = true
	if err := e.state.PutPosition(depositor, market.Asset, position); err != nil {
		return decimal.Dec{}, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return decimal.Dec{}, err
	}

	e.emit(eventDeposited, map[string]string{
		"asset":     market.Asset,
		"depositor": depositor.Hex(),
		"amount":    amount.String(),
		"scaled":    scaled.String(),
	})
	return scaled, nil
}

// Withdraw redeems receipt balance for underlying. A nil amount withdraws
// the full balance. The underlying amount released is returned.
func (e *Engine) Withdraw(withdrawer types.Address, asset string, amount *decimal.Dec) (decimal.Dec, error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, errNilState
	}
	if e.collateral == nil {
		return decimal.Dec{}, errNilCollateral
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return decimal.Dec{}, err
	}

	market, err := e.loadMarket(asset)
	if err != nil {
		return decimal.Dec{}, err
	}
	if !market.Active {
		return decimal.Dec{}, ErrMarketNotActive
	}
	if err := e.accrueInterest(market, e.blockTime); err != nil {
		return decimal.Dec{}, err
	}

	balance, err := e.collateral.Balance(market.Asset, withdrawer)
	if err != nil {
		return decimal.Dec{}, err
	}
	maxUnderlying, err := balance.MulDown(market.LiquidityIndex)
	if err != nil {
		return decimal.Dec{}, err
	}

	requested := maxUnderlying
	if amount != nil {
		requested = *amount
	}
	if requested.IsZero() {
		return decimal.Dec{}, ErrInvalidAmount
	}
	if requested.GT(maxUnderlying) {
		return decimal.Dec{}, ErrUnderlyingAmountTooLarge
	}
	if requested.GT(market.AvailableLiquidity) {
		return decimal.Dec{}, ErrInsufficientLiquidity
	}

	// Burn at least enough scaled balance to cover the requested underlying.
	scaledBurn, err := requested.DivUp(market.LiquidityIndex)
	if err != nil {
		return decimal.Dec{}, err
	}
	scaledBurn = decimal.Min(scaledBurn, balance)

	if err := e.requireHealthyAfter(withdrawer, market.Asset, scaledBurn, decimal.Zero()); err != nil {
		return decimal.Dec{}, err
	}

	if err := e.settleIncentives(market.Asset, withdrawer); err != nil {
		return decimal.Dec{}, err
	}
	if err := e.collateral.Burn(market.Asset, withdrawer, scaledBurn); err != nil {
		return decimal.Dec{}, err
	}

	if market.ScaledLiquiditySupply, err = market.ScaledLiquiditySupply.Sub(scaledBurn); err != nil {
		return decimal.Dec{}, err
	}
	if market.AvailableLiquidity, err = market.AvailableLiquidity.Sub(requested); err != nil {
		return decimal.Dec{}, err
	}
	if err := e.updateRates(market); err != nil {
		return decimal.Dec{}, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return decimal.Dec{}, err
	}

	// The collateral flag survives an owner-initiated withdrawal to zero so
	// a later redeposit resumes counting without an explicit opt-in.
	e.emit(eventWithdrawn, map[string]string{
		"asset":      market.Asset,
		"withdrawer": withdrawer.Hex(),
		"amount":     requested.String(),
		"scaled":     scaledBurn.String(),
	})
	return requested, nil
}

// Borrow draws underlying liquidity against the borrower's collateral or an
// admin-granted uncollateralized credit line.
func (e *Engine) Borrow(borrower types.Address, asset string, amount decimal.Dec) (decimal.Dec, error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, errNilState
	}
	if e.prices == nil {
		return decimal.Dec{}, errNilPrices
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return decimal.Dec{}, err
	}
	if amount.IsZero() {
		return decimal.Dec{}, ErrInvalidAmount
	}

	market, err := e.loadMarket(asset)
	if err != nil {
		return decimal.Dec{}, err
	}
	if !market.Active {
		return decimal.Dec{}, ErrMarketNotActive
	}
	if !market.BorrowEnabled {
		return decimal.Dec{}, ErrBorrowNotEnabled
	}
	if err := e.accrueInterest(market, e.blockTime); err != nil {
		return decimal.Dec{}, err
	}

	if amount.GT(market.AvailableLiquidity) {
		return decimal.Dec{}, ErrInsufficientLiquidity
	}
	if !market.BorrowCap.IsZero() {
		debt, err := market.ScaledDebtSupply.MulUp(market.BorrowIndex)
		if err != nil {
			return decimal.Dec{}, err
		}
		after, err := debt.Add(amount)
		if err != nil {
			return decimal.Dec{}, err
		}
		if after.GT(market.BorrowCap) {
			return decimal.Dec{}, ErrBorrowCapExceeded
		}
	}

	position, err := e.ensurePosition(borrower, market.Asset)
	if err != nil {
		return decimal.Dec{}, err
	}

	if !position.UncollateralizedLoanLimit.IsZero() {
		if err := e.checkCreditLine(market, position, amount); err != nil {
			return decimal.Dec{}, err
		}
	} else if err := e.requireBorrowable(borrower, market.Asset, amount); err != nil {
		return decimal.Dec{}, err
	}

	// Charge slightly more scaled debt than the literal conversion.
	scaled, err := amount.DivUp(market.BorrowIndex)
	if err != nil {
		return decimal.Dec{}, err
	}
	if position.ScaledDebt, err = position.ScaledDebt.Add(scaled); err != nil {
		return decimal.Dec{}, err
	}
	if market.ScaledDebtSupply, err = market.ScaledDebtSupply.Add(scaled); err != nil {
		return decimal.Dec{}, err
	}
	if market.AvailableLiquidity, err = market.AvailableLiquidity.Sub(amount); err != nil {
		return decimal.Dec{}, err
	}
	if err := e.updateRates(market); err != nil {
		return decimal.Dec{}, err
	}

	if err := e.state.PutPosition(borrower, market.Asset, position); err != nil {
		return decimal.Dec{}, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return decimal.Dec{}, err
	}

	e.emit(eventBorrowed, map[string]string{
		"asset":    market.Asset,
		"borrower": borrower.Hex(),
		"amount":   amount.String(),
		"scaled":   scaled.String(),
	})
	return amount, nil
}

// Repay settles outstanding debt with the sent funds. Anything beyond the
// outstanding amount is reported back as a refund for the caller to return.
func (e *Engine) Repay(payer types.Address, asset string, sent decimal.Dec) (repaid, refund decimal.Dec, err error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, decimal.Dec{}, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}
	if sent.IsZero() {
		return decimal.Dec{}, decimal.Dec{}, ErrInvalidAmount
	}

	market, err := e.loadMarket(asset)
	if err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}
	if !market.Active {
		return decimal.Dec{}, decimal.Dec{}, ErrMarketNotActive
	}
	if err := e.accrueInterest(market, e.blockTime); err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}

	position, err := e.ensurePosition(payer, market.Asset)
	if err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}
	if position.ScaledDebt.IsZero() {
		return decimal.Dec{}, decimal.Dec{}, ErrNoDebtToRepay
	}

	outstanding, err := position.ScaledDebt.MulUp(market.BorrowIndex)
	if err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}

	var scaledRepaid decimal.Dec
	if sent.GTE(outstanding) {
		repaid = outstanding
		if refund, err = sent.Sub(outstanding); err != nil {
			return decimal.Dec{}, decimal.Dec{}, err
		}
		scaledRepaid = position.ScaledDebt
	} else {
		repaid = sent
		refund = decimal.Zero()
		if scaledRepaid, err = sent.DivDown(market.BorrowIndex); err != nil {
			return decimal.Dec{}, decimal.Dec{}, err
		}
		scaledRepaid = decimal.Min(scaledRepaid, position.ScaledDebt)
	}

	if position.ScaledDebt, err = position.ScaledDebt.Sub(scaledRepaid); err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}
	if market.ScaledDebtSupply, err = market.ScaledDebtSupply.Sub(scaledRepaid); err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}
	if market.AvailableLiquidity, err = market.AvailableLiquidity.Add(repaid); err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}
	if err := e.updateRates(market); err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}

	if err := e.state.PutPosition(payer, market.Asset, position); err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return decimal.Dec{}, decimal.Dec{}, err
	}

	e.emit(eventRepaid, map[string]string{
		"asset":  market.Asset,
		"payer":  payer.Hex(),
		"amount": repaid.String(),
		"refund": refund.String(),
	})
	return repaid, refund, nil
}

// UpdateUncollateralizedLoanLimit grants or revokes a credit line. Setting a
// zero limit restores the regular collateral requirement for future borrows.
func (e *Engine) UpdateUncollateralizedLoanLimit(user types.Address, asset string, limit decimal.Dec) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return err
	}
	position, err := e.ensurePosition(user, market.Asset)
	if err != nil {
		return err
	}
	position.UncollateralizedLoanLimit = limit
	if err := e.state.PutPosition(user, market.Asset, position); err != nil {
		return err
	}
	e.emit(eventCreditLineUpdated, map[string]string{
		"asset": market.Asset,
		"user":  user.Hex(),
		"limit": limit.String(),
	})
	return nil
}

// WithdrawReserves releases accumulated protocol reserves, bounded by both
// the accrued figure and the market's liquid funds.
func (e *Engine) WithdrawReserves(asset string, amount decimal.Dec) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return err
	}
	if err := e.accrueInterest(market, e.blockTime); err != nil {
		return err
	}
	if amount.GT(market.ProtocolReserves) || amount.GT(market.AvailableLiquidity) {
		return ErrInsufficientLiquidity
	}
	if market.ProtocolReserves, err = market.ProtocolReserves.Sub(amount); err != nil {
		return err
	}
	if market.AvailableLiquidity, err = market.AvailableLiquidity.Sub(amount); err != nil {
		return err
	}
	if err := e.updateRates(market); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}
	e.emit(eventReservesWithdrawn, map[string]string{
		"asset":  market.Asset,
		"amount": amount.String(),
	})
	return nil
}

// Market returns the stored market for the asset.
func (e *Engine) Market(asset string) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadMarket(asset)
}

// UnderlyingLiquidityAmount converts a scaled collateral amount into
// underlying using the index projected to the current block time, without
// mutating the market.
func (e *Engine) UnderlyingLiquidityAmount(asset string, scaled decimal.Dec) (decimal.Dec, error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, errNilState
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return decimal.Dec{}, err
	}
	index, err := projectedLiquidityIndex(market, e.blockTime)
	if err != nil {
		return decimal.Dec{}, err
	}
	return scaled.MulDown(index)
}

// UnderlyingDebtAmount mirrors UnderlyingLiquidityAmount for the debt side.
func (e *Engine) UnderlyingDebtAmount(asset string, scaled decimal.Dec) (decimal.Dec, error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, errNilState
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return decimal.Dec{}, err
	}
	index, err := projectedBorrowIndex(market, e.blockTime)
	if err != nil {
		return decimal.Dec{}, err
	}
	return scaled.MulUp(index)
}

// TotalScaledSupply reports the market's scaled collateral supply. Together
// with ScaledBalance it lets the incentive distributor weigh emissions.
func (e *Engine) TotalScaledSupply(asset string) (decimal.Dec, error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, errNilState
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return decimal.Dec{}, err
	}
	return market.ScaledLiquiditySupply, nil
}

// ScaledBalance reports a holder's scaled collateral balance.
func (e *Engine) ScaledBalance(asset string, holder types.Address) (decimal.Dec, error) {
	if e == nil || e.collateral == nil {
		return decimal.Dec{}, errNilCollateral
	}
	return e.collateral.Balance(normalizeAsset(asset), holder)
}

func (e *Engine) loadMarket(asset string) (*Market, error) {
	market, err := e.state.GetMarket(normalizeAsset(asset))
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	market.EnsureDefaults()
	return market, nil
}

func (e *Engine) ensurePosition(addr types.Address, asset string) (*Position, error) {
	position, err := e.state.GetPosition(addr, asset)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{}
	}
	return position, nil
}

func (e *Engine) settleIncentives(asset string, holder types.Address) error {
	if e.incentives == nil {
		return nil
	}
	return e.incentives.BeforeBalanceChange(asset, holder, e.blockTime)
}

// checkCreditLine enforces the USD ceiling on uncollateralized borrowing.
func (e *Engine) checkCreditLine(market *Market, position *Position, amount decimal.Dec) error {
	price, err := e.prices.Price(market.Asset)
	if err != nil {
		return fmt.Errorf("price for %s: %w", market.Asset, err)
	}
	debt, err := position.ScaledDebt.MulUp(market.BorrowIndex)
	if err != nil {
		return err
	}
	debtAfter, err := debt.Add(amount)
	if err != nil {
		return err
	}
	debtUSD, err := debtAfter.MulUp(price)
	if err != nil {
		return err
	}
	if debtUSD.GT(position.UncollateralizedLoanLimit) {
		return ErrBorrowAmountExceedsLimit
	}
	return nil
}
