package redbank

import (
	"fmt"

	"redbank/core/types"
	nativecommon "redbank/native/common"
	"redbank/native/decimal"
)

// LiquidationResult reports the amounts a liquidation actually moved.
type LiquidationResult struct {
	DebtRepaid       decimal.Dec
	CollateralSeized decimal.Dec
	Refund           decimal.Dec
	// ReceivedScaled is the scaled receipt balance handed to the liquidator
	// when receiveMaToken was requested, zero otherwise.
	ReceivedScaled decimal.Dec
}

// Liquidate lets a third party repay part of an unhealthy borrower's debt in
// exchange for a bonus-discounted slice of their collateral. Interest is
// accrued on both markets before any sizing so the conversion indices are
// frozen at the start of the call.
func (e *Engine) Liquidate(liquidator, borrower types.Address, collateralAsset, debtAsset string, offered decimal.Dec, receiveMaToken bool) (*LiquidationResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.collateral == nil {
		return nil, errNilCollateral
	}
	if e.prices == nil {
		return nil, errNilPrices
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if offered.IsZero() {
		return nil, ErrInvalidAmount
	}

	debtMarket, err := e.loadMarket(debtAsset)
	if err != nil {
		return nil, err
	}
	collMarket := debtMarket
	if normalizeAsset(collateralAsset) != debtMarket.Asset {
		if collMarket, err = e.loadMarket(collateralAsset); err != nil {
			return nil, err
		}
	}

	if err := e.accrueInterest(debtMarket, e.blockTime); err != nil {
		return nil, err
	}
	if collMarket != debtMarket {
		if err := e.accrueInterest(collMarket, e.blockTime); err != nil {
			return nil, err
		}
	}

	debtPosition, err := e.ensurePosition(borrower, debtMarket.Asset)
	if err != nil {
		return nil, err
	}
	if debtPosition.ScaledDebt.IsZero() {
		return nil, ErrNoDebtToRepay
	}
	if !debtPosition.UncollateralizedLoanLimit.IsZero() {
		return nil, ErrCannotLiquidateUncollateralizedDebt
	}

	health, err := e.userHealth(borrower, nil)
	if err != nil {
		return nil, err
	}
	if health.Status != StatusBorrowing || health.HealthFactor.GTE(decimal.One()) {
		return nil, ErrHealthFactorNotBelowOne
	}

	outstanding, err := debtPosition.ScaledDebt.MulUp(debtMarket.BorrowIndex)
	if err != nil {
		return nil, err
	}
	maxRepayable, err := outstanding.MulDown(e.closeFactor)
	if err != nil {
		return nil, err
	}
	debtToRepay := decimal.Min(offered, maxRepayable)

	debtPrice, err := e.prices.Price(debtMarket.Asset)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", debtMarket.Asset, err)
	}
	collPrice, err := e.prices.Price(collMarket.Asset)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", collMarket.Asset, err)
	}
	bonusFactor, err := decimal.One().Add(collMarket.LiquidationBonus)
	if err != nil {
		return nil, err
	}

	seize, err := seizeAmount(debtToRepay, debtPrice, collPrice, bonusFactor)
	if err != nil {
		return nil, err
	}

	collateralScaled, err := e.collateral.Balance(collMarket.Asset, borrower)
	if err != nil {
		return nil, err
	}
	availableCollateral, err := collateralScaled.MulDown(collMarket.LiquidityIndex)
	if err != nil {
		return nil, err
	}

	seizedAll := false
	if seize.GT(availableCollateral) {
		// Cap at what exists and shrink the repayment proportionally so the
		// liquidator never pays for collateral the borrower does not hold.
		seize = availableCollateral
		seizedAll = true
		debtValue, err := seize.MulDown(collPrice)
		if err != nil {
			return nil, err
		}
		denom, err := debtPrice.MulDown(bonusFactor)
		if err != nil {
			return nil, err
		}
		if debtToRepay, err = debtValue.DivDown(denom); err != nil {
			return nil, err
		}
	}

	refund, err := offered.Sub(debtToRepay)
	if err != nil {
		return nil, err
	}

	// Reward accrual settles on pre-mutation balances for everyone whose
	// collateral is about to move.
	if err := e.settleIncentives(collMarket.Asset, borrower); err != nil {
		return nil, err
	}
	if receiveMaToken {
		if err := e.settleIncentives(collMarket.Asset, liquidator); err != nil {
			return nil, err
		}
	}

	scaledSeize, err := seize.DivDown(collMarket.LiquidityIndex)
	if err != nil {
		return nil, err
	}
	if seizedAll || scaledSeize.GT(collateralScaled) {
		scaledSeize = collateralScaled
	}

	result := &LiquidationResult{
		DebtRepaid:       debtToRepay,
		CollateralSeized: seize,
		Refund:           refund,
	}

	if err := e.collateral.Burn(collMarket.Asset, borrower, scaledSeize); err != nil {
		return nil, err
	}
	if receiveMaToken {
		if err := e.collateral.Mint(collMarket.Asset, liquidator, scaledSeize); err != nil {
			return nil, err
		}
		result.ReceivedScaled = scaledSeize
		liquidatorPosition, err := e.ensurePosition(liquidator, collMarket.Asset)
		if err != nil {
			return nil, err
		}
		liquidatorPosition.CollateralEnabled = true
		if err := e.state.PutPosition(liquidator, collMarket.Asset, liquidatorPosition); err != nil {
			return nil, err
		}
	} else {
		if seize.GT(collMarket.AvailableLiquidity) {
			return nil, ErrInsufficientLiquidity
		}
		if collMarket.ScaledLiquiditySupply, err = collMarket.ScaledLiquiditySupply.Sub(scaledSeize); err != nil {
			return nil, err
		}
		if collMarket.AvailableLiquidity, err = collMarket.AvailableLiquidity.Sub(seize); err != nil {
			return nil, err
		}
	}

	// A seizure is a transfer the borrower did not initiate: draining the
	// balance drops the collateral flag.
	if seizedAll {
		borrowerCollPosition, err := e.ensurePosition(borrower, collMarket.Asset)
		if err != nil {
			return nil, err
		}
		borrowerCollPosition.CollateralEnabled = false
		if err := e.state.PutPosition(borrower, collMarket.Asset, borrowerCollPosition); err != nil {
			return nil, err
		}
	}

	scaledRepay, err := debtToRepay.DivDown(debtMarket.BorrowIndex)
	if err != nil {
		return nil, err
	}
	scaledRepay = decimal.Min(scaledRepay, debtPosition.ScaledDebt)
	if debtPosition.ScaledDebt, err = debtPosition.ScaledDebt.Sub(scaledRepay); err != nil {
		return nil, err
	}
	if debtMarket.ScaledDebtSupply, err = debtMarket.ScaledDebtSupply.Sub(scaledRepay); err != nil {
		return nil, err
	}
	if debtMarket.AvailableLiquidity, err = debtMarket.AvailableLiquidity.Add(debtToRepay); err != nil {
		return nil, err
	}

	if err := e.updateRates(debtMarket); err != nil {
		return nil, err
	}
	if collMarket != debtMarket {
		if err := e.updateRates(collMarket); err != nil {
			return nil, err
		}
	}

	if err := e.state.PutPosition(borrower, debtMarket.Asset, debtPosition); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(debtMarket); err != nil {
		return nil, err
	}
	if collMarket != debtMarket {
		if err := e.state.PutMarket(collMarket); err != nil {
			return nil, err
		}
	}

	e.emit(eventLiquidated, map[string]string{
		"borrower":          borrower.Hex(),
		"liquidator":        liquidator.Hex(),
		"debt_asset":        debtMarket.Asset,
		"collateral_asset":  collMarket.Asset,
		"debt_repaid":       debtToRepay.String(),
		"collateral_seized": seize.String(),
		"refund":            refund.String(),
		"receive_ma_token":  fmt.Sprintf("%t", receiveMaToken),
	})
	return result, nil
}

// seizeAmount computes debt * price_debt * (1 + bonus) / price_collateral.
func seizeAmount(debtToRepay, debtPrice, collPrice, bonusFactor decimal.Dec) (decimal.Dec, error) {
	value, err := debtToRepay.MulDown(debtPrice)
	if err != nil {
		return decimal.Dec{}, err
	}
	value, err = value.MulDown(bonusFactor)
	if err != nil {
		return decimal.Dec{}, err
	}
	return value.DivDown(collPrice)
}
