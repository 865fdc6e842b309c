package redbank

import (
	"fmt"

	"redbank/core/types"
	"redbank/native/decimal"
)

// HealthStatus classifies a user's exposure for liquidation purposes.
type HealthStatus string

const (
	// StatusNotBorrowing marks users with no debt, or whose debt is wholly
	// backed by an uncollateralized credit line with no enabled collateral.
	// Such users cannot be liquidated.
	StatusNotBorrowing HealthStatus = "not_borrowing"
	StatusBorrowing    HealthStatus = "borrowing"
)

// Health aggregates a user's collateral and debt across every market they
// have touched.
type Health struct {
	Status HealthStatus

	// CollateralUSD is the unweighted value of enabled collateral.
	CollateralUSD decimal.Dec
	// MaxDebtUSD weighs collateral by max loan-to-value; it gates borrowing.
	MaxDebtUSD decimal.Dec
	// WeightedLiquidationThresholdUSD weighs collateral by the liquidation
	// threshold; it gates liquidation.
	WeightedLiquidationThresholdUSD decimal.Dec

	// DebtUSD is the value of all outstanding debt.
	DebtUSD decimal.Dec
	// CollateralizedDebtUSD excludes debt in markets where the user holds a
	// credit line.
	CollateralizedDebtUSD decimal.Dec

	// HealthFactor is WeightedLiquidationThresholdUSD / DebtUSD, meaningful
	// only while Status is StatusBorrowing.
	HealthFactor decimal.Dec
}

// healthAdjustment projects a pending mutation into the health computation
// so the check runs strictly before any balance used by it is mutated.
type healthAdjustment struct {
	asset                string
	collateralScaledBurn decimal.Dec
	debtUnderlyingGrowth decimal.Dec
}

// UserHealth computes the user's current aggregate position.
func (e *Engine) UserHealth(addr types.Address) (*Health, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.prices == nil {
		return nil, errNilPrices
	}
	return e.userHealth(addr, nil)
}

func (e *Engine) userHealth(addr types.Address, adj *healthAdjustment) (*Health, error) {
	assets, err := e.state.UserAssets(addr)
	if err != nil {
		return nil, err
	}
	if adj != nil {
		found := false
		for _, asset := range assets {
			if asset == adj.asset {
				found = true
				break
			}
		}
		if !found {
			assets = append(assets, adj.asset)
		}
	}

	health := &Health{Status: StatusNotBorrowing}
	for _, asset := range assets {
		market, err := e.loadMarket(asset)
		if err != nil {
			return nil, err
		}
		position, err := e.ensurePosition(addr, asset)
		if err != nil {
			return nil, err
		}

		collateralScaled := decimal.Zero()
		if e.collateral != nil {
			if collateralScaled, err = e.collateral.Balance(asset, addr); err != nil {
				return nil, err
			}
		}
		if adj != nil && adj.asset == asset && !adj.collateralScaledBurn.IsZero() {
			burn := decimal.Min(adj.collateralScaledBurn, collateralScaled)
			if collateralScaled, err = collateralScaled.Sub(burn); err != nil {
				return nil, err
			}
		}

		debtScaled := position.ScaledDebt
		hasCollateral := position.CollateralEnabled && !collateralScaled.IsZero()
		hasDebt := !debtScaled.IsZero() || (adj != nil && adj.asset == asset && !adj.debtUnderlyingGrowth.IsZero())
		if !hasCollateral && !hasDebt {
			continue
		}

		price, err := e.prices.Price(asset)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", asset, err)
		}

		if hasCollateral {
			index, err := projectedLiquidityIndex(market, e.blockTime)
			if err != nil {
				return nil, err
			}
			underlying, err := collateralScaled.MulDown(index)
			if err != nil {
				return nil, err
			}
			value, err := underlying.MulDown(price)
			if err != nil {
				return nil, err
			}
			if health.CollateralUSD, err = health.CollateralUSD.Add(value); err != nil {
				return nil, err
			}
			ltvWeighted, err := value.MulDown(market.MaxLoanToValue)
			if err != nil {
				return nil, err
			}
			if health.MaxDebtUSD, err = health.MaxDebtUSD.Add(ltvWeighted); err != nil {
				return nil, err
			}
			thresholdWeighted, err := value.MulDown(market.LiquidationThreshold)
			if err != nil {
				return nil, err
			}
			if health.WeightedLiquidationThresholdUSD, err = health.WeightedLiquidationThresholdUSD.Add(thresholdWeighted); err != nil {
				return nil, err
			}
		}

		if hasDebt {
			index, err := projectedBorrowIndex(market, e.blockTime)
			if err != nil {
				return nil, err
			}
			underlying, err := debtScaled.MulUp(index)
			if err != nil {
				return nil, err
			}
			if adj != nil && adj.asset == asset && !adj.debtUnderlyingGrowth.IsZero() {
				if underlying, err = underlying.Add(adj.debtUnderlyingGrowth); err != nil {
					return nil, err
				}
			}
			value, err := underlying.MulUp(price)
			if err != nil {
				return nil, err
			}
			if health.DebtUSD, err = health.DebtUSD.Add(value); err != nil {
				return nil, err
			}
			if position.UncollateralizedLoanLimit.IsZero() {
				if health.CollateralizedDebtUSD, err = health.CollateralizedDebtUSD.Add(value); err != nil {
					return nil, err
				}
			}
		}
	}

	if health.DebtUSD.IsZero() {
		return health, nil
	}
	if health.CollateralUSD.IsZero() && health.CollateralizedDebtUSD.IsZero() {
		// Debt exists but every unit is credit-line backed with nothing
		// pledged: not liquidatable, though further borrowing stays capped
		// by the per-asset limits.
		return health, nil
	}
	health.Status = StatusBorrowing
	factor, err := health.WeightedLiquidationThresholdUSD.DivDown(health.DebtUSD)
	if err != nil {
		return nil, err
	}
	health.HealthFactor = factor
	return health, nil
}

// requireHealthyAfter rejects a collateral reduction that would push a
// borrowing user's health factor below one.
func (e *Engine) requireHealthyAfter(addr types.Address, asset string, scaledBurn, debtGrowth decimal.Dec) error {
	if e.prices == nil {
		return errNilPrices
	}
	health, err := e.userHealth(addr, &healthAdjustment{
		asset:                asset,
		collateralScaledBurn: scaledBurn,
		debtUnderlyingGrowth: debtGrowth,
	})
	if err != nil {
		return err
	}
	if health.Status == StatusBorrowing && health.HealthFactor.LT(decimal.One()) {
		return ErrCollateralWouldBreachHealthFactor
	}
	return nil
}

// requireBorrowable enforces the loan-to-value ceiling on a prospective
// borrow: post-borrow debt must stay within the LTV-weighted collateral.
func (e *Engine) requireBorrowable(addr types.Address, asset string, amount decimal.Dec) error {
	health, err := e.userHealth(addr, &healthAdjustment{
		asset:                asset,
		debtUnderlyingGrowth: amount,
	})
	if err != nil {
		return err
	}
	if health.DebtUSD.GT(health.MaxDebtUSD) {
		return ErrBorrowAmountExceedsLimit
	}
	return nil
}
