package redbank

import (
	"redbank/native/decimal"
)

// rateGrowth computes rate * dt / SecondsPerYear. The borrow side rounds up
// so accrued debt always favours the protocol; the liquidity side rounds
// down for the same reason.
func rateGrowth(rate decimal.Dec, dt uint64, roundUp bool) (decimal.Dec, error) {
	elapsed, err := rate.MulDown(decimal.NewFromUint64(dt))
	if err != nil {
		return decimal.Dec{}, err
	}
	year := decimal.NewFromUint64(SecondsPerYear)
	if roundUp {
		return elapsed.DivUp(year)
	}
	return elapsed.DivDown(year)
}

func accrualFactor(rate decimal.Dec, dt uint64, roundUp bool) (decimal.Dec, error) {
	growth, err := rateGrowth(rate, dt, roundUp)
	if err != nil {
		return decimal.Dec{}, err
	}
	return decimal.One().Add(growth)
}

// projectedLiquidityIndex returns the liquidity index the market would hold
// after accruing up to now, without mutating the market. Read-side queries
// and cross-market health checks rely on this.
func projectedLiquidityIndex(m *Market, now uint64) (decimal.Dec, error) {
	m.EnsureDefaults()
	if now <= m.InterestsLastUpdated || m.LiquidityRate.IsZero() {
		return m.LiquidityIndex, nil
	}
	factor, err := accrualFactor(m.LiquidityRate, now-m.InterestsLastUpdated, false)
	if err != nil {
		return decimal.Dec{}, err
	}
	return m.LiquidityIndex.MulDown(factor)
}

// projectedBorrowIndex mirrors projectedLiquidityIndex for the debt side.
func projectedBorrowIndex(m *Market, now uint64) (decimal.Dec, error) {
	m.EnsureDefaults()
	if now <= m.InterestsLastUpdated || m.BorrowRate.IsZero() {
		return m.BorrowIndex, nil
	}
	factor, err := accrualFactor(m.BorrowRate, now-m.InterestsLastUpdated, true)
	if err != nil {
		return decimal.Dec{}, err
	}
	return m.BorrowIndex.MulUp(factor)
}

// accrueInterest advances both indices using the rates cached at the last
// update, accumulates the reserve-factor share of borrow interest, then
// recomputes the rates from post-accrual utilisation. It is a no-op when no
// time has elapsed, which makes repeated calls within one block idempotent.
func (e *Engine) accrueInterest(m *Market, now uint64) error {
	m.EnsureDefaults()
	if now > m.InterestsLastUpdated {
		dt := now - m.InterestsLastUpdated
		if !m.LiquidityRate.IsZero() {
			factor, err := accrualFactor(m.LiquidityRate, dt, false)
			if err != nil {
				return err
			}
			index, err := m.LiquidityIndex.MulDown(factor)
			if err != nil {
				return err
			}
			m.LiquidityIndex = index
		}
		if !m.BorrowRate.IsZero() && !m.ScaledDebtSupply.IsZero() {
			growth, err := rateGrowth(m.BorrowRate, dt, true)
			if err != nil {
				return err
			}
			factor, err := decimal.One().Add(growth)
			if err != nil {
				return err
			}
			debtBefore, err := m.ScaledDebtSupply.MulUp(m.BorrowIndex)
			if err != nil {
				return err
			}
			index, err := m.BorrowIndex.MulUp(factor)
			if err != nil {
				return err
			}
			m.BorrowIndex = index

			interest, err := debtBefore.MulDown(growth)
			if err != nil {
				return err
			}
			reserveShare, err := interest.MulDown(m.ReserveFactor)
			if err != nil {
				return err
			}
			reserves, err := m.ProtocolReserves.Add(reserveShare)
			if err != nil {
				return err
			}
			m.ProtocolReserves = reserves
		}
		m.InterestsLastUpdated = now
	}
	return e.updateRates(m)
}

// updateRates recomputes the cached borrow and liquidity rates from current
// utilisation. The previously cached borrow rate feeds the dynamic model.
func (e *Engine) updateRates(m *Market) error {
	utilization, err := marketUtilization(m)
	if err != nil {
		return err
	}
	model, err := m.RateParams.Model()
	if err != nil {
		return err
	}
	borrowRate, err := model.BorrowRate(utilization, m.BorrowRate)
	if err != nil {
		return err
	}
	oneMinusReserve, err := decimal.One().Sub(m.ReserveFactor)
	if err != nil {
		return err
	}
	liquidityRate, err := borrowRate.MulDown(utilization)
	if err != nil {
		return err
	}
	liquidityRate, err = liquidityRate.MulDown(oneMinusReserve)
	if err != nil {
		return err
	}
	m.BorrowRate = borrowRate
	m.LiquidityRate = liquidityRate
	return nil
}

// Utilization reports total_debt / (total_debt + available_liquidity) for a
// stored market, zero for an empty one.
func Utilization(m *Market) (decimal.Dec, error) {
	if m == nil {
		return decimal.Dec{}, ErrMarketNotFound
	}
	m.EnsureDefaults()
	return marketUtilization(m)
}

// marketUtilization computes total_debt / (total_debt + available_liquidity),
// defined as zero for an empty market.
func marketUtilization(m *Market) (decimal.Dec, error) {
	debt, err := m.ScaledDebtSupply.MulUp(m.BorrowIndex)
	if err != nil {
		return decimal.Dec{}, err
	}
	if debt.IsZero() {
		return decimal.Zero(), nil
	}
	denom, err := debt.Add(m.AvailableLiquidity)
	if err != nil {
		return decimal.Dec{}, err
	}
	return debt.DivDown(denom)
}
