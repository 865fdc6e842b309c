package redbank

import (
	"fmt"
	"strings"

	"redbank/native/decimal"
)

// MarketParams carries the governance-controlled configuration applied when a
// market is initialised or retuned.
type MarketParams struct {
	MaxLoanToValue       decimal.Dec `json:"max_loan_to_value"`
	LiquidationThreshold decimal.Dec `json:"liquidation_threshold"`
	LiquidationBonus     decimal.Dec `json:"liquidation_bonus"`
	ReserveFactor        decimal.Dec `json:"reserve_factor"`
	RateParams           RateParams  `json:"rate_params"`

	// DepositCap and BorrowCap bound the market's underlying exposure.
	// A zero cap means unlimited.
	DepositCap decimal.Dec `json:"deposit_cap"`
	BorrowCap  decimal.Dec `json:"borrow_cap"`

	Active         bool `json:"active"`
	DepositEnabled bool `json:"deposit_enabled"`
	BorrowEnabled  bool `json:"borrow_enabled"`
}

// Validate checks every ratio lies in [0,1] and the rate union is well
// formed. The liquidation threshold must not be looser than the max LTV,
// otherwise a freshly maxed-out borrow would be instantly liquidatable.
func (p MarketParams) Validate() error {
	one := decimal.One()
	for name, ratio := range map[string]decimal.Dec{
		"max_loan_to_value":     p.MaxLoanToValue,
		"liquidation_threshold": p.LiquidationThreshold,
		"liquidation_bonus":     p.LiquidationBonus,
		"reserve_factor":        p.ReserveFactor,
	} {
		if ratio.GT(one) {
			return fmt.Errorf("%w: %s above one", errInvalidParams, name)
		}
	}
	if p.LiquidationThreshold.LT(p.MaxLoanToValue) {
		return fmt.Errorf("%w: liquidation threshold below max loan-to-value", errInvalidParams)
	}
	return p.RateParams.Validate()
}

// Market captures the per-asset accounting state. Scaled supplies are
// unitless; multiplying by the matching index yields underlying amounts.
type Market struct {
	Asset string `json:"asset"`

	ScaledLiquiditySupply decimal.Dec `json:"scaled_liquidity_supply"`
	ScaledDebtSupply      decimal.Dec `json:"scaled_debt_supply"`

	// LiquidityIndex and BorrowIndex are monotonically non-decreasing
	// multipliers, both starting at 1.0 when the market is initialised.
	LiquidityIndex decimal.Dec `json:"liquidity_index"`
	BorrowIndex    decimal.Dec `json:"borrow_index"`

	// BorrowRate and LiquidityRate cache the annualized rates computed at
	// the last accrual. The dynamic rate model reads BorrowRate back as its
	// previous output.
	BorrowRate    decimal.Dec `json:"borrow_rate"`
	LiquidityRate decimal.Dec `json:"liquidity_rate"`

	// AvailableLiquidity tracks the underlying units held by the market:
	// grown by deposits and repayments, drained by withdrawals, borrows and
	// underlying collateral seizures.
	AvailableLiquidity decimal.Dec `json:"available_liquidity"`

	// ProtocolReserves accumulates the reserve-factor share of borrow
	// interest until governance withdraws it.
	ProtocolReserves decimal.Dec `json:"protocol_reserves"`

	MaxLoanToValue       decimal.Dec `json:"max_loan_to_value"`
	LiquidationThreshold decimal.Dec `json:"liquidation_threshold"`
	LiquidationBonus     decimal.Dec `json:"liquidation_bonus"`
	ReserveFactor        decimal.Dec `json:"reserve_factor"`
	DepositCap           decimal.Dec `json:"deposit_cap"`
	BorrowCap            decimal.Dec `json:"borrow_cap"`
	RateParams           RateParams  `json:"rate_params"`

	Active         bool `json:"active"`
	DepositEnabled bool `json:"deposit_enabled"`
	BorrowEnabled  bool `json:"borrow_enabled"`

	// InterestsLastUpdated is the block timestamp (seconds) of the last
	// index accrual.
	InterestsLastUpdated uint64 `json:"interests_last_updated"`
}

// EnsureDefaults normalises zero-value indices so stored markets predating a
// field addition stay usable.
func (m *Market) EnsureDefaults() {
	if m == nil {
		return
	}
	if m.LiquidityIndex.IsZero() {
		m.LiquidityIndex = decimal.One()
	}
	if m.BorrowIndex.IsZero() {
		m.BorrowIndex = decimal.One()
	}
}

func (m *Market) applyParams(params MarketParams) {
	m.MaxLoanToValue = params.MaxLoanToValue
	m.LiquidationThreshold = params.LiquidationThreshold
	m.LiquidationBonus = params.LiquidationBonus
	m.ReserveFactor = params.ReserveFactor
	m.DepositCap = params.DepositCap
	m.BorrowCap = params.BorrowCap
	m.RateParams = params.RateParams
	m.Active = params.Active
	m.DepositEnabled = params.DepositEnabled
	m.BorrowEnabled = params.BorrowEnabled
}

// Position tracks a single user's footprint in one market. Collateral scaled
// balances live in the receipt-token ledger; the position carries the debt
// side and the collateral flags.
type Position struct {
	ScaledDebt        decimal.Dec `json:"scaled_debt"`
	CollateralEnabled bool        `json:"collateral_enabled"`

	// UncollateralizedLoanLimit, when positive, lets the holder borrow this
	// market's asset without collateral up to the limit in USD.
	UncollateralizedLoanLimit decimal.Dec `json:"uncollateralized_loan_limit"`
}

func normalizeAsset(asset string) string {
	return strings.TrimSpace(asset)
}
