package redbank

import "errors"

var (
	ErrMarketNotFound    = errors.New("redbank: market not initialised")
	ErrMarketExists      = errors.New("redbank: market already initialised")
	ErrMarketNotActive   = errors.New("redbank: market not active")
	ErrDepositNotEnabled = errors.New("redbank: deposits not enabled")
	ErrBorrowNotEnabled  = errors.New("redbank: borrowing not enabled")

	ErrInvalidAmount            = errors.New("redbank: amount must be positive")
	ErrInsufficientLiquidity    = errors.New("redbank: insufficient market liquidity")
	ErrUnderlyingAmountTooLarge = errors.New("redbank: amount exceeds underlying balance")
	ErrDepositCapExceeded       = errors.New("redbank: deposit cap exceeded")
	ErrBorrowCapExceeded        = errors.New("redbank: borrow cap exceeded")

	ErrNoDebtToRepay                       = errors.New("redbank: no outstanding debt to repay")
	ErrBorrowAmountExceedsLimit            = errors.New("redbank: borrow amount exceeds limit")
	ErrHealthFactorNotBelowOne             = errors.New("redbank: borrower health factor not below one")
	ErrCannotLiquidateUncollateralizedDebt = errors.New("redbank: cannot liquidate uncollateralized debt")
	ErrCollateralWouldBreachHealthFactor   = errors.New("redbank: collateral change would breach health factor")

	errNilState         = errors.New("redbank: state not configured")
	errNilCollateral    = errors.New("redbank: collateral ledger not configured")
	errNilPrices        = errors.New("redbank: price source not configured")
	errInvalidRateModel = errors.New("redbank: invalid interest rate parameters")
	errInvalidParams    = errors.New("redbank: invalid market parameters")
)
