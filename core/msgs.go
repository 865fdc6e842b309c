package core

import (
	"redbank/core/types"
	"redbank/native/decimal"
	"redbank/native/redbank"
)

// Msg is a money market state transition request. Every message applies
// atomically: it either commits all of its writes or none.
type Msg interface {
	msgType() string
}

type MsgInitAsset struct {
	Asset  string
	Params redbank.MarketParams
}

type MsgUpdateAsset struct {
	Asset  string
	Params redbank.MarketParams
}

type MsgDeposit struct {
	Asset  string
	Amount decimal.Dec
}

// MsgWithdraw redeems receipt tokens. A nil Amount withdraws everything.
type MsgWithdraw struct {
	Asset  string
	Amount *decimal.Dec
}

type MsgBorrow struct {
	Asset  string
	Amount decimal.Dec
}

type MsgRepay struct {
	Asset  string
	Amount decimal.Dec
}

type MsgLiquidate struct {
	Borrower        types.Address
	CollateralAsset string
	DebtAsset       string
	Amount          decimal.Dec
	ReceiveMaToken  bool
}

// MsgTransferCollateral moves receipt tokens to another holder through the
// ledger, with the engine observing the move.
type MsgTransferCollateral struct {
	To     types.Address
	Asset  string
	Amount decimal.Dec
}

type MsgUpdateUncollateralizedLoanLimit struct {
	User  types.Address
	Asset string
	Limit decimal.Dec
}

type MsgSetAssetIncentive struct {
	Asset             string
	EmissionPerSecond decimal.Dec
}

type MsgClaimRewards struct{}

type MsgWithdrawReserves struct {
	Asset  string
	Amount decimal.Dec
}

// MsgPostPrice feeds the manual oracle. Quotes are stamped with the current
// block time.
type MsgPostPrice struct {
	Asset string
	Price decimal.Dec
}

func (MsgInitAsset) msgType() string   { return "init_asset" }
func (MsgUpdateAsset) msgType() string { return "update_asset" }
func (MsgDeposit) msgType() string     { return "deposit" }
func (MsgWithdraw) msgType() string    { return "withdraw" }
func (MsgBorrow) msgType() string      { return "borrow" }
func (MsgRepay) msgType() string       { return "repay" }
func (MsgLiquidate) msgType() string   { return "liquidate" }

func (MsgTransferCollateral) msgType() string { return "transfer_collateral" }

func (MsgUpdateUncollateralizedLoanLimit) msgType() string { return "update_credit_line" }

func (MsgSetAssetIncentive) msgType() string { return "set_asset_incentive" }
func (MsgClaimRewards) msgType() string      { return "claim_rewards" }
func (MsgWithdrawReserves) msgType() string  { return "withdraw_reserves" }
func (MsgPostPrice) msgType() string         { return "post_price" }
