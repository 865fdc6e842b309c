package redbank

import (
	"redbank/core/types"
	nativecommon "redbank/native/common"
	"redbank/native/decimal"
)

// BeforeCollateralTransfer runs before the receipt-token ledger moves a
// scaled balance between holders. It accrues the market, settles incentive
// rewards on both pre-transfer balances and verifies the sender would stay
// healthy with the balance gone.
func (e *Engine) BeforeCollateralTransfer(asset string, from, to types.Address, scaled decimal.Dec) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if scaled.IsZero() {
		return ErrInvalidAmount
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return err
	}
	if !market.Active {
		return ErrMarketNotActive
	}
	if err := e.accrueInterest(market, e.blockTime); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}
	if err := e.requireHealthyAfter(from, market.Asset, scaled, decimal.Zero()); err != nil {
		return err
	}
	if err := e.settleIncentives(market.Asset, from); err != nil {
		return err
	}
	return e.settleIncentives(market.Asset, to)
}

// AfterCollateralTransfer runs once the ledger has moved the balance. The
// receiver starts counting the asset as collateral; a sender drained to zero
// stops, unlike an owner-initiated withdrawal.
func (e *Engine) AfterCollateralTransfer(asset string, from, to types.Address, fromRemaining, toBalance decimal.Dec) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	asset = normalizeAsset(asset)

	if fromRemaining.IsZero() {
		sender, err := e.ensurePosition(from, asset)
		if err != nil {
			return err
		}
		if sender.CollateralEnabled {
			sender.CollateralEnabled = false
			if err := e.state.PutPosition(from, asset, sender); err != nil {
				return err
			}
		}
	}
	if !toBalance.IsZero() {
		receiver, err := e.ensurePosition(to, asset)
		if err != nil {
			return err
		}
		if !receiver.CollateralEnabled {
			receiver.CollateralEnabled = true
			if err := e.state.PutPosition(to, asset, receiver); err != nil {
				return err
			}
		}
	}

	e.emit(eventCollateralTransferred, map[string]string{
		"asset": asset,
		"from":  from.Hex(),
		"to":    to.Hex(),
	})
	return nil
}
