package redbank

import "redbank/core/types"

const (
	eventMarketInitialised     = "redbank.market.initialised"
	eventMarketUpdated         = "redbank.market.updated"
	eventDeposited             = "redbank.deposited"
	eventWithdrawn             = "redbank.withdrawn"
	eventBorrowed              = "redbank.borrowed"
	eventRepaid                = "redbank.repaid"
	eventLiquidated            = "redbank.liquidated"
	eventCollateralTransferred = "redbank.collateral.transferred"
	eventCreditLineUpdated     = "redbank.credit_line.updated"
	eventReservesWithdrawn     = "redbank.reserves.withdrawn"
)

func (e *Engine) emit(eventType string, attrs map[string]string) {
	if e == nil || e.state == nil {
		return
	}
	e.state.AppendEvent(&types.Event{Type: eventType, Attributes: attrs})
}
