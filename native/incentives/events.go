package incentives

import "redbank/core/types"

const (
	eventIncentiveSet   = "incentives.set"
	eventRewardsClaimed = "incentives.claimed"
)

func (e *Engine) emit(eventType string, attrs map[string]string) {
	if e == nil || e.state == nil {
		return
	}
	e.state.AppendEvent(&types.Event{Type: eventType, Attributes: attrs})
}
