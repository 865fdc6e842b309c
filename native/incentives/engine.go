package incentives

import (
	"errors"

	"redbank/core/types"
	"redbank/native/decimal"
)

var (
	ErrNoRewardsToClaim = errors.New("incentives: nothing to claim")

	errNilState  = errors.New("incentives: state not configured")
	errNilSupply = errors.New("incentives: supply source not configured")
)

// AssetIncentive configures and tracks reward emission for one collateral
// asset. Index is the cumulative reward per scaled collateral unit.
type AssetIncentive struct {
	Asset             string      `json:"asset"`
	EmissionPerSecond decimal.Dec `json:"emission_per_second"`
	Index             decimal.Dec `json:"index"`
	LastUpdated       uint64      `json:"last_updated"`
}

// UserIncentive snapshots the asset index at the holder's last settlement and
// carries rewards accrued but not yet claimed.
type UserIncentive struct {
	IndexSnapshot decimal.Dec `json:"index_snapshot"`
	Unclaimed     decimal.Dec `json:"unclaimed"`
}

type engineState interface {
	GetIncentive(asset string) (*AssetIncentive, error)
	PutIncentive(incentive *AssetIncentive) error
	GetUserIncentive(addr types.Address, asset string) (*UserIncentive, error)
	PutUserIncentive(addr types.Address, asset string, incentive *UserIncentive) error
	UserIncentiveAssets(addr types.Address) ([]string, error)
	UserAssets(addr types.Address) ([]string, error)
	AppendEvent(evt *types.Event)
}

// SupplySource exposes the scaled collateral figures the distributor weighs
// emissions by. The money market engine implements it.
type SupplySource interface {
	TotalScaledSupply(asset string) (decimal.Dec, error)
	ScaledBalance(asset string, holder types.Address) (decimal.Dec, error)
}

// Engine distributes a fixed per-second reward emission across scaled
// collateral holders using a global per-asset index.
type Engine struct {
	state     engineState
	supply    SupplySource
	blockTime uint64
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

func (e *Engine) SetSupplySource(supply SupplySource) {
	if e == nil {
		return
	}
	e.supply = supply
}

// SetBlockTime records the deterministic timestamp used for emission accrual.
func (e *Engine) SetBlockTime(now uint64) {
	if e == nil {
		return
	}
	e.blockTime = now
}

// SetAssetIncentive configures the emission rate for an asset, settling the
// elapsed interval under the previous rate first so a retune never rewrites
// history.
func (e *Engine) SetAssetIncentive(asset string, emissionPerSecond decimal.Dec) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.supply == nil {
		return errNilSupply
	}
	incentive, err := e.loadIncentive(asset)
	if err != nil {
		return err
	}
	if err := e.updateIndex(incentive, e.blockTime); err != nil {
		return err
	}
	incentive.EmissionPerSecond = emissionPerSecond
	if err := e.state.PutIncentive(incentive); err != nil {
		return err
	}
	e.emit(eventIncentiveSet, map[string]string{
		"asset":               incentive.Asset,
		"emission_per_second": emissionPerSecond.String(),
	})
	return nil
}

// BeforeBalanceChange settles the holder's accrued rewards against their
// current scaled balance. The money market engine calls it synchronously
// before every mint, burn or transfer touching that balance.
func (e *Engine) BeforeBalanceChange(asset string, holder types.Address, now uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.supply == nil {
		return errNilSupply
	}
	incentive, err := e.state.GetIncentive(asset)
	if err != nil {
		return err
	}
	if incentive == nil {
		return nil
	}
	if err := e.updateIndex(incentive, now); err != nil {
		return err
	}
	if err := e.state.PutIncentive(incentive); err != nil {
		return err
	}
	return e.settleUser(incentive, holder)
}

// Claimable reports the holder's total pending rewards across all assets,
// projected to the current block time without mutating state.
func (e *Engine) Claimable(holder types.Address) (decimal.Dec, error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, errNilState
	}
	if e.supply == nil {
		return decimal.Dec{}, errNilSupply
	}
	assets, err := e.holderAssets(holder)
	if err != nil {
		return decimal.Dec{}, err
	}
	total := decimal.Zero()
	for _, asset := range assets {
		incentive, err := e.state.GetIncentive(asset)
		if err != nil {
			return decimal.Dec{}, err
		}
		if incentive == nil {
			continue
		}
		if err := e.updateIndex(incentive, e.blockTime); err != nil {
			return decimal.Dec{}, err
		}
		user, err := e.loadUserIncentive(holder, asset)
		if err != nil {
			return decimal.Dec{}, err
		}
		accrued, err := e.accruedSince(incentive, holder, user)
		if err != nil {
			return decimal.Dec{}, err
		}
		pending, err := user.Unclaimed.Add(accrued)
		if err != nil {
			return decimal.Dec{}, err
		}
		if total, err = total.Add(pending); err != nil {
			return decimal.Dec{}, err
		}
	}
	return total, nil
}

// ClaimRewards settles every asset the holder has touched, zeroes the
// unclaimed balances and returns the total owed. Claiming with nothing
// pending fails rather than minting a zero payout.
func (e *Engine) ClaimRewards(holder types.Address) (decimal.Dec, error) {
	if e == nil || e.state == nil {
		return decimal.Dec{}, errNilState
	}
	if e.supply == nil {
		return decimal.Dec{}, errNilSupply
	}
	assets, err := e.holderAssets(holder)
	if err != nil {
		return decimal.Dec{}, err
	}
	total := decimal.Zero()
	for _, asset := range assets {
		if err := e.BeforeBalanceChange(asset, holder, e.blockTime); err != nil {
			return decimal.Dec{}, err
		}
		user, err := e.state.GetUserIncentive(holder, asset)
		if err != nil {
			return decimal.Dec{}, err
		}
		if user == nil || user.Unclaimed.IsZero() {
			continue
		}
		if total, err = total.Add(user.Unclaimed); err != nil {
			return decimal.Dec{}, err
		}
		user.Unclaimed = decimal.Zero()
		if err := e.state.PutUserIncentive(holder, asset, user); err != nil {
			return decimal.Dec{}, err
		}
	}
	if total.IsZero() {
		return decimal.Dec{}, ErrNoRewardsToClaim
	}
	e.emit(eventRewardsClaimed, map[string]string{
		"holder": holder.Hex(),
		"amount": total.String(),
	})
	return total, nil
}

func (e *Engine) loadIncentive(asset string) (*AssetIncentive, error) {
	incentive, err := e.state.GetIncentive(asset)
	if err != nil {
		return nil, err
	}
	if incentive == nil {
		incentive = &AssetIncentive{Asset: asset, LastUpdated: e.blockTime}
	}
	return incentive, nil
}

// holderAssets returns every market that can carry rewards for the holder:
// the assets with a settlement record plus the markets the holder has
// touched. The second set covers a balance deposited before the incentive was
// configured, which has no record until its first settlement.
func (e *Engine) holderAssets(holder types.Address) ([]string, error) {
	recorded, err := e.state.UserIncentiveAssets(holder)
	if err != nil {
		return nil, err
	}
	touched, err := e.state.UserAssets(holder)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(recorded))
	assets := make([]string, 0, len(recorded)+len(touched))
	for _, asset := range recorded {
		seen[asset] = struct{}{}
		assets = append(assets, asset)
	}
	for _, asset := range touched {
		if _, ok := seen[asset]; ok {
			continue
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// loadUserIncentive defaults a missing record to a zero index snapshot. That
// is exact in both reachable cases: a holder whose balance predates the
// incentive accrues from the index's starting point, and any later balance
// change creates the record through the settlement hook before the mint.
func (e *Engine) loadUserIncentive(holder types.Address, asset string) (*UserIncentive, error) {
	user, err := e.state.GetUserIncentive(holder, asset)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &UserIncentive{}
	}
	return user, nil
}

// updateIndex advances the cumulative index by emission * elapsed / supply.
// With no scaled supply the elapsed emission is simply forfeited; the clock
// still advances so a later depositor never captures it retroactively.
func (e *Engine) updateIndex(incentive *AssetIncentive, now uint64) error {
	if now <= incentive.LastUpdated {
		return nil
	}
	elapsed := now - incentive.LastUpdated
	incentive.LastUpdated = now
	if incentive.EmissionPerSecond.IsZero() {
		return nil
	}
	supply, err := e.supply.TotalScaledSupply(incentive.Asset)
	if err != nil {
		return err
	}
	if supply.IsZero() {
		return nil
	}
	emitted, err := incentive.EmissionPerSecond.MulDown(decimal.NewFromUint64(elapsed))
	if err != nil {
		return err
	}
	delta, err := emitted.DivDown(supply)
	if err != nil {
		return err
	}
	next, err := incentive.Index.Add(delta)
	if err != nil {
		return err
	}
	incentive.Index = next
	return nil
}

func (e *Engine) settleUser(incentive *AssetIncentive, holder types.Address) error {
	user, err := e.loadUserIncentive(holder, incentive.Asset)
	if err != nil {
		return err
	}
	accrued, err := e.accruedSince(incentive, holder, user)
	if err != nil {
		return err
	}
	if user.Unclaimed, err = user.Unclaimed.Add(accrued); err != nil {
		return err
	}
	user.IndexSnapshot = incentive.Index
	return e.state.PutUserIncentive(holder, incentive.Asset, user)
}

func (e *Engine) accruedSince(incentive *AssetIncentive, holder types.Address, user *UserIncentive) (decimal.Dec, error) {
	if incentive.Index.LTE(user.IndexSnapshot) {
		return decimal.Zero(), nil
	}
	balance, err := e.supply.ScaledBalance(incentive.Asset, holder)
	if err != nil {
		return decimal.Dec{}, err
	}
	if balance.IsZero() {
		return decimal.Zero(), nil
	}
	delta, err := incentive.Index.Sub(user.IndexSnapshot)
	if err != nil {
		return decimal.Dec{}, err
	}
	return balance.MulDown(delta)
}
