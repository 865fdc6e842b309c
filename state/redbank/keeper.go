package redbankstate

import (
	"encoding/json"
	"errors"
	"fmt"

	"redbank/core/types"
	"redbank/native/decimal"
	"redbank/native/incentives"
	"redbank/native/redbank"
	"redbank/storage"
)

const (
	marketPrefix          = "rb/market/"
	positionPrefix        = "rb/pos/"
	userAssetsPrefix      = "rb/userassets/"
	balancePrefix         = "ma/bal/"
	incentivePrefix       = "inc/asset/"
	userIncentivePrefix   = "inc/user/"
	incentiveAssetsPrefix = "inc/userassets/"
)

// Keeper persists every money market structure as JSON under prefixed keys in
// a key-value store. It backs the engine, ledger and incentive state
// interfaces simultaneously so one overlay covers a whole message.
type Keeper struct {
	db     storage.Database
	events []*types.Event
}

func NewKeeper(db storage.Database) *Keeper {
	return &Keeper{db: db}
}

func marketKey(asset string) []byte {
	return []byte(marketPrefix + asset)
}

func positionKey(addr types.Address, asset string) []byte {
	return []byte(positionPrefix + addr.Hex() + "/" + asset)
}

func userAssetsKey(addr types.Address) []byte {
	return []byte(userAssetsPrefix + addr.Hex())
}

func balanceKey(asset string, holder types.Address) []byte {
	return []byte(balancePrefix + asset + "/" + holder.Hex())
}

func incentiveKey(asset string) []byte {
	return []byte(incentivePrefix + asset)
}

func userIncentiveKey(addr types.Address, asset string) []byte {
	return []byte(userIncentivePrefix + addr.Hex() + "/" + asset)
}

func incentiveAssetsKey(addr types.Address) []byte {
	return []byte(incentiveAssetsPrefix + addr.Hex())
}

func (k *Keeper) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := k.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (k *Keeper) putJSON(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return k.db.Put(key, raw)
}

// GetMarket returns nil without error when the market does not exist,
// matching the engine's load contract.
func (k *Keeper) GetMarket(asset string) (*redbank.Market, error) {
	var market redbank.Market
	ok, err := k.getJSON(marketKey(asset), &market)
	if err != nil || !ok {
		return nil, err
	}
	return &market, nil
}

func (k *Keeper) PutMarket(market *redbank.Market) error {
	if market == nil {
		return nil
	}
	return k.putJSON(marketKey(market.Asset), market)
}

// Markets lists every stored market in asset order.
func (k *Keeper) Markets() ([]*redbank.Market, error) {
	var markets []*redbank.Market
	var decodeErr error
	err := k.db.IteratePrefix([]byte(marketPrefix), func(key, value []byte) bool {
		var market redbank.Market
		if err := json.Unmarshal(value, &market); err != nil {
			decodeErr = fmt.Errorf("decode %s: %w", key, err)
			return false
		}
		markets = append(markets, &market)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return markets, nil
}

func (k *Keeper) GetPosition(addr types.Address, asset string) (*redbank.Position, error) {
	var position redbank.Position
	ok, err := k.getJSON(positionKey(addr, asset), &position)
	if err != nil || !ok {
		return nil, err
	}
	return &position, nil
}

func (k *Keeper) PutPosition(addr types.Address, asset string, position *redbank.Position) error {
	if position == nil {
		return nil
	}
	if err := k.putJSON(positionKey(addr, asset), position); err != nil {
		return err
	}
	return k.appendToIndex(userAssetsKey(addr), asset)
}

func (k *Keeper) UserAssets(addr types.Address) ([]string, error) {
	var assets []string
	if _, err := k.getJSON(userAssetsKey(addr), &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (k *Keeper) GetBalance(asset string, holder types.Address) (decimal.Dec, error) {
	var balance decimal.Dec
	if _, err := k.getJSON(balanceKey(asset, holder), &balance); err != nil {
		return decimal.Dec{}, err
	}
	return balance, nil
}

func (k *Keeper) PutBalance(asset string, holder types.Address, balance decimal.Dec) error {
	return k.putJSON(balanceKey(asset, holder), balance)
}

func (k *Keeper) GetIncentive(asset string) (*incentives.AssetIncentive, error) {
	var incentive incentives.AssetIncentive
	ok, err := k.getJSON(incentiveKey(asset), &incentive)
	if err != nil || !ok {
		return nil, err
	}
	return &incentive, nil
}

func (k *Keeper) PutIncentive(incentive *incentives.AssetIncentive) error {
	if incentive == nil {
		return nil
	}
	return k.putJSON(incentiveKey(incentive.Asset), incentive)
}

func (k *Keeper) GetUserIncentive(addr types.Address, asset string) (*incentives.UserIncentive, error) {
	var user incentives.UserIncentive
	ok, err := k.getJSON(userIncentiveKey(addr, asset), &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

func (k *Keeper) PutUserIncentive(addr types.Address, asset string, user *incentives.UserIncentive) error {
	if user == nil {
		return nil
	}
	if err := k.putJSON(userIncentiveKey(addr, asset), user); err != nil {
		return err
	}
	return k.appendToIndex(incentiveAssetsKey(addr), asset)
}

func (k *Keeper) UserIncentiveAssets(addr types.Address) ([]string, error) {
	var assets []string
	if _, err := k.getJSON(incentiveAssetsKey(addr), &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// AppendEvent buffers an emitted event for the current message.
func (k *Keeper) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	k.events = append(k.events, evt)
}

// Events returns the buffered events without clearing them.
func (k *Keeper) Events() []*types.Event {
	return k.events
}

// DrainEvents returns and clears the buffered events.
func (k *Keeper) DrainEvents() []*types.Event {
	events := k.events
	k.events = nil
	return events
}

func (k *Keeper) appendToIndex(key []byte, asset string) error {
	var assets []string
	if _, err := k.getJSON(key, &assets); err != nil {
		return err
	}
	for _, existing := range assets {
		if existing == asset {
			return nil
		}
	}
	assets = append(assets, asset)
	return k.putJSON(key, assets)
}
