package oracle

import (
	"errors"
	"strings"

	"redbank/native/decimal"
)

// ErrPriceUnavailable indicates that no usable quote exists for the asset.
// Consumers must treat this as fatal for the current operation; the engine
// never retries or substitutes a default.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// Source resolves the USD-denominated unit price for an asset identifier.
type Source interface {
	Price(asset string) (decimal.Dec, error)
}

// Quote captures a posted price together with the block time it was observed
// at. Staleness is judged against block time, never the wall clock.
type Quote struct {
	Price     decimal.Dec
	UpdatedAt uint64
}

// Manual is a price source fed by an external attester. Quotes older than the
// configured maximum age are treated as missing.
type Manual struct {
	quotes    map[string]Quote
	maxAge    uint64
	blockTime uint64
}

// NewManual constructs a manual price source. A maxAge of zero disables the
// staleness check.
func NewManual(maxAge uint64) *Manual {
	return &Manual{
		quotes: make(map[string]Quote),
		maxAge: maxAge,
	}
}

// SetBlockTime records the deterministic timestamp used for staleness checks.
func (m *Manual) SetBlockTime(now uint64) {
	if m == nil {
		return
	}
	m.blockTime = now
}

// Post records a quote for the asset at the current block time.
func (m *Manual) Post(asset string, price decimal.Dec) {
	if m == nil {
		return
	}
	key := strings.TrimSpace(asset)
	if key == "" {
		return
	}
	m.quotes[key] = Quote{Price: price, UpdatedAt: m.blockTime}
}

// Drop removes any quote for the asset. Subsequent lookups fail with
// ErrPriceUnavailable until a fresh quote is posted.
func (m *Manual) Drop(asset string) {
	if m == nil {
		return
	}
	delete(m.quotes, strings.TrimSpace(asset))
}

// Price implements Source.
func (m *Manual) Price(asset string) (decimal.Dec, error) {
	if m == nil {
		return decimal.Dec{}, ErrPriceUnavailable
	}
	quote, ok := m.quotes[strings.TrimSpace(asset)]
	if !ok {
		return decimal.Dec{}, ErrPriceUnavailable
	}
	if m.maxAge > 0 && m.blockTime > quote.UpdatedAt+m.maxAge {
		return decimal.Dec{}, ErrPriceUnavailable
	}
	return quote.Price, nil
}
