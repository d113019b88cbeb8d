package model

import "time"

// Tick is a live last-price update for a symbol, e.g. from a mini-ticker stream.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Market    string    `json:"market"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume24h"` // rolling 24h base volume, not a bar volume
	TS        time.Time `json:"ts"`
}

// Key returns "market:symbol".
func (t *Tick) Key() string {
	return Key(t.Market, t.Symbol)
}

// Key builds the "market:symbol" key used by caches and per-symbol state.
func Key(market, symbol string) string {
	return market + ":" + symbol
}
