package model

import "strings"

// Market names used across rules, snapshots and feeds.
const (
	MarketCrypto = "crypto"
	MarketStocks = "stocks"
)

// Symbol is a tradeable instrument as listed by a data provider.
type Symbol struct {
	Symbol string `json:"symbol"` // e.g. "BTCUSDT"
	Base   string `json:"base"`   // e.g. "BTC"
	Quote  string `json:"quote"`  // e.g. "USDT"
	Market string `json:"market"` // "crypto" or "stocks"
	Status string `json:"status"` // provider status, e.g. "TRADING"
}

// Key returns "market:symbol".
func (s *Symbol) Key() string {
	return Key(s.Market, s.Symbol)
}

// Matches reports whether the symbol matches a case-insensitive search query
// against the symbol, base and quote names. An empty query matches everything.
func (s *Symbol) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToUpper(query)
	return strings.Contains(s.Symbol, q) || strings.HasPrefix(s.Base, q) || s.Quote == q
}
