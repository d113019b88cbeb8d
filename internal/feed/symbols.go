// Package feed fetches price bars and symbol listings from the Binance REST
// API and streams live mini-ticker prices over its WebSocket API.
package feed

import "strings"

var symbolAliases = map[string]string{
	"XBTUSD":  "BTCUSDT",
	"XBTUSDT": "BTCUSDT",
}

// NormalizeSymbol converts "eth/usd", "BTC-USD" or "XBTUSD" style names to
// the exchange form ("ETHUSDT", "BTCUSDT"). USD quotes map to USDT.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
	if s == "" {
		return ""
	}
	if alias, ok := symbolAliases[s]; ok {
		return alias
	}
	if strings.HasSuffix(s, "USD") && !strings.HasSuffix(s, "BUSD") && !strings.HasSuffix(s, "TUSD") {
		return s + "T"
	}
	return s
}

var intervalSteps = []struct {
	maxMinutes int
	name       string
}{
	{1, "1m"}, {3, "3m"}, {5, "5m"}, {15, "15m"}, {30, "30m"},
	{60, "1h"}, {120, "2h"}, {240, "4h"}, {360, "6h"}, {480, "8h"}, {720, "12h"},
	{1440, "1d"}, {4320, "3d"}, {10080, "1w"},
}

// IntervalFor maps a bar size in minutes to the smallest kline interval
// that covers it.
func IntervalFor(minutes int) string {
	for _, st := range intervalSteps {
		if minutes <= st.maxMinutes {
			return st.name
		}
	}
	return "1M"
}
