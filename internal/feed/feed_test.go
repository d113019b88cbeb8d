package feed

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"eth/usd":  "ETHUSDT",
		"BTC-USD":  "BTCUSDT",
		"XBTUSD":   "BTCUSDT",
		"solusdt":  "SOLUSDT",
		"ETH_BTC":  "ETHBTC",
		"  ":       "",
		"BTCUSDT":  "BTCUSDT",
		"LINK/USD": "LINKUSDT",
	}
	for in, want := range tests {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIntervalFor(t *testing.T) {
	tests := map[int]string{0: "1m", 1: "1m", 4: "5m", 60: "1h", 61: "2h", 1440: "1d", 10080: "1w", 50000: "1M"}
	for in, want := range tests {
		if got := IntervalFor(in); got != want {
			t.Errorf("IntervalFor(%d) = %q, want %q", in, got, want)
		}
	}
}

const klinesBody = `[
	[1714564800000, "100.0", "101.5", "99.5", "101.0", "12.5", 1714565099999, "0", 10, "0", "0", "0"],
	[1714565100000, "101.0", "102.0", "100.5", "bad", "3"],
	[1714565400000, "101"]
]`

func TestParseKlines(t *testing.T) {
	bars, err := ParseKlines([]byte(klinesBody))
	if err != nil {
		t.Fatalf("ParseKlines: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars (short row skipped), got %d", len(bars))
	}
	b := bars[0]
	if b.Time != 1714564800 || b.Open != 100 || b.High != 101.5 || b.Low != 99.5 || b.Close != 101 || b.Volume != 12.5 {
		t.Errorf("bar 0 = %+v", b)
	}
	if !math.IsNaN(bars[1].Close) || bars[1].Valid() {
		t.Errorf("non-numeric close should be NaN and invalid, got %+v", bars[1])
	}

	if _, err := ParseKlines([]byte(`{"code":-1121,"msg":"Invalid symbol."}`)); err == nil {
		t.Error("expected an error for a non-array body")
	}
}

func TestParseExchangeInfo(t *testing.T) {
	body := `{"timezone":"UTC","symbols":[
		{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
		{"symbol":"","status":"BREAK"},
		{"symbol":"ETHBTC","status":"BREAK","baseAsset":"ETH","quoteAsset":"BTC"}
	]}`
	syms, err := ParseExchangeInfo([]byte(body))
	if err != nil {
		t.Fatalf("ParseExchangeInfo: %v", err)
	}
	if len(syms) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(syms))
	}
	if syms[0].Symbol != "BTCUSDT" || syms[0].Base != "BTC" || syms[0].Quote != "USDT" || syms[0].Market != "crypto" || syms[0].Status != "TRADING" {
		t.Errorf("symbol 0 = %+v", syms[0])
	}
}

func TestParseMiniTicker(t *testing.T) {
	combined := `{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1714564800123,"s":"BTCUSDT","c":"64000.50","o":"63000","h":"65000","l":"62000","v":"1234.5","q":"0"}}`
	tick, ok := ParseMiniTicker([]byte(combined))
	if !ok {
		t.Fatal("expected a tick")
	}
	if tick.Symbol != "BTCUSDT" || tick.Price != 64000.5 || tick.Volume24h != 1234.5 || tick.Market != "crypto" {
		t.Errorf("tick = %+v", tick)
	}
	if !tick.TS.Equal(time.UnixMilli(1714564800123)) {
		t.Errorf("ts = %v", tick.TS)
	}

	raw := `{"e":"24hrMiniTicker","E":1,"s":"ETHUSDT","c":"3000"}`
	if tick, ok := ParseMiniTicker([]byte(raw)); !ok || tick.Symbol != "ETHUSDT" {
		t.Errorf("raw event: %+v ok=%v", tick, ok)
	}

	for _, bad := range []string{
		`{"result":null,"id":1}`,
		`{"e":"24hrMiniTicker","s":"BTCUSDT","c":"n/a"}`,
		`{"e":"trade","s":"BTCUSDT","p":"1"}`,
	} {
		if _, ok := ParseMiniTicker([]byte(bad)); ok {
			t.Errorf("expected %s to be ignored", bad)
		}
	}
}

func TestStream_URL(t *testing.T) {
	s := NewStream(StreamConfig{URL: "wss://example.test/", Symbols: []string{"BTC/USD", "ethusdt", ""}}, nil)
	want := "wss://example.test/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker"
	if got := s.URL(); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestClient_FetchBars(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/klines" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotQuery = map[string]string{"symbol": q.Get("symbol"), "interval": q.Get("interval"), "limit": q.Get("limit")}
		w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	bars, err := c.FetchBars(context.Background(), "btc/usd", 5, 5000)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if gotQuery["symbol"] != "BTCUSDT" || gotQuery["interval"] != "5m" || gotQuery["limit"] != "1000" {
		t.Errorf("query = %v", gotQuery)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).FetchBars(context.Background(), "NOPE", 1, 10)
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
}

func TestClient_FetchSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"}]}`))
	}))
	defer srv.Close()

	syms, err := NewClient(srv.URL, time.Second).FetchSymbols(context.Background())
	if err != nil || len(syms) != 1 {
		t.Fatalf("FetchSymbols = %v, %v", syms, err)
	}
}
