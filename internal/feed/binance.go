package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"trading-dashboard/internal/model"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

const (
	// DefaultRESTURL is the Binance.US v3 REST base.
	DefaultRESTURL = "https://api.binance.us/api/v3"

	// MaxKlineLimit is the most bars one klines request may return.
	MaxKlineLimit = 1000

	defaultTimeout = 15 * time.Second
)

// ErrBadResponse is returned when the exchange answers with an unexpected body.
var ErrBadResponse = errors.New("feed: unexpected response")

// Client talks to the exchange REST API.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

// NewClient creates a REST client. An empty baseURL means DefaultRESTURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http: &fasthttp.Client{
			Name:                "trading-dashboard",
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
	}
}

// FetchBars returns up to limit of the most recent bars for symbol at the
// given bar size in minutes, oldest first.
func (c *Client) FetchBars(ctx context.Context, symbol string, intervalMinutes, limit int) ([]model.PriceBar, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("feed: empty symbol")
	}
	if limit <= 0 || limit > MaxKlineLimit {
		limit = MaxKlineLimit
	}

	body, err := c.get(ctx, "/klines", map[string]string{
		"symbol":   sym,
		"interval": IntervalFor(intervalMinutes),
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", sym, err)
	}
	return ParseKlines(body)
}

// FetchSymbols lists every instrument on the exchange.
func (c *Client) FetchSymbols(ctx context.Context) ([]model.Symbol, error) {
	body, err := c.get(ctx, "/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}
	return ParseExchangeInfo(body)
}

func (c *Client) get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	args := req.URI().QueryArgs()
	for k, v := range query {
		args.Set(k, v)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	body := resp.Body()
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		msg := gjson.GetBytes(body, "msg").Str
		return nil, fmt.Errorf("%w: status %d %s", ErrBadResponse, code, msg)
	}
	// Body is released with resp.
	return append([]byte(nil), body...), nil
}

// ParseKlines decodes a klines array: [[openTimeMs, "o", "h", "l", "c", "v", ...], ...].
// Rows with fewer than six fields are skipped. Fields that are not numbers
// become NaN so the calculator drops the bar.
func ParseKlines(body []byte) ([]model.PriceBar, error) {
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: klines is not an array", ErrBadResponse)
	}

	rows := res.Array()
	bars := make([]model.PriceBar, 0, len(rows))
	for _, v := range rows {
		row := v.Array()
		if len(row) < 6 {
			slog.Warn("incomplete kline row", "row", v.Raw)
			continue
		}
		bars = append(bars, model.PriceBar{
			Time:   row[0].Int() / 1000,
			Open:   number(row[1]),
			High:   number(row[2]),
			Low:    number(row[3]),
			Close:  number(row[4]),
			Volume: number(row[5]),
		})
	}
	return bars, nil
}

// ParseExchangeInfo decodes the symbols list of an exchangeInfo body.
func ParseExchangeInfo(body []byte) ([]model.Symbol, error) {
	list := gjson.GetBytes(body, "symbols")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: exchangeInfo has no symbols", ErrBadResponse)
	}

	out := make([]model.Symbol, 0, len(list.Array()))
	list.ForEach(func(_, s gjson.Result) bool {
		sym := s.Get("symbol").Str
		if sym == "" {
			return true
		}
		out = append(out, model.Symbol{
			Symbol: sym,
			Base:   s.Get("baseAsset").Str,
			Quote:  s.Get("quoteAsset").Str,
			Market: model.MarketCrypto,
			Status: s.Get("status").Str,
		})
		return true
	})
	return out, nil
}

// number reads a JSON number or numeric string; anything else is NaN.
func number(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Num
	case gjson.String:
		f, err := strconv.ParseFloat(r.Str, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}
