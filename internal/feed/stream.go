package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"trading-dashboard/internal/model"

	"github.com/fasthttp/websocket"
	"github.com/tidwall/gjson"
)

// DefaultStreamURL is the Binance.US WebSocket base.
const DefaultStreamURL = "wss://stream.binance.us:9443"

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// StreamConfig configures a mini-ticker stream.
type StreamConfig struct {
	URL     string   // base URL, DefaultStreamURL when empty
	Symbols []string // exchange symbols, normalized on start

	OnTick      func(model.Tick)
	OnConnected func(connected bool) // optional, for health reporting
	OnReconnect func()               // optional, for metrics
}

// Stream subscribes to <symbol>@miniTicker for every configured symbol and
// reconnects with exponential backoff until its context is cancelled.
type Stream struct {
	cfg    StreamConfig
	dialer *websocket.Dialer
	log    *slog.Logger
}

// NewStream creates a stream. It does not connect until Run.
func NewStream(cfg StreamConfig, log *slog.Logger) *Stream {
	if cfg.URL == "" {
		cfg.URL = DefaultStreamURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stream{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// URL returns the combined-stream URL for the configured symbols.
func (s *Stream) URL() string {
	names := make([]string, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		if n := NormalizeSymbol(sym); n != "" {
			names = append(names, strings.ToLower(n)+"@miniTicker")
		}
	}
	return fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(s.cfg.URL, "/"), strings.Join(names, "/"))
}

// Run blocks until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) {
	if len(s.cfg.Symbols) == 0 {
		s.log.Info("ticker stream disabled, no symbols")
		return
	}

	backoff := minBackoff
	for {
		started := time.Now()
		err := s.session(ctx)
		s.connected(false)
		if ctx.Err() != nil {
			return
		}
		// A session that stayed up a while resets the backoff.
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		s.log.Warn("ticker stream disconnected", "error", err, "retry_in", backoff)
		if s.cfg.OnReconnect != nil {
			s.cfg.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (s *Stream) session(ctx context.Context) error {
	url := s.URL()
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	s.log.Info("ticker stream connected", "symbols", len(s.cfg.Symbols))
	s.connected(true)

	// Unblock ReadMessage on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		tick, ok := ParseMiniTicker(msg)
		if !ok {
			continue
		}
		if s.cfg.OnTick != nil {
			s.cfg.OnTick(tick)
		}
	}
}

func (s *Stream) connected(v bool) {
	if s.cfg.OnConnected != nil {
		s.cfg.OnConnected(v)
	}
}

// ParseMiniTicker decodes a 24hrMiniTicker event, raw or wrapped in a
// combined-stream envelope {"stream":...,"data":{...}}.
func ParseMiniTicker(msg []byte) (model.Tick, bool) {
	ev := gjson.ParseBytes(msg)
	if data := ev.Get("data"); data.Exists() {
		ev = data
	}
	if ev.Get("e").Str != "24hrMiniTicker" {
		return model.Tick{}, false
	}

	price := number(ev.Get("c"))
	sym := ev.Get("s").Str
	if sym == "" || math.IsNaN(price) {
		return model.Tick{}, false
	}
	tick := model.Tick{
		Symbol:    sym,
		Market:    model.MarketCrypto,
		Price:     price,
		Volume24h: number(ev.Get("v")),
	}
	if ms := ev.Get("E").Int(); ms > 0 {
		tick.TS = time.UnixMilli(ms).UTC()
	}
	return tick, true
}
