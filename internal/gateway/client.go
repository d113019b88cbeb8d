package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single dashboard WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed "market:symbol" keys. Empty means everything.
	subMu sync.RWMutex
	subs  map[string]bool
}

// SubscribeMsg selects which symbols' indicator and tick channels a client receives.
// {"type":"SUBSCRIBE","symbols":["crypto:BTCUSDT"]}
type SubscribeMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// sendInitialState replays missed alert events and the last value of every
// other channel. Runs before the pumps start, so the queue cannot block.
func (c *Client) sendInitialState(lastSeq int64) {
	queued := 0
	enqueue := func(b []byte) {
		if queued < cap(c.send) {
			c.send <- b
			queued++
		}
	}

	for _, env := range c.hub.replay.Since(lastSeq) {
		enqueue(env)
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, entry := range c.hub.latest {
		if channel == ChannelAlerts || entry.Seq <= lastSeq {
			continue
		}
		buf := buildEnvelope(channel, entry.Data, entry.TS, entry.Seq)
		// Strip the closing brace to add the flag.
		buf = append(buf[:len(buf)-1], `,"initial":true}`...)
		enqueue(buf)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch strings.ToUpper(base.Type) {
		case "SUBSCRIBE":
			var sub SubscribeMsg
			if json.Unmarshal(msg, &sub) == nil {
				c.setSubs(sub.Symbols, true)
			}
		case "UNSUBSCRIBE":
			var sub SubscribeMsg
			if json.Unmarshal(msg, &sub) == nil {
				c.setSubs(sub.Symbols, false)
			}
		default:
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.trySend(pong)
			}
		}
	}
}

// trySend queues msg unless the client is gone or its queue is full.
func (c *Client) trySend(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) setSubs(keys []string, on bool) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, k := range keys {
		if on {
			c.subs[k] = true
		} else {
			delete(c.subs, k)
		}
	}
}

// matchesChannel reports whether the client wants messages on channel.
// Alert and rule channels always match.
func (c *Client) matchesChannel(channel string) bool {
	var key string
	switch {
	case strings.HasPrefix(channel, prefixIndicators):
		key = channel[len(prefixIndicators):]
	case strings.HasPrefix(channel, prefixTicks):
		key = channel[len(prefixTicks):]
	default:
		return true
	}

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs) == 0 || c.subs[key]
}
