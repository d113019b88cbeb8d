package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"trading-dashboard/internal/model"

	"github.com/gorilla/websocket"
)

// Channel names carried in every envelope.
const (
	ChannelAlerts     = "alerts"      // triggered history entries
	ChannelRules      = "rules"       // rule list changed
	prefixIndicators  = "indicators:" // + market:symbol, latest indicator values
	prefixTicks       = "ticks:"      // + market:symbol, live price
	recentAlertIDsCap = 1024
)

// IndicatorsChannel returns the channel for a symbol's indicator snapshots.
func IndicatorsChannel(key string) string { return prefixIndicators + key }

// TicksChannel returns the channel for a symbol's live prices.
func TicksChannel(key string) string { return prefixTicks + key }

// Hub manages dashboard WebSocket clients and fans out alert, indicator
// and tick events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Alert events are kept for reconnect replay.
	replay *ReplayBuffer

	// Recently pushed alert IDs, so relayed copies of local triggers are dropped.
	seenMu  sync.Mutex
	seen    map[string]struct{}
	seenLog []string

	onClients func(n int)

	Broadcaster *Broadcaster
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	h := &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(500),
		seen:    make(map[string]struct{}),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// OnClientCount installs a hook called whenever a client connects or leaves.
func (h *Hub) OnClientCount(fn func(n int)) {
	h.mu.Lock()
	h.onClients = fn
	h.mu.Unlock()
}

// HandleWSRequest registers an upgraded connection. Alert events with a
// sequence number above lastSeq are replayed first.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastSeq int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	hook := h.onClients
	h.mu.Unlock()

	if hook != nil {
		hook(count)
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	client.sendInitialState(lastSeq)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	hook := h.onClients
	close(c.send)
	h.mu.Unlock()

	if hook != nil {
		hook(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PushAlert broadcasts a triggered history entry. An entry already pushed
// is ignored; returns false in that case.
func (h *Hub) PushAlert(e model.AlertHistoryEntry) bool {
	if !h.markSeen(e.ID) {
		return false
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[gateway] marshal alert %s: %v", e.ID, err)
		return false
	}
	h.Broadcaster.Broadcast(ChannelAlerts, data)
	return true
}

// PushRules broadcasts the full rule list after a change.
func (h *Hub) PushRules(rules []model.AlertRule) {
	data, err := json.Marshal(rules)
	if err != nil {
		log.Printf("[gateway] marshal rules: %v", err)
		return
	}
	h.Broadcaster.Broadcast(ChannelRules, data)
}

// PushIndicators broadcasts the latest indicator values for a symbol.
func (h *Hub) PushIndicators(key string, latest map[string]float64, price float64, at time.Time) {
	data, err := json.Marshal(struct {
		Key        string             `json:"key"`
		Price      float64            `json:"price"`
		Indicators map[string]float64 `json:"indicators"`
		TS         time.Time          `json:"ts"`
	}{key, price, latest, at})
	if err != nil {
		log.Printf("[gateway] marshal indicators %s: %v", key, err)
		return
	}
	h.Broadcaster.Broadcast(IndicatorsChannel(key), data)
}

// PushTick broadcasts a live price.
func (h *Hub) PushTick(t model.Tick) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	h.Broadcaster.Broadcast(TicksChannel(t.Key()), data)
}

// GetLatestAll returns the last payload sent on every channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// Seq returns the last envelope sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

func (h *Hub) markSeen(id string) bool {
	if id == "" {
		return true
	}
	h.seenMu.Lock()
	defer h.seenMu.Unlock()

	if _, dup := h.seen[id]; dup {
		return false
	}
	h.seen[id] = struct{}{}
	h.seenLog = append(h.seenLog, id)
	if len(h.seenLog) > recentAlertIDsCap {
		delete(h.seen, h.seenLog[0])
		h.seenLog = h.seenLog[1:]
	}
	return true
}
