package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"trading-dashboard/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Key layout.
const (
	keyRules        = "alerts:rules"       // hash: id -> rule JSON
	keyHistory      = "alerts:history"     // hash: id -> entry JSON
	keyHistoryIndex = "alerts:history:idx" // zset: id scored by triggeredAt (unix ms)

	// ChannelTriggered carries every triggered history entry as JSON.
	ChannelTriggered = "pub:alerts:triggered"
)

// Config configures the Redis alert store.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures   int           // consecutive failures before the breaker opens (default 5)
	ResetTimeout  time.Duration // breaker open period (default 10s)
	MaxBufferSize int           // writes held while the breaker is open (default 10000)
}

// Store persists alert rules and history in Redis hashes and publishes
// triggers on a Pub/Sub channel. Writes go through a circuit breaker and
// are buffered while it is open. It implements model.AlertStore and
// model.AlertPublisher.
type Store struct {
	client *goredis.Client
	cb     *CircuitBreaker
	buf    *writeBuffer
}

var (
	_ model.AlertStore     = (*Store)(nil)
	_ model.AlertPublisher = (*Store)(nil)
)

// New connects to Redis and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config) *Store {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	s := &Store{
		client: client,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
	}
	s.buf = newWriteBuffer(s, cfg.MaxBufferSize)
	return s
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Breaker exposes the circuit breaker so callers can attach metrics.
// A caller replacing OnStateChange must call the previous hook, and must do
// so before the store is used concurrently.
func (s *Store) Breaker() *CircuitBreaker { return s.cb }

// PendingWrites returns how many writes are buffered behind an open breaker.
func (s *Store) PendingWrites() int { return s.buf.pendingCount() }

// SaveRule inserts or replaces a rule by ID.
func (s *Store) SaveRule(ctx context.Context, r model.AlertRule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}
	return s.write(ctx, pendingWrite{Op: opSaveRule, ID: r.ID, Data: data})
}

// DeleteRule removes a rule. Its history is kept.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	return s.write(ctx, pendingWrite{Op: opDeleteRule, ID: id})
}

// AppendHistory records a trigger entry and indexes it by time.
func (s *Store) AppendHistory(ctx context.Context, e model.AlertHistoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return s.write(ctx, pendingWrite{Op: opAppendHistory, ID: e.ID, Score: float64(e.TriggeredAt.UnixMilli()), Data: data})
}

// AcknowledgeHistory sets the acknowledged flag on an entry.
func (s *Store) AcknowledgeHistory(ctx context.Context, id string) error {
	return s.write(ctx, pendingWrite{Op: opAckHistory, ID: id})
}

// PublishTrigger publishes a triggered entry on ChannelTriggered.
// Publishes are not buffered: a missed live event is not replayed.
func (s *Store) PublishTrigger(ctx context.Context, e model.AlertHistoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	return s.cb.Execute(func() error {
		return s.client.Publish(ctx, ChannelTriggered, data).Err()
	})
}

// write applies a mutation through the breaker, buffering it while open.
func (s *Store) write(ctx context.Context, pw pendingWrite) error {
	err := s.cb.Execute(func() error { return s.apply(ctx, pw) })
	if err == ErrCircuitOpen {
		s.buf.add(pw)
		return nil
	}
	return err
}

func (s *Store) apply(ctx context.Context, pw pendingWrite) error {
	switch pw.Op {
	case opSaveRule:
		return s.client.HSet(ctx, keyRules, pw.ID, pw.Data).Err()

	case opDeleteRule:
		return s.client.HDel(ctx, keyRules, pw.ID).Err()

	case opAppendHistory:
		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, keyHistory, pw.ID, pw.Data)
		pipe.ZAdd(ctx, keyHistoryIndex, &goredis.Z{Score: pw.Score, Member: pw.ID})
		_, err := pipe.Exec(ctx)
		return err

	case opAckHistory:
		raw, err := s.client.HGet(ctx, keyHistory, pw.ID).Bytes()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		var e model.AlertHistoryEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode history %s: %w", pw.ID, err)
		}
		e.Acknowledged = true
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return s.client.HSet(ctx, keyHistory, pw.ID, data).Err()
	}
	return fmt.Errorf("redis: unknown write op %q", pw.Op)
}

// Close closes the client. Writes still buffered are dropped.
func (s *Store) Close() error {
	if n := s.buf.pendingCount(); n > 0 {
		log.Printf("[redis] closing with %d buffered writes unflushed", n)
	}
	return s.client.Close()
}
