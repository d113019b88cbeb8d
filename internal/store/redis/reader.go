package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"trading-dashboard/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// LoadRules returns all stored rules ordered by creation time.
func (s *Store) LoadRules(ctx context.Context) ([]model.AlertRule, error) {
	var raw map[string]string
	err := s.cb.Execute(func() error {
		var err error
		raw, err = s.client.HGetAll(ctx, keyRules).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis load rules: %w", err)
	}

	rules := make([]model.AlertRule, 0, len(raw))
	for id, v := range raw {
		var r model.AlertRule
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			log.Printf("[redis] skipping undecodable rule %s: %v", id, err)
			continue
		}
		rules = append(rules, r)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

// LoadHistory returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) LoadHistory(ctx context.Context, limit int) ([]model.AlertHistoryEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	var vals []interface{}
	err := s.cb.Execute(func() error {
		ids, err := s.client.ZRevRange(ctx, keyHistoryIndex, 0, stop).Result()
		if err != nil || len(ids) == 0 {
			return err
		}
		vals, err = s.client.HMGet(ctx, keyHistory, ids...).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis load history: %w", err)
	}

	out := make([]model.AlertHistoryEntry, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // index entry without a body
		}
		var e model.AlertHistoryEntry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			log.Printf("[redis] skipping undecodable history entry: %v", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SubscribeTriggers delivers entries published on ChannelTriggered until ctx
// is cancelled. The returned channel is closed when the subscription ends.
func (s *Store) SubscribeTriggers(ctx context.Context) (<-chan model.AlertHistoryEntry, error) {
	pubsub := s.client.Subscribe(ctx, ChannelTriggered)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", ChannelTriggered, err)
	}

	out := make(chan model.AlertHistoryEntry, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				e, err := decodeTrigger(msg)
				if err != nil {
					log.Printf("[redis] bad trigger message: %v", err)
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeTrigger(msg *goredis.Message) (model.AlertHistoryEntry, error) {
	var e model.AlertHistoryEntry
	err := json.Unmarshal([]byte(msg.Payload), &e)
	return e, err
}
