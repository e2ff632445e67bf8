// Package redisstore keeps night state in Redis as JSON documents.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"sleepstage-service/internal/nights"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "sleepstage:night:"

// Store implements nights.Store on top of Redis. Each night is one string key
// holding its JSON encoding; a set at <prefix>index lists known IDs.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ nights.Store = (*Store)(nil)

// New returns a Store using client. ttl <= 0 keeps nights forever.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, prefix: DefaultKeyPrefix, ttl: ttl}
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (s *Store) key(id nights.NightID) string {
	return s.prefix + string(id)
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// GetNight implements nights.Store.GetNight.
func (s *Store) GetNight(ctx context.Context, id nights.NightID) (*nights.Night, bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", id, err)
	}

	var n nights.Night
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, false, fmt.Errorf("decode night %s: %w", id, err)
	}
	return &n, true, nil
}

// SetNight implements nights.Store.SetNight.
func (s *Store) SetNight(ctx context.Context, n *nights.Night) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode night %s: %w", n.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(n.ID), data, s.ttl)
		pipe.SAdd(ctx, s.indexKey(), string(n.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", n.ID, err)
	}
	return nil
}

// ListNightIDs implements nights.Store.ListNightIDs. IDs whose document has
// expired are pruned from the index and not returned.
func (s *Store) ListNightIDs(ctx context.Context) ([]nights.NightID, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}

	ids := make([]nights.NightID, 0, len(members))
	for _, m := range members {
		exists, err := s.client.Exists(ctx, s.prefix+m).Result()
		if err != nil {
			return nil, fmt.Errorf("redis exists %s: %w", m, err)
		}
		if exists == 0 {
			if err := s.client.SRem(ctx, s.indexKey(), m).Err(); err != nil {
				return nil, fmt.Errorf("redis srem %s: %w", m, err)
			}
			continue
		}
		ids = append(ids, nights.NightID(m))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
