// Package idempotency remembers checkout requests by client-supplied key so a
// retried checkout returns the orders it already created.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyPrefix = "idempotency:checkout:"
	TTL       = 24 * time.Hour
)

var ErrInProgress = errors.New("idempotency key is already being processed")

const (
	statusProcessing = "processing"
	statusSuccess    = "success"
)

type state struct {
	Status   string   `json:"status"`
	OrderIDs []string `json:"order_ids,omitempty"`
}

type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewStore(client redis.Cmdable) *Store {
	return &Store{client: client, ttl: TTL}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func (s *Store) key(k string) string {
	return KeyPrefix + k
}

// Reserve claims the key for a new checkout. It returns the order IDs of an
// earlier successful checkout under the same key, nil when the caller now owns
// the key, or ErrInProgress while another request holds it.
func (s *Store) Reserve(ctx context.Context, key string) ([]string, error) {
	k := s.key(key)

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		data, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			raw, _ := json.Marshal(state{Status: statusProcessing})
			_, err := s.client.SetArgs(ctx, k, raw, redis.SetArgs{Mode: "NX", TTL: s.ttl}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("redis set: %w", err)
			}
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis get: %w", err)
		}

		var st state
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("redis unmarshal: %w", err)
		}

		switch st.Status {
		case statusSuccess:
			return st.OrderIDs, nil
		case statusProcessing:
			return nil, ErrInProgress
		default:
			raw, _ := json.Marshal(state{Status: statusProcessing})
			if err := s.client.Set(ctx, k, raw, s.ttl).Err(); err != nil {
				return nil, fmt.Errorf("redis set: %w", err)
			}
			return nil, nil
		}
	}
}

func (s *Store) MarkSuccess(ctx context.Context, key string, orderIDs []string) error {
	raw, err := json.Marshal(state{Status: statusSuccess, OrderIDs: orderIDs})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), raw, s.ttl).Err()
}

// MarkFailure releases the key so the client can retry.
func (s *Store) MarkFailure(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
