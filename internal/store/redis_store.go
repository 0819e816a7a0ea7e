package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStatusStore keeps client online-status records in redis.
type RedisStatusStore struct {
	client *goredis.Client
	prefix string
}

func NewRedisStatusStore(client *goredis.Client) *RedisStatusStore {
	return &RedisStatusStore{
		client: client,
		prefix: "client:",
	}
}

func (r *RedisStatusStore) key(clientID string) string {
	return r.prefix + clientID
}

func (r *RedisStatusStore) MarkOnline(ctx context.Context, status ClientStatus) error {
	if status.ClientID == "" {
		return fmt.Errorf("store: missing client_id")
	}

	status.Online = true
	status.LastSeen = time.Now()

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("store: failed to marshal: %w", err)
	}

	return r.client.Set(ctx, r.key(status.ClientID), data, 0).Err()
}

func (r *RedisStatusStore) MarkOffline(ctx context.Context, clientID string) error {
	if clientID == "" {
		return fmt.Errorf("store: missing client_id")
	}

	val, err := r.client.Get(ctx, r.key(clientID)).Result()
	if err == goredis.Nil {
		// never seen online; record the offline fact anyway
		val = ""
	} else if err != nil {
		return err
	}

	var status ClientStatus
	if val != "" {
		if err := json.Unmarshal([]byte(val), &status); err != nil {
			return fmt.Errorf("store: failed to unmarshal: %w", err)
		}
	}

	status.ClientID = clientID
	status.Online = false
	status.LastSeen = time.Now()

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("store: failed to marshal: %w", err)
	}

	return r.client.Set(ctx, r.key(clientID), data, 0).Err()
}

func (r *RedisStatusStore) IsOnline(ctx context.Context, clientID string) (bool, error) {
	val, err := r.client.Get(ctx, r.key(clientID)).Result()
	if err == goredis.Nil {
		return false, nil // not found
	}
	if err != nil {
		return false, err
	}

	var status ClientStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return false, fmt.Errorf("store: failed to unmarshal: %w", err)
	}

	return status.Online, nil
}
