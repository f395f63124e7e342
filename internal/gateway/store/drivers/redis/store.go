package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
)

// DefaultKey is the hash holding the registry, one field per HWID with a
// JSON encoded entry as the value.
const DefaultKey = "hwidgate:registry"

// maxWatchRetries bounds optimistic transaction retries when another writer
// touches the hash between WATCH and EXEC.
const maxWatchRetries = 5

// Store keeps the registry in a Redis hash so several gateway instances can
// share it. Expiration is an optimistic WATCH/MULTI/EXEC transaction.
type Store struct {
	client *redis.Client
	key    string
}

var _ store.Registry = (*Store)(nil)

func NewStore(client *redis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// Open parses a redis:// or rediss:// URL and returns a Store using it.
func Open(url, key string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewStore(redis.NewClient(opts), key), nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (domain.Registry, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	// Redis deletes empty hashes, so no fields means the key is missing.
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: key %s does not exist", store.ErrUnavailable, s.key)
	}

	reg := make(domain.Registry, len(fields))
	for hwid, raw := range fields {
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", store.ErrCorrupt, hwid, err)
		}
		reg[hwid] = e
	}
	return reg, nil
}

func (s *Store) ExpireEntry(ctx context.Context, key string, observed domain.Entry) (bool, error) {
	for range maxWatchRetries {
		changed, err := s.expireOnce(ctx, key, observed)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return changed, err
	}
	return false, fmt.Errorf("%w: too many concurrent writers on %s", store.ErrWrite, s.key)
}

func (s *Store) expireOnce(ctx context.Context, key string, observed domain.Entry) (bool, error) {
	var changed bool

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, s.key, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}

		current, err := decodeEntry(raw)
		if err != nil {
			return fmt.Errorf("%w: field %s: %v", store.ErrCorrupt, key, err)
		}
		if !store.Expirable(current, observed) {
			return nil
		}

		data, err := store.MarkExpiredJSON([]byte(raw))
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrWrite, err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, s.key, key, data)
			return nil
		})
		if err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				return err
			}
			return fmt.Errorf("%w: %v", store.ErrWrite, err)
		}

		changed = true
		return nil
	}, s.key)

	return changed, err
}

// Import adds the entries of reg whose HWID is not yet stored and returns how
// many were inserted. Existing fields are never overwritten.
func (s *Store) Import(ctx context.Context, reg domain.Registry) (int, error) {
	cmds, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for hwid, e := range reg {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			p.HSetNX(ctx, s.key, hwid, data)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrWrite, err)
	}

	var inserted int
	for _, cmd := range cmds {
		if c, ok := cmd.(*redis.BoolCmd); ok && c.Val() {
			inserted++
		}
	}
	return inserted, nil
}

func decodeEntry(raw string) (domain.Entry, error) {
	var e domain.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return domain.Entry{}, err
	}
	return e, nil
}
