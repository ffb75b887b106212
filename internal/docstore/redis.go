package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisCollection stores each document as a JSON string under
// "<prefix>:<name>:doc:<key>" and tracks the keys of the collection in the set
// "<prefix>:<name>:index". Writes to a document are guarded by WATCH on that
// document's key only.
type redisCollection[T any] struct {
	rdb        *redis.Client
	name       string
	prefix     string
	maxRetries int
	keyOf      KeyFunc[T]
}

type redisConfig struct {
	prefix     string
	maxRetries int
}

// RedisOption configures a Redis-backed collection.
type RedisOption func(*redisConfig)

// WithKeyPrefix sets the namespace every Redis key of the collection lives under.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *redisConfig) { c.prefix = strings.Trim(prefix, ":") }
}

// WithMaxRetries bounds how often an optimistic write is retried when the
// watched document changed underneath it.
func WithMaxRetries(n int) RedisOption {
	return func(c *redisConfig) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// NewRedisCollection creates a Redis-backed collection.
func NewRedisCollection[T any](rdb *redis.Client, name string, keyOf KeyFunc[T], opts ...RedisOption) Collection[T] {
	cfg := redisConfig{prefix: "slackspot", maxRetries: 5}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &redisCollection[T]{
		rdb:        rdb,
		name:       name,
		prefix:     cfg.prefix + ":" + name,
		maxRetries: cfg.maxRetries,
		keyOf:      keyOf,
	}
}

func (c *redisCollection[T]) docKey(key string) string { return c.prefix + ":doc:" + key }
func (c *redisCollection[T]) indexKey() string { return c.prefix + ":index" }

func (c *redisCollection[T]) Get(ctx context.Context, key string) (*T, error) {
	raw, err := c.rdb.Get(ctx, c.docKey(key)).Bytes()
	if err != nil {
		return nil, c.wrap("get", key, err)
	}
	return c.decode(key, raw)
}

func (c *redisCollection[T]) Set(ctx context.Context, doc *T) error {
	key := c.keyOf(doc)
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("set %s/%s: encode: %w", c.name, key, err)
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.docKey(key), raw, 0)
		pipe.SAdd(ctx, c.indexKey(), key)
		return nil
	})
	if err != nil {
		return c.wrap("set", key, err)
	}
	return nil
}

func (c *redisCollection[T]) Update(ctx context.Context, key string, fields Fields) error {
	if len(fields) == 0 {
		return fmt.Errorf("update %s/%s: no fields given", c.name, key)
	}
	return c.rewrite(ctx, "update", key, func(raw []byte) ([]byte, error) {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("update %s/%s: decode: %w", c.name, key, err)
		}
		for field, value := range fields {
			doc[field] = value
		}
		merged, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("update %s/%s: encode: %w", c.name, key, err)
		}
		// Round-trip through T so an unknown field fails like an unknown column would.
		var typed T
		dec := json.NewDecoder(bytes.NewReader(merged))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&typed); err != nil {
			return nil, fmt.Errorf("update %s/%s: %w", c.name, key, err)
		}
		return json.Marshal(&typed)
	})
}

func (c *redisCollection[T]) Delete(ctx context.Context, key string) error {
	var del *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, c.docKey(key))
		pipe.SRem(ctx, c.indexKey(), key)
		return nil
	})
	if err != nil {
		return c.wrap("delete", key, err)
	}
	if del.Val() == 0 {
		return c.wrap("delete", key, redis.Nil)
	}
	return nil
}

func (c *redisCollection[T]) List(ctx context.Context) ([]T, error) {
	keys, err := c.rdb.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", c.name, ErrUnavailable, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	slices.Sort(keys)

	docKeys := make([]string, len(keys))
	for i, k := range keys {
		docKeys[i] = c.docKey(k)
	}
	values, err := c.rdb.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", c.name, ErrUnavailable, err)
	}

	docs := make([]T, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Deleted between SMEMBERS and MGET.
			continue
		}
		doc, err := c.decode(keys[i], []byte(s))
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (c *redisCollection[T]) Mutate(ctx context.Context, key string, fn func(doc *T) error) error {
	return c.rewrite(ctx, "mutate", key, func(raw []byte) ([]byte, error) {
		doc, err := c.decode(key, raw)
		if err != nil {
			return nil, err
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		if got := c.keyOf(doc); got != key {
			return nil, fmt.Errorf("mutate %s/%s: %w (now %q)", c.name, key, errKeyChanged, got)
		}
		return json.Marshal(doc)
	})
}

// rewrite runs an optimistic WATCH/MULTI/EXEC cycle on one document, retrying
// at most maxRetries times when another writer touched it first. Errors from
// apply are returned unchanged.
func (c *redisCollection[T]) rewrite(ctx context.Context, op, key string, apply func(raw []byte) ([]byte, error)) error {
	docKey := c.docKey(key)
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		var applyErr error
		err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, docKey).Bytes()
			if err != nil {
				return err
			}
			next, err := apply(raw)
			if err != nil {
				applyErr = err
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, docKey, next, 0)
				return nil
			})
			return err
		}, docKey)

		switch {
		case applyErr != nil:
			return applyErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err != nil:
			return c.wrap(op, key, err)
		default:
			return nil
		}
	}
	return fmt.Errorf("%s %s/%s: %w: gave up after %d conflicting writes", op, c.name, key, ErrUnavailable, c.maxRetries)
}

func (c *redisCollection[T]) decode(key string, raw []byte) (*T, error) {
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", c.name, key, err)
	}
	return &doc, nil
}

func (c *redisCollection[T]) wrap(op, key string, err error) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s %s/%s: %w", op, c.name, key, ErrNotFound)
	}
	return fmt.Errorf("%s %s/%s: %w: %w", op, c.name, key, ErrUnavailable, err)
}
