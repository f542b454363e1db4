// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is the default prefix of the redis keys of stored
// sessions.
const DefaultKeyPrefix = "cap:session"

// RedisStore is a Store which keeps JSON encoded records in redis.  Records
// expire with their redis key.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// redisOptions is the set of available options for RedisStore functions
type redisOptions struct {
	withKeyPrefix string
}

func redisDefaults() redisOptions {
	return redisOptions{
		withKeyPrefix: DefaultKeyPrefix,
	}
}

func getRedisOpts(opt ...Option) redisOptions {
	opts := redisDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// NewRedisStore creates a new Store using the redis client.
//
// Supported options: WithKeyPrefix
func NewRedisStore(client redis.Cmdable, opt ...Option) (*RedisStore, error) {
	const op = "NewRedisStore"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	opts := getRedisOpts(opt...)
	return &RedisStore{
		client: client,
		prefix: opts.withKeyPrefix,
	}, nil
}

func (s *RedisStore) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + ":" + id
}

// Load implements the Store interface.
func (s *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	const op = "RedisStore.Load"
	if id == "" {
		return nil, fmt.Errorf("%s: missing id: %w", op, ErrInvalidParameter)
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrStoreFailure)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s: unable to decode record: %s: %w", op, err, ErrStoreFailure)
	}
	return &r, nil
}

// Save implements the Store interface.
func (s *RedisStore) Save(ctx context.Context, r *Record, ttl time.Duration) error {
	const op = "RedisStore.Save"
	switch {
	case r == nil:
		return fmt.Errorf("%s: record is nil: %w", op, ErrNilParameter)
	case r.ID == "":
		return fmt.Errorf("%s: record id is empty: %w", op, ErrInvalidParameter)
	case ttl <= 0:
		return fmt.Errorf("%s: ttl must be positive: %w", op, ErrInvalidParameter)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: unable to encode record: %s: %w", op, err, ErrStoreFailure)
	}
	if err := s.client.Set(ctx, s.key(r.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, ErrStoreFailure)
	}
	return nil
}

// Destroy implements the Store interface.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	const op = "RedisStore.Destroy"
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, ErrStoreFailure)
	}
	return nil
}
