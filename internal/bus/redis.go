// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

// RedisBus implements Bus against a single Redis Streams connection. One
// RedisBus is shared by the reader task and any number of HQ jobs; the
// underlying client library serializes requests internally (spec.md §5,
// "bus client libraries are assumed to serialize internally").
type RedisBus struct {
	client *redis.Client
}

// Config is the subset of connection parameters the dispatcher reads from
// REDIS_HOST / REDIS_PORT / REDIS_DB (spec.md §6).
type Config struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// NewRedisBus dials Redis and verifies connectivity with a PING. A failure
// here is a bus-permanent error (spec.md §7-b): fatal at startup, never
// retried.
func NewRedisBus(ctx context.Context, cfg Config) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DB:       cfg.DB,
		Password: cfg.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("bus: could not connect to redis at %s: %w", client.Options().Addr, err)
	}

	cclog.Infof("bus: connected to redis at %s (db %d)", client.Options().Addr, cfg.DB)
	return &RedisBus{client: client}, nil
}

// Close releases the underlying connection pool.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

func (b *RedisBus) XAdd(ctx context.Context, key string, fields map[string]any) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("bus: XADD %s: %w", key, err)
	}
	return id, nil
}

// XRead issues one multi-stream blocking read. streams maps each key to the
// ID the reader has already consumed up to; the read returns only entries
// strictly after that ID.
func (b *RedisBus) XRead(ctx context.Context, streams map[string]string, count int64, block time.Duration) (map[string][]Record, error) {
	if len(streams) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(streams))
	for k := range streams {
		keys = append(keys, k)
	}
	args := make([]string, 0, len(keys)*2)
	args = append(args, keys...)
	for _, k := range keys {
		args = append(args, streams[k])
	}

	res, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: args,
		Count:   count,
		Block:   block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bus: XREAD: %w", err)
	}

	out := make(map[string][]Record, len(res))
	for _, stream := range res {
		records := make([]Record, 0, len(stream.Messages))
		for _, msg := range stream.Messages {
			records = append(records, toRecord(msg))
		}
		out[stream.Stream] = records
	}
	return out, nil
}

func (b *RedisBus) XRange(ctx context.Context, key, minID, maxID string) ([]Record, error) {
	msgs, err := b.client.XRange(ctx, key, minID, maxID).Result()
	if err != nil {
		return nil, fmt.Errorf("bus: XRANGE %s: %w", key, err)
	}
	records := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		records = append(records, toRecord(msg))
	}
	return records, nil
}

// Scan enumerates keys matching pattern via an incremental SCAN cursor so a
// large keyspace never blocks the server with a single KEYS call.
func (b *RedisBus) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := b.client.Scan(ctx, cursor, pattern, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("bus: SCAN %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func toRecord(msg redis.XMessage) Record {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprint(v)
		}
	}
	return Record{ID: msg.ID, Fields: fields}
}
