// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bus defines the append-only log abstraction the dispatcher tails
// and range-scans (spec.md §6), and a Redis Streams backed implementation
// of it. Every other dispatcher component only ever depends on the Bus
// interface, never on *redis.Client directly, so the live path can be
// exercised in tests against an in-memory fake.
package bus

import (
	"context"
	"strconv"
	"time"
)

// Earliest and Tip are the two well-known start IDs a reader can ask for:
// Earliest begins at the oldest retained entry, Tip begins at "whatever
// comes next" (spec.md §4.1).
const (
	Earliest = "0-0"
	Tip      = "$"
)

// Record is one entry read back from a stream, with its server-assigned
// ms-seq ID and field map.
type Record struct {
	ID     string
	Fields map[string]string
}

// Bus is the append-only log abstraction required by spec.md §6: append,
// tail multiple keys with a bounded blocking read, time-bounded range scan,
// and key enumeration by glob.
type Bus interface {
	// XAdd appends fields to key, returning the server-generated ID.
	XAdd(ctx context.Context, key string, fields map[string]any) (string, error)

	// XRead tails every key in streams (key -> "last seen ID, read after
	// this"), blocking up to block for up to count entries per key.
	XRead(ctx context.Context, streams map[string]string, count int64, block time.Duration) (map[string][]Record, error)

	// XRange returns every entry in key between minID and maxID, inclusive.
	XRange(ctx context.Context, key, minID, maxID string) ([]Record, error)

	// Scan enumerates every key matching the glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// RangeMillis renders a millisecond range bound the way spec.md §6 expects:
// "[start_ms-0, end_ms-0]" inclusive IDs.
func RangeMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return formatRangeID(ms)
}

func formatRangeID(ms int64) string {
	return strconv.FormatInt(ms, 10) + "-0"
}
