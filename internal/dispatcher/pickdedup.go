// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"sync"
	"time"
)

// LiveEmitUpdateSec is the "initial acceptable" update_sec gate the live
// path uses before broadcasting a pick, per spec.md §4.4.
const LiveEmitUpdateSec = 2

type pickEntry struct {
	pick        Pick
	liveEmitted bool
}

// PickDeduper maintains the best-update-seq record per (station, channel,
// pick_time) key and decides, for the live path, when a key first becomes
// eligible for broadcast (spec.md §4.4).
type PickDeduper struct {
	mu        sync.Mutex
	entries   map[PickKey]*pickEntry
	retention int64 // seconds
	now       func() int64
}

// NewPickDeduper creates a deduper that reaps entries whose pick_time is
// older than retentionSeconds (spec.md §3: "retention >= historical
// window").
func NewPickDeduper(retentionSeconds int64) *PickDeduper {
	return &PickDeduper{
		entries:   make(map[PickKey]*pickEntry),
		retention: retentionSeconds,
		now:       func() int64 { return time.Now().Unix() },
	}
}

// Offer ingests one pick record. It returns (best, emitLive) where best is
// the current best-known record for this key after this call, and emitLive
// is true exactly once per key: the moment update_sec==2 is first observed
// for that key (spec.md §4.4, §8 property 2, scenario S2).
func (d *PickDeduper) Offer(p Pick) (best Pick, emitLive bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := p.Key()
	e, ok := d.entries[k]
	if !ok {
		e = &pickEntry{pick: p}
		d.entries[k] = e
	} else if p.UpdateSec > e.pick.UpdateSec {
		e.pick = p
	}

	if !e.liveEmitted && p.UpdateSec == LiveEmitUpdateSec {
		e.liveEmitted = true
		emitLive = true
	}
	return e.pick, emitLive
}

// Best returns the current best record for key, if any.
func (d *PickDeduper) Best(k PickKey) (Pick, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[k]
	if !ok {
		return Pick{}, false
	}
	return e.pick, true
}

// Len reports how many distinct keys are currently tracked.
func (d *PickDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Reap drops every entry whose pick_time + retention < now, per spec.md
// §4.4. Scheduled periodically by gocron.
func (d *PickDeduper) Reap() (removed int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := float64(d.now())
	for k, e := range d.entries {
		if e.pick.PickTime+float64(d.retention) < now {
			delete(d.entries, k)
			removed++
		}
	}
	return removed
}

// DedupeHistorical keeps, for each (station, channel, pick_time) key in
// picks, only the record with maximum update_sec, without the live-path
// emission gate (spec.md §4.4: "downstream HQ simply keeps the maximum-
// update_sec record without the gate").
func DedupeHistorical(picks []Pick) []Pick {
	best := make(map[PickKey]Pick, len(picks))
	order := make([]PickKey, 0, len(picks))
	for _, p := range picks {
		k := p.Key()
		existing, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = p
			continue
		}
		if p.UpdateSec > existing.UpdateSec {
			best[k] = p
		}
	}
	out := make([]Pick, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}
