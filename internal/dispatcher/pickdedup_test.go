// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickDeduperScenarioS2(t *testing.T) {
	d := NewPickDeduper(120)

	var emittedAtUpdateSec = -1
	for us := 0; us <= 8; us++ {
		p := Pick{Station: "STA01", Channel: "HLZ", PickTime: 2000.5, UpdateSec: us}
		_, emit := d.Offer(p)
		if emit {
			emittedAtUpdateSec = us
		}
	}

	assert.Equal(t, 1, d.Len())
	best, ok := d.Best(PickKey{Station: "STA01", Channel: "HLZ", PickTime: 2000.5})
	require.True(t, ok)
	assert.Equal(t, 8, best.UpdateSec)
	assert.Equal(t, LiveEmitUpdateSec, emittedAtUpdateSec)
}

func TestPickDeduperEmitsOnlyOncePerKey(t *testing.T) {
	d := NewPickDeduper(120)
	k := Pick{Station: "A", Channel: "Z", PickTime: 1.0}

	emits := 0
	for _, us := range []int{0, 1, 2, 3, 2, 4} {
		p := k
		p.UpdateSec = us
		_, emit := d.Offer(p)
		if emit {
			emits++
		}
	}
	assert.Equal(t, 1, emits)
}

func TestPickDeduperPropertyArbitraryOrderConvergesToMax(t *testing.T) {
	// spec.md §8 property 2: for any multiset of picks sharing a key with
	// arbitrary update_sec values, exactly the max-update_sec record
	// survives regardless of arrival order.
	d := NewPickDeduper(120)
	updateSecs := []int{3, 0, 9, 1, 9, 2, 5, 9, 8}
	rand.Shuffle(len(updateSecs), func(i, j int) {
		updateSecs[i], updateSecs[j] = updateSecs[j], updateSecs[i]
	})

	for _, us := range updateSecs {
		d.Offer(Pick{Station: "S", Channel: "C", PickTime: 42, UpdateSec: us})
	}

	assert.Equal(t, 1, d.Len())
	best, ok := d.Best(PickKey{Station: "S", Channel: "C", PickTime: 42})
	require.True(t, ok)
	assert.Equal(t, 9, best.UpdateSec)
}

func TestPickDeduperReapsExpiredEntries(t *testing.T) {
	// spec.md §4.4: entries are reaped when pick_time + retention < now,
	// not when they were inserted.
	d := NewPickDeduper(10)
	fakeNow := int64(1000)
	d.now = func() int64 { return fakeNow }

	d.Offer(Pick{Station: "A", Channel: "Z", PickTime: float64(fakeNow)})
	fakeNow += 5
	d.Offer(Pick{Station: "B", Channel: "Z", PickTime: float64(fakeNow)})

	fakeNow += 10 // A's pick_time is now 15s old (past retention), B's is 10s old (not yet)
	removed := d.Reap()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, d.Len())
	_, ok := d.Best(PickKey{Station: "B", Channel: "Z", PickTime: float64(fakeNow - 10)})
	assert.True(t, ok)
}

func TestDedupeHistoricalKeepsMaxUpdateSecWithoutGate(t *testing.T) {
	picks := []Pick{
		{Station: "STA01", Channel: "HLZ", PickTime: 2000.5, UpdateSec: 3},
		{Station: "STA01", Channel: "HLZ", PickTime: 2000.5, UpdateSec: 8},
		{Station: "STA01", Channel: "HLZ", PickTime: 2000.5, UpdateSec: 5},
		{Station: "STA02", Channel: "HLZ", PickTime: 2001.0, UpdateSec: 1},
	}
	out := DedupeHistorical(picks)
	require.Len(t, out, 2)
	assert.Equal(t, 8, out[0].UpdateSec)
	assert.Equal(t, 1, out[1].UpdateSec)
}
