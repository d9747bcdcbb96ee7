// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowBufferWrapAround(t *testing.T) {
	// spec.md S6: N=1000, write 1500 samples across 16 packets.
	buf := NewWindowBuffer(1000)

	total := 0
	packet := 0
	for total < 1500 {
		n := 94
		if total+n > 1500 {
			n = 1500 - total
		}
		arr := make([]float64, n)
		for i := range arr {
			arr[i] = float64(total + i)
		}
		buf.Write(arr)
		total += n
		packet++
	}
	require.Equal(t, 1500, total)
	require.Equal(t, 16, packet)

	assert.Equal(t, 500, buf.WriteIndex())

	snap := buf.Snapshot()
	require.Len(t, snap, 1000)
	// Chronological order: the oldest retained sample is value 500, the
	// newest is value 1499.
	assert.Equal(t, 500.0, snap[0])
	assert.Equal(t, 1499.0, snap[len(snap)-1])
}

func TestWindowBufferOverwriteWhenArrExceedsCapacity(t *testing.T) {
	buf := NewWindowBuffer(10)
	arr := make([]float64, 25)
	for i := range arr {
		arr[i] = float64(i)
	}
	buf.Write(arr)

	assert.Equal(t, 0, buf.WriteIndex())
	snap := buf.Snapshot()
	require.Len(t, snap, 10)
	assert.Equal(t, 15.0, snap[0])
	assert.Equal(t, 24.0, snap[9])
}

func TestWindowBufferPartialFill(t *testing.T) {
	buf := NewWindowBuffer(100)
	buf.Write([]float64{1, 2, 3})
	snap := buf.Snapshot()
	assert.Equal(t, []float64{1, 2, 3}, snap)
}

func TestWindowStoreCreatesBufferLazily(t *testing.T) {
	ws := NewWindowStore(30, 100)
	assert.Nil(t, ws.Snapshot("STA01"))

	ws.Write("STA01", []float64{1, 2, 3})
	assert.Equal(t, []float64{1, 2, 3}, ws.Snapshot("STA01"))
	assert.ElementsMatch(t, []string{"STA01"}, ws.Stations())
}

func TestWindowBufferConcurrentReadDuringWrite(t *testing.T) {
	buf := NewWindowBuffer(200)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			buf.Write([]float64{float64(i)})
		}
	}()
	for i := 0; i < 1000; i++ {
		_ = buf.Snapshot()
	}
	<-done
}
