// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import "sync"

// WindowBuffer is a fixed-capacity circular buffer of the last N samples
// for one station (spec.md §3, §4.3). Capacity is constant for the life of
// the buffer. Exactly one writer holds the lock at a time; readers take the
// same lock only long enough to copy out a snapshot, never across I/O.
type WindowBuffer struct {
	mu       sync.RWMutex
	data     []float64
	capacity int
	writeIdx int
	filled   bool // true once the buffer has wrapped at least once
}

// NewWindowBuffer allocates a buffer holding capacity samples.
func NewWindowBuffer(capacity int) *WindowBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &WindowBuffer{
		data:     make([]float64, capacity),
		capacity: capacity,
	}
}

// Write appends arr, wrapping modulo capacity. If len(arr) >= capacity, the
// buffer is entirely overwritten with the last capacity samples of arr and
// the write index resets to 0 (spec.md §4.3).
func (b *WindowBuffer) Write(arr []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(arr) >= b.capacity {
		copy(b.data, arr[len(arr)-b.capacity:])
		b.writeIdx = 0
		b.filled = true
		return
	}

	for _, v := range arr {
		b.data[b.writeIdx] = v
		b.writeIdx++
		if b.writeIdx == b.capacity {
			b.writeIdx = 0
			b.filled = true
		}
	}
}

// Snapshot returns a freshly allocated, chronologically ordered copy of the
// last capacity samples (tail-from-write-index concatenated with
// head-up-to-write-index), per spec.md §4.3.
func (b *WindowBuffer) Snapshot() []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.filled {
		out := make([]float64, b.writeIdx)
		copy(out, b.data[:b.writeIdx])
		return out
	}

	out := make([]float64, b.capacity)
	n := copy(out, b.data[b.writeIdx:])
	copy(out[n:], b.data[:b.writeIdx])
	return out
}

// WriteIndex exposes the current write cursor for tests (spec.md §8, S6).
func (b *WindowBuffer) WriteIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writeIdx
}

// WindowStore owns one WindowBuffer per station, created lazily on first
// write (spec.md §3 lifecycle: "created on first packet for a station;
// never destroyed during normal operation").
type WindowStore struct {
	mu       sync.Mutex
	capacity int
	buffers  map[string]*WindowBuffer
}

// NewWindowStore creates a store whose buffers each hold windowSec seconds
// of samples at sampleRate Hz.
func NewWindowStore(windowSec, sampleRate int) *WindowStore {
	return &WindowStore{
		capacity: windowSec * sampleRate,
		buffers:  make(map[string]*WindowBuffer),
	}
}

// Write appends arr to station's buffer, creating the buffer on first use.
func (s *WindowStore) Write(station string, arr []float64) {
	s.bufferFor(station).Write(arr)
}

// Snapshot returns station's current window, or nil if the station has
// never been written to.
func (s *WindowStore) Snapshot(station string) []float64 {
	s.mu.Lock()
	b, ok := s.buffers[station]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Snapshot()
}

func (s *WindowStore) bufferFor(station string) *WindowBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[station]
	if !ok {
		b = NewWindowBuffer(s.capacity)
		s.buffers[station] = b
	}
	return b
}

// Stations returns every station with a buffer, for the debug endpoint.
func (s *WindowStore) Stations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.buffers))
	for k := range s.buffers {
		out = append(out, k)
	}
	return out
}
