// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import "sync"

// DefaultResolutionPx is the assumed display width when a client never
// calls set_display_resolution (spec.md §4.5).
const DefaultResolutionPx = 1000

// ConnID identifies one client connection; the fanout engine's transport
// layer assigns these.
type ConnID uint64

type connState struct {
	stations   map[string]bool
	resolution int
}

// SubscriptionRegistry maps connections to the set of stations they want,
// and its inverse, so the fanout engine can cheaply answer "who wants
// wave_id X" without scanning every connection (spec.md §4.5).
type SubscriptionRegistry struct {
	mu                  sync.RWMutex
	conns               map[ConnID]*connState
	byStn               map[string]map[ConnID]bool
	defaultResolutionPx int
}

// NewSubscriptionRegistry creates an empty registry. defaultResolutionPx is
// assumed for a connection until it calls set_display_resolution; pass
// DefaultResolutionPx to mirror the package fallback.
func NewSubscriptionRegistry(defaultResolutionPx int) *SubscriptionRegistry {
	if defaultResolutionPx <= 0 {
		defaultResolutionPx = DefaultResolutionPx
	}
	return &SubscriptionRegistry{
		conns:               make(map[ConnID]*connState),
		byStn:               make(map[string]map[ConnID]bool),
		defaultResolutionPx: defaultResolutionPx,
	}
}

// Subscribe replaces conn's station set with stations (spec.md §4.5). A
// single-element slice containing ALLZWildcard is accepted as-is.
func (r *SubscriptionRegistry) Subscribe(conn ConnID, stations []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromIndexLocked(conn)

	set := make(map[string]bool, len(stations))
	for _, s := range stations {
		set[s] = true
	}

	st, ok := r.conns[conn]
	if !ok {
		st = &connState{resolution: r.defaultResolutionPx}
		r.conns[conn] = st
	}
	st.stations = set

	for s := range set {
		idx, ok := r.byStn[s]
		if !ok {
			idx = make(map[ConnID]bool)
			r.byStn[s] = idx
		}
		idx[conn] = true
	}
}

// Unsubscribe removes conn's station set but keeps its resolution setting
// (spec.md §4.5: unsubscribe only touches the station set).
func (r *SubscriptionRegistry) Unsubscribe(conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromIndexLocked(conn)
	if st, ok := r.conns[conn]; ok {
		st.stations = nil
	}
}

// OnDisconnect removes conn from every index (spec.md §4.5).
func (r *SubscriptionRegistry) OnDisconnect(conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromIndexLocked(conn)
	delete(r.conns, conn)
}

// SetResolution records conn's display width in pixels.
func (r *SubscriptionRegistry) SetResolution(conn ConnID, widthPx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[conn]
	if !ok {
		st = &connState{resolution: r.defaultResolutionPx}
		r.conns[conn] = st
	}
	if widthPx > 0 {
		st.resolution = widthPx
	}
}

// Resolution returns conn's configured display width, or the default if
// conn has never set one (or doesn't exist).
func (r *SubscriptionRegistry) Resolution(conn ConnID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.conns[conn]; ok {
		return st.resolution
	}
	return r.defaultResolutionPx
}

// Match returns every connection whose subscription covers waveId: its
// station is in the conn's set, or the conn subscribes to ALLZWildcard and
// waveId's channel ends in 'Z' (spec.md §4.5).
func (r *SubscriptionRegistry) Match(waveId WaveId, station string) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[ConnID]bool)
	var out []ConnID
	if idx, ok := r.byStn[station]; ok {
		for c := range idx {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	if waveId.IsZChannel() {
		if idx, ok := r.byStn[ALLZWildcard]; ok {
			for c := range idx {
				if !seen[c] {
					seen[c] = true
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// Snapshot returns every connection ID the registry knows about: those that
// have subscribed or set a display resolution and not yet disconnected.
func (r *SubscriptionRegistry) Snapshot() []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnID, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *SubscriptionRegistry) removeFromIndexLocked(conn ConnID) {
	st, ok := r.conns[conn]
	if !ok || st.stations == nil {
		return
	}
	for s := range st.stations {
		if idx, ok := r.byStn[s]; ok {
			delete(idx, conn)
			if len(idx) == 0 {
				delete(r.byStn, s)
			}
		}
	}
}
