// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SeisBlue/EEW-WebUI/internal/bus"
	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

const (
	pickStreamKey = "pick"
	eewStreamKey  = "eew"

	// pollBlock/pollCount bound one XREAD call (spec.md §4.1).
	pollBlock = 100 * time.Millisecond
	pollCount = 100

	// transientBackoff is how long BR waits before retrying after a
	// transient bus error (spec.md §4.1, §7-a).
	transientBackoff = 100 * time.Millisecond

	malformedLogCacheSize = 4096
)

// BusReader tails `wave:{station}:{channel}Z`, `pick` and `eew` streams and
// hands decoded records to SP and the dispatcher's pick/eew fanout (spec.md
// §4.1). It never blocks the caller on a full downstream queue: overflow is
// drop-newest, counted via Metrics.
type BusReader struct {
	Bus     bus.Bus
	Metrics *Metrics

	waveOut chan<- RawPacket
	pickOut chan<- Pick
	eewOut  chan<- string

	mu      sync.Mutex
	streams map[string]string // key -> last-seen ID, resumed from there next poll

	malformed *lru.Cache[string, bool]

	statusMu sync.Mutex
	lastSeen map[string]time.Time // "station:channel" -> last decoded wave record
	lastPoll time.Time
}

// NewBusReader wires a BusReader to its downstream channels. waveOut,
// pickOut and eewOut should be created with the caller's chosen bound;
// BusReader only ever does a non-blocking send into them.
func NewBusReader(b bus.Bus, metrics *Metrics, waveOut chan<- RawPacket, pickOut chan<- Pick, eewOut chan<- string) *BusReader {
	cache, _ := lru.New[string, bool](malformedLogCacheSize)
	return &BusReader{
		Bus:       b,
		Metrics:   metrics,
		waveOut:   waveOut,
		pickOut:   pickOut,
		eewOut:    eewOut,
		streams:   make(map[string]string),
		malformed: cache,
		lastSeen:  make(map[string]time.Time),
	}
}

// StationStatus is a snapshot of one station/channel's last decoded wave
// record time, for /healthz and /debug/stations (spec.md §9 supplemented
// feature: "per-station last-seen/staleness tracking").
type StationStatus struct {
	Key      string
	LastSeen time.Time
}

// Status returns every tailed station/channel's last-seen time and the
// time of BR's most recent successful poll, the raw material for the
// HTTP layer's liveness and debug endpoints.
func (r *BusReader) Status() (stations []StationStatus, lastPoll time.Time) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	stations = make([]StationStatus, 0, len(r.lastSeen))
	for k, t := range r.lastSeen {
		stations = append(stations, StationStatus{Key: k, LastSeen: t})
	}
	return stations, r.lastPoll
}

// DiscoverKeys scans for live wave-Z-channel keys and adds any newly seen
// one starting from the bus's earliest retained offset, so a just-started
// reader doesn't miss recently retained data (spec.md §4.1). It also makes
// sure the pick/eew singleton streams are being tailed, starting at the
// current tip.
func (r *BusReader) DiscoverKeys(ctx context.Context) error {
	keys, err := r.Bus.Scan(ctx, "wave:*:*Z")
	if err != nil {
		return fmt.Errorf("br: key discovery: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, k := range keys {
		if _, ok := r.streams[k]; !ok {
			r.streams[k] = bus.Earliest
			added++
		}
	}
	if _, ok := r.streams[pickStreamKey]; !ok {
		r.streams[pickStreamKey] = bus.Tip
		added++
	}
	if _, ok := r.streams[eewStreamKey]; !ok {
		r.streams[eewStreamKey] = bus.Tip
		added++
	}
	if added > 0 {
		cclog.Debugf("br: now tailing %d streams (%d newly added)", len(r.streams), added)
	}
	return nil
}

// PollOnce issues one bounded multi-stream read and routes whatever comes
// back. It returns a transient error on bus trouble; callers should back
// off and retry (spec.md §4.1, §7-a).
func (r *BusReader) PollOnce(ctx context.Context) error {
	r.mu.Lock()
	snapshot := make(map[string]string, len(r.streams))
	for k, v := range r.streams {
		snapshot[k] = v
	}
	r.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	results, err := r.Bus.XRead(ctx, snapshot, pollCount, pollBlock)
	if err != nil {
		return err
	}

	r.statusMu.Lock()
	r.lastPoll = time.Now()
	r.statusMu.Unlock()

	r.mu.Lock()
	for key, records := range results {
		if len(records) == 0 {
			continue
		}
		r.streams[key] = records[len(records)-1].ID
	}
	r.mu.Unlock()

	for key, records := range results {
		switch key {
		case pickStreamKey:
			for _, rec := range records {
				r.handlePick(rec)
			}
		case eewStreamKey:
			for _, rec := range records {
				r.handleEEW(rec)
			}
		default:
			for _, rec := range records {
				r.handleWave(key, rec)
			}
		}
	}
	return nil
}

// Run drives PollOnce in a loop until ctx is canceled, backing off after
// transient errors (spec.md §4.1, §5 "bus reads use a 100ms blocking
// timeout so shutdown is bounded").
func (r *BusReader) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.PollOnce(ctx); err != nil {
			cclog.Warnf("br: poll failed, backing off: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(transientBackoff):
			}
		}
	}
}

func (r *BusReader) handleWave(key string, rec bus.Record) {
	station, channel, ok := parseWaveKey(key)
	if !ok {
		r.logMalformedOnce(key, fmt.Errorf("br: unparsable stream key %q", key))
		return
	}

	pkt, err := decodeWaveRecord(station, channel, rec)
	if err != nil {
		r.logMalformedOnce(key, err)
		if r.Metrics != nil {
			r.Metrics.RecordsDropped.Inc()
		}
		return
	}

	r.statusMu.Lock()
	r.lastSeen[key] = time.Now()
	r.statusMu.Unlock()

	select {
	case r.waveOut <- pkt:
	default:
		if r.Metrics != nil {
			r.Metrics.QueueOverflow.WithLabelValues("br_to_sp").Inc()
		}
	}
}

func (r *BusReader) handlePick(rec bus.Record) {
	var p Pick
	if err := json.Unmarshal([]byte(rec.Fields["data"]), &p); err != nil {
		r.logMalformedOnce(pickStreamKey, err)
		if r.Metrics != nil {
			r.Metrics.RecordsDropped.Inc()
		}
		return
	}
	select {
	case r.pickOut <- p:
	default:
		if r.Metrics != nil {
			r.Metrics.QueueOverflow.WithLabelValues("br_to_pd").Inc()
		}
	}
}

func (r *BusReader) handleEEW(rec bus.Record) {
	payload := rec.Fields["data"]
	select {
	case r.eewOut <- payload:
	default:
		if r.Metrics != nil {
			r.Metrics.QueueOverflow.WithLabelValues("br_to_eew").Inc()
		}
	}
}

// logMalformedOnce logs at most one warning per unique key (spec.md §7:
// "Malformed metadata is logged once per unique (station, channel)").
func (r *BusReader) logMalformedOnce(key string, err error) {
	if r.malformed == nil {
		cclog.Warnf("br: %v", err)
		return
	}
	if _, seen := r.malformed.Get(key); seen {
		return
	}
	r.malformed.Add(key, true)
	cclog.Warnf("br: %v", err)
}

// parseWaveKey splits "wave:{station}:{channel}" into its components.
func parseWaveKey(key string) (station, channel string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != "wave" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
