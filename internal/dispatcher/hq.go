// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/SeisBlue/EEW-WebUI/internal/bus"
	"github.com/SeisBlue/EEW-WebUI/internal/calib"
	"github.com/SeisBlue/EEW-WebUI/internal/wsapi"
	"github.com/SeisBlue/EEW-WebUI/pkg/dsp"
	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

const (
	// DefaultHistoricalWindowSeconds is used when a request omits
	// window_seconds or sends a non-positive value (spec.md §4.7).
	DefaultHistoricalWindowSeconds = 120

	historicalWindowSpan = 5.0 // seconds, spec.md §4.7 step 6

	// rateLimitPeriod/rateLimitBurst bound how often one connection may
	// trigger an expensive range-scan (spec.md §4.7 domain wiring).
	rateLimitPeriod = 5 * time.Second
	rateLimitBurst  = 1
)

// HistoricalQueryHandler answers request_historical_data by range-scanning
// the bus, reassembling contiguous traces, re-filtering and re-slicing them
// into 5-second frames, and dedupe-fetching picks for the same window
// (spec.md §4.7).
type HistoricalQueryHandler struct {
	Bus     bus.Bus
	Pipe    *dsp.Pipeline
	Calib   *calib.Table
	Metrics *Metrics

	// DefaultWindowSeconds is used when a request omits window_seconds or
	// sends a non-positive value (spec.md §4.7).
	DefaultWindowSeconds int

	// RetentionSeconds caps how far back a request can reach: the bus (and
	// PD's dedupe entries) don't keep data past this horizon, so a wider
	// request is truncated to it (spec.md §4.7: "cap at retention").
	RetentionSeconds int64

	mu       sync.Mutex
	limiters map[ConnID]*rate.Limiter

	now func() time.Time
}

// NewHistoricalQueryHandler wires a handler to its dependencies.
// defaultWindowSeconds and retentionSeconds come from the dispatcher's
// configured historical-window-seconds and pick-retention-seconds.
func NewHistoricalQueryHandler(b bus.Bus, pipe *dsp.Pipeline, calibTable *calib.Table, metrics *Metrics, defaultWindowSeconds int, retentionSeconds int64) *HistoricalQueryHandler {
	if defaultWindowSeconds <= 0 {
		defaultWindowSeconds = DefaultHistoricalWindowSeconds
	}
	return &HistoricalQueryHandler{
		Bus:                  b,
		Pipe:                 pipe,
		Calib:                calibTable,
		Metrics:              metrics,
		DefaultWindowSeconds: defaultWindowSeconds,
		RetentionSeconds:     retentionSeconds,
		limiters:             make(map[ConnID]*rate.Limiter),
		now:                  time.Now,
	}
}

func (h *HistoricalQueryHandler) limiterFor(conn ConnID) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[conn]
	if !ok {
		l = rate.NewLimiter(rate.Every(rateLimitPeriod), rateLimitBurst)
		h.limiters[conn] = l
	}
	return l
}

// Handle satisfies fe.go's HistoricalRequester. send delivers one frame at
// a time and reports whether the client's queue accepted it; Handle keeps
// going regardless (spec.md §7: "delivery is best-effort").
func (h *HistoricalQueryHandler) Handle(ctx context.Context, conn ConnID, resolutionPx int, send func([]byte) bool, req wsapi.RequestHistoricalDataData) error {
	if !h.limiterFor(conn).Allow() {
		return fmt.Errorf("hq: historical query rate limit exceeded for this connection")
	}

	windowSec := req.WindowSeconds
	if windowSec <= 0 {
		windowSec = h.DefaultWindowSeconds
	}
	if h.RetentionSeconds > 0 && int64(windowSec) > h.RetentionSeconds {
		windowSec = int(h.RetentionSeconds)
	}

	endMs := h.now().UnixMilli()
	startMs := endMs - int64(windowSec)*1000

	keys, err := h.resolveKeys(ctx, req.Stations)
	if err != nil {
		return err
	}

	requestID := endMs
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.emitKeyWindows(ctx, key, startMs, endMs, resolutionPx, requestID, send); err != nil {
			return err
		}
	}

	return h.emitPicks(ctx, startMs, endMs, send)
}

// resolveKeys expands the requested station list into concrete
// wave:{station}:{channel}Z bus keys. ALLZWildcard scans every live
// Z-channel key (spec.md §4.7 step 2).
func (h *HistoricalQueryHandler) resolveKeys(ctx context.Context, stations []string) ([]string, error) {
	var out []string
	for _, s := range stations {
		if s == ALLZWildcard {
			keys, err := h.Bus.Scan(ctx, "wave:*:*Z")
			if err != nil {
				return nil, fmt.Errorf("hq: scanning all-Z keys: %w", err)
			}
			out = append(out, keys...)
			continue
		}
		keys, err := h.Bus.Scan(ctx, fmt.Sprintf("wave:%s:*Z", s))
		if err != nil {
			return nil, fmt.Errorf("hq: scanning keys for station %s: %w", s, err)
		}
		out = append(out, keys...)
	}
	return dedupeStrings(out), nil
}

func (h *HistoricalQueryHandler) emitKeyWindows(ctx context.Context, key string, startMs, endMs int64, resolutionPx int, requestID int64, send func([]byte) bool) error {
	station, channel, ok := parseWaveKey(key)
	if !ok {
		return nil
	}

	records, err := h.Bus.XRange(ctx, key, bus.RangeMillis(startMs), bus.RangeMillis(endMs))
	if err != nil {
		return fmt.Errorf("hq: range-scanning %s: %w", key, err)
	}
	if len(records) == 0 {
		return nil
	}

	samples, startt, samprate, network, location, err := reassemble(station, channel, records)
	if err != nil {
		return fmt.Errorf("hq: reassembling %s: %w", key, err)
	}
	if len(samples) == 0 {
		return nil
	}

	constant := h.Calib.Constant(station, channel)
	result := h.Pipe.ProcessOne(samples, constant)
	dsp.ApplyStartTaper(result.Samples, samprate)

	waveId := NormalizeWaveId(network, station, location, channel)

	windows := sliceInto5sWindows(result.Samples, startt, samprate)
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}
		ds := dsp.Downsample(w.Samples, samprate, resolutionPx)
		frame := wsapi.ChannelFrame{
			Waveform:          ds.Samples,
			PGA:               dsp.PeakAbs(w.Samples),
			StartT:            w.StartT,
			EndT:              w.EndT,
			SampRate:          samprate,
			EffectiveSampRate: ds.EffectiveSampleRate,
			OriginalLength:    ds.OriginalLength,
			DownsampledLength: ds.DownsampledLength,
			DownsampleFactor:  ds.Stride,
		}
		raw, err := wsapi.HistoricalDataFrame(wsapi.PacketData{
			WaveId:    fmt.Sprintf("historical_%d_%d", requestID, i),
			Timestamp: requestID,
			Data:      map[string]wsapi.ChannelFrame{string(waveId): frame},
		})
		if err != nil {
			return err
		}
		send(raw)
	}
	return nil
}

func (h *HistoricalQueryHandler) emitPicks(ctx context.Context, startMs, endMs int64, send func([]byte) bool) error {
	records, err := h.Bus.XRange(ctx, pickStreamKey, bus.RangeMillis(startMs), bus.RangeMillis(endMs))
	if err != nil {
		return fmt.Errorf("hq: range-scanning picks: %w", err)
	}

	picks := make([]Pick, 0, len(records))
	for _, rec := range records {
		var p Pick
		if err := json.Unmarshal([]byte(rec.Fields["data"]), &p); err != nil {
			cclog.Warnf("hq: skipping malformed pick record: %v", err)
			continue
		}
		picks = append(picks, p)
	}

	deduped := DedupeHistorical(picks)
	rawPicks := make([]json.RawMessage, 0, len(deduped))
	for _, p := range deduped {
		raw, err := json.Marshal(p)
		if err != nil {
			continue
		}
		rawPicks = append(rawPicks, raw)
	}

	raw, err := wsapi.HistoricalPicksBatchFrame(wsapi.HistoricalPicksBatch{Picks: rawPicks, Count: len(rawPicks)})
	if err != nil {
		return err
	}
	send(raw)
	return nil
}

// reassemble decodes and concatenates every record for one key into a
// single contiguous trace, in bus order (spec.md §4.7 steps 3-5).
func reassemble(station, channel string, records []bus.Record) (samples []float64, startt float64, samprate int, network, location string, err error) {
	var out []float64
	for i, rec := range records {
		pkt, err := decodeWaveRecord(station, channel, rec)
		if err != nil {
			return nil, 0, 0, "", "", err
		}
		if i == 0 {
			startt = pkt.StartT
			samprate = pkt.SampRate
			network = pkt.Network
			location = pkt.Location
		}
		out = append(out, pkt.Samples...)
	}
	return out, startt, samprate, network, location, nil
}

type windowSlice struct {
	StartT, EndT float64
	Samples      []float64
}

// sliceInto5sWindows re-slices an already-filtered, already-tapered trace
// into fixed 5-second windows indexed by floor(startt/5), per spec.md §4.7
// step 6.
func sliceInto5sWindows(samples []float64, startt float64, samprate int) []windowSlice {
	if samprate <= 0 || len(samples) == 0 {
		return nil
	}
	dt := 1.0 / float64(samprate)
	endt := startt + dt*float64(len(samples))

	firstIdx := int(math.Floor(startt / historicalWindowSpan))
	lastIdx := int(math.Floor((endt - dt) / historicalWindowSpan))

	var out []windowSlice
	for i := firstIdx; i <= lastIdx; i++ {
		ws := float64(i) * historicalWindowSpan
		we := ws + historicalWindowSpan

		startIdx := int(math.Round((ws - startt) * float64(samprate)))
		endIdx := int(math.Round((we - startt) * float64(samprate)))
		if startIdx < 0 {
			startIdx = 0
		}
		if endIdx > len(samples) {
			endIdx = len(samples)
		}
		if startIdx >= endIdx {
			continue
		}
		out = append(out, windowSlice{StartT: ws, EndT: we, Samples: samples[startIdx:endIdx]})
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

