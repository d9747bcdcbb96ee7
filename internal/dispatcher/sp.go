// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/SeisBlue/EEW-WebUI/internal/calib"
	"github.com/SeisBlue/EEW-WebUI/pkg/dsp"
	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

const (
	// spBatchWindow/spBatchMaxSize bound how long SP waits to accumulate a
	// batch before running the filter, trading a little latency for the
	// batched-matrix throughput win (spec.md §4.2).
	spBatchWindow  = 20 * time.Millisecond
	spBatchMaxSize = 64
)

// SignalPipeline consumes RawPacket off a channel, runs the low-pass filter
// batched across whatever arrived within one flush window, and emits each
// flush as one "tick" of ProcessedPacket (spec.md §4.2). Every processed
// channel is also written into Windows, the live recent-history cache.
type SignalPipeline struct {
	In      <-chan RawPacket
	Out     chan<- []ProcessedPacket
	Pipe    *dsp.Pipeline
	Calib   *calib.Table
	Windows *WindowStore
	Metrics *Metrics
}

// NewSignalPipeline wires a SignalPipeline to its channels and dependencies.
func NewSignalPipeline(in <-chan RawPacket, out chan<- []ProcessedPacket, pipe *dsp.Pipeline, calibTable *calib.Table, windows *WindowStore, metrics *Metrics) *SignalPipeline {
	return &SignalPipeline{In: in, Out: out, Pipe: pipe, Calib: calibTable, Windows: windows, Metrics: metrics}
}

// Run accumulates RawPacket into batches of at most spBatchMaxSize, flushed
// every spBatchWindow, until ctx is canceled.
func (s *SignalPipeline) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(spBatchWindow)
	defer ticker.Stop()

	batch := make([]RawPacket, 0, spBatchMaxSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.processBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case pkt, ok := <-s.In:
			if !ok {
				flush()
				return
			}
			batch = append(batch, pkt)
			if len(batch) >= spBatchMaxSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *SignalPipeline) processBatch(batch []RawPacket) {
	raw := make([][]float64, len(batch))
	constants := make([]float64, len(batch))
	for i, pkt := range batch {
		raw[i] = pkt.Samples
		constants[i] = s.Calib.Constant(pkt.Station, pkt.Channel)
	}

	results, err := s.Pipe.ProcessBatch(raw, constants)
	if err != nil {
		// Batched matrix processing failed (e.g. a pathological array);
		// fall back to processing each array on its own (spec.md §7-g).
		cclog.Warnf("sp: batch of %d failed, falling back to per-array processing: %v", len(batch), err)
		results = make([]dsp.Result, len(batch))
		for i, pkt := range batch {
			results[i] = s.Pipe.ProcessOne(pkt.Samples, constants[i])
		}
	}

	tick := make([]ProcessedPacket, len(batch))
	for i, pkt := range batch {
		waveId := NormalizeWaveId(pkt.Network, pkt.Station, pkt.Location, pkt.Channel)
		tick[i] = ProcessedPacket{
			WaveId:   waveId,
			StartT:   pkt.StartT,
			EndT:     pkt.EndT,
			SampRate: pkt.SampRate,
			Samples:  results[i].Samples,
			PGA:      results[i].PGA,
		}
		s.Windows.Write(pkt.Station, results[i].Samples)
	}

	select {
	case s.Out <- tick:
	default:
		if s.Metrics != nil {
			s.Metrics.QueueOverflow.WithLabelValues("sp_to_fe").Inc()
		}
	}
}
