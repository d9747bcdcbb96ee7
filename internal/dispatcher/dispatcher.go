// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/SeisBlue/EEW-WebUI/internal/bus"
	"github.com/SeisBlue/EEW-WebUI/internal/calib"
	"github.com/SeisBlue/EEW-WebUI/pkg/dsp"
	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

const (
	// keyDiscoveryInterval is how often BR rescans for new wave-Z-channel
	// keys (spec.md §4.1: "periodic, default 5s").
	keyDiscoveryInterval = 5 * time.Second

	// pickReapInterval is how often PD drops entries past retention.
	pickReapInterval = 30 * time.Second

	chanBufWave = 4096
	chanBufPick = 256
	chanBufEEW  = 16
	chanBufTick = 256
)

// Dispatcher wires BR -> SP -> FE, BR(pick) -> PD -> FE.broadcast, and
// BR(eew) -> FE.broadcast, per spec.md §2's control-flow diagram.
type Dispatcher struct {
	BR       *BusReader
	SP       *SignalPipeline
	FE       *FanoutEngine
	HQ       *HistoricalQueryHandler
	PD       *PickDeduper
	Registry *SubscriptionRegistry
	Windows  *WindowStore
	Metrics  *Metrics

	waveCh chan RawPacket
	pickCh chan Pick
	eewCh  chan string
	tickCh chan []ProcessedPacket

	scheduler gocron.Scheduler
}

// Config bundles the tunables New needs beyond its component dependencies,
// sourced from dispatcherconfig.Values by the caller (spec.md §3, §4.5,
// §4.7 — window sizing, display resolution default, and pick retention are
// all operator-configurable rather than hardcoded).
type Config struct {
	// PickRetentionSeconds bounds PD's entry lifetime and caps how far a
	// historical query can reach (spec.md §3: "retention >= historical
	// window").
	PickRetentionSeconds int64

	// LiveWindowSeconds sizes WS's live buffer class (spec.md §3:
	// "typically 30s live, 120s historical"); the historical class is
	// served on demand by HQ's range-scan, not a WindowStore buffer.
	LiveWindowSeconds int

	// HistoricalWindowSeconds is the default range-scan depth when a
	// request_historical_data event omits window_seconds (spec.md §4.7).
	HistoricalWindowSeconds int

	// DefaultResolutionPx is the assumed display width before a client
	// calls set_display_resolution (spec.md §4.5).
	DefaultResolutionPx int
}

// New constructs every dispatcher component and wires their channels. b is
// the bus connection; pipe is the shared filter cascade; calibTable is the
// loaded calibration table.
func New(b bus.Bus, pipe *dsp.Pipeline, calibTable *calib.Table, cfg Config) (*Dispatcher, error) {
	metrics := NewMetrics()
	registry := NewSubscriptionRegistry(cfg.DefaultResolutionPx)
	windows := NewWindowStore(cfg.LiveWindowSeconds, int(dsp.DefaultSampleRate))
	pd := NewPickDeduper(cfg.PickRetentionSeconds)

	waveCh := make(chan RawPacket, chanBufWave)
	pickCh := make(chan Pick, chanBufPick)
	eewCh := make(chan string, chanBufEEW)
	tickCh := make(chan []ProcessedPacket, chanBufTick)

	br := NewBusReader(b, metrics, waveCh, pickCh, eewCh)
	sp := NewSignalPipeline(waveCh, tickCh, pipe, calibTable, windows, metrics)
	fe := NewFanoutEngine(registry, metrics)
	hq := NewHistoricalQueryHandler(b, pipe, calibTable, metrics, cfg.HistoricalWindowSeconds, cfg.PickRetentionSeconds)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		BR: br, SP: sp, FE: fe, HQ: hq, PD: pd,
		Registry: registry, Windows: windows, Metrics: metrics,
		waveCh: waveCh, pickCh: pickCh, eewCh: eewCh, tickCh: tickCh,
		scheduler: scheduler,
	}, nil
}

// Run starts every long-lived task and blocks until ctx is canceled.
// Each task takes the shared WaitGroup and context. Run returns once ctx is
// canceled and the scheduler has shut down; it does not wait for the tasks
// to exit, so the caller waits on wg for that (spec.md §5).
func (d *Dispatcher) Run(ctx context.Context, wg *sync.WaitGroup) {
	if err := d.BR.DiscoverKeys(ctx); err != nil {
		cclog.Warnf("dispatcher: initial key discovery failed: %v", err)
	}

	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(keyDiscoveryInterval),
		gocron.NewTask(func() {
			if err := d.BR.DiscoverKeys(ctx); err != nil {
				cclog.Warnf("dispatcher: key discovery failed: %v", err)
			}
		}),
	); err != nil {
		cclog.Errorf("dispatcher: scheduling key discovery: %v", err)
	}

	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(pickReapInterval),
		gocron.NewTask(func() {
			if n := d.PD.Reap(); n > 0 {
				cclog.Debugf("dispatcher: reaped %d expired pick entries", n)
			}
		}),
	); err != nil {
		cclog.Errorf("dispatcher: scheduling pick reaper: %v", err)
	}

	d.scheduler.Start()

	wg.Add(1)
	go d.BR.Run(ctx, wg)

	wg.Add(1)
	go d.SP.Run(ctx, wg)

	wg.Add(1)
	go d.runPickLoop(ctx, wg)

	wg.Add(1)
	go d.runEEWLoop(ctx, wg)

	wg.Add(1)
	go d.runTickLoop(ctx, wg)

	<-ctx.Done()
	if err := d.scheduler.Shutdown(); err != nil {
		cclog.Warnf("dispatcher: scheduler shutdown: %v", err)
	}
}

func (d *Dispatcher) runPickLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-d.pickCh:
			if !ok {
				return
			}
			best, emitLive := d.PD.Offer(p)
			if emitLive {
				if d.Metrics != nil {
					d.Metrics.PicksDeduped.Inc()
				}
				d.FE.BroadcastPick(best, time.Now().UnixMilli())
			}
		}
	}
}

func (d *Dispatcher) runEEWLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-d.eewCh:
			if !ok {
				return
			}
			d.FE.BroadcastEEW(payload, time.Now().UnixMilli())
		}
	}
}

func (d *Dispatcher) runTickLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-d.tickCh:
			if !ok {
				return
			}
			d.FE.BroadcastTick(tick, time.Now().UnixMilli())
		}
	}
}
