// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeisBlue/EEW-WebUI/internal/bus"
	"github.com/SeisBlue/EEW-WebUI/internal/calib"
	"github.com/SeisBlue/EEW-WebUI/internal/wsapi"
	"github.com/SeisBlue/EEW-WebUI/pkg/dsp"
)

func newTestHQ(t *testing.T, b bus.Bus) *HistoricalQueryHandler {
	t.Helper()
	pipe, err := dsp.NewPipeline()
	require.NoError(t, err)
	tbl, err := calib.LoadReader(strings.NewReader("Station,Channel,Constant\n"))
	require.NoError(t, err)
	hq := NewHistoricalQueryHandler(b, pipe, tbl, NewMetrics(), DefaultHistoricalWindowSeconds, 0)
	hq.now = func() time.Time { return time.UnixMilli(10_000_000) }
	return hq
}

func waveRecordFixture(t *testing.T, startt float64, samprate int, samples []float64) bus.Record {
	t.Helper()
	endt := startt + float64(len(samples))/float64(samprate)
	return bus.Record{
		ID: bus.RangeMillis(int64(startt * 1000)),
		Fields: map[string]string{
			"network": "SM", "location": "01",
			"startt":   strconv.FormatFloat(startt, 'f', -1, 64),
			"endt":     strconv.FormatFloat(endt, 'f', -1, 64),
			"samprate": strconv.Itoa(samprate),
			"datatype": "f8",
			"data":     encodeFloat64Samples(t, samples),
		},
	}
}

// TestHQScenarioS4HistoricalWindow mirrors spec.md scenario S4: a 100s
// contiguous trace on wave:X:HLZ should yield >= 20 historical_data frames
// (5s each) with monotonically increasing startt, followed by one
// historical_picks_batch frame.
func TestHQScenarioS4HistoricalWindow(t *testing.T) {
	const samprate = 100
	n := 100 * samprate // 100 seconds of samples
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 1.0
	}

	fb := &fakeBus{
		scanByPattern: map[string][]string{"wave:X:*Z": {"wave:X:HLZ"}},
		rangeByKey: map[string][]bus.Record{
			"wave:X:HLZ": {waveRecordFixture(t, 9900.0, samprate, samples)},
		},
	}
	// rewrite the key pattern BR/HQ actually issue: Scan("wave:X:*Z")
	fb.scanByPattern["wave:X:*Z"] = []string{"wave:X:HLZ"}

	hq := newTestHQ(t, fb)
	hq.now = func() time.Time { return time.UnixMilli(10_000_000) } // 10000.0s wall time

	var frames []wsapi.Envelope
	send := func(raw []byte) bool {
		var env wsapi.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		frames = append(frames, env)
		return true
	}

	err := hq.Handle(context.Background(), 1, 1000, send, wsapi.RequestHistoricalDataData{
		Stations:      []string{"X"},
		WindowSeconds: 120,
	})
	require.NoError(t, err)

	var dataFrames []wsapi.Envelope
	for _, f := range frames {
		if f.Event == wsapi.EventHistoricalData {
			dataFrames = append(dataFrames, f)
		}
	}
	assert.GreaterOrEqual(t, len(dataFrames), 20)
	assert.Equal(t, wsapi.EventHistoricalPicksBatch, frames[len(frames)-1].Event)

	var prevStart float64 = -1
	for _, f := range dataFrames {
		var pd wsapi.PacketData
		require.NoError(t, json.Unmarshal(f.Data, &pd))
		ch, ok := pd.Data["SM.X.01.HLZ"]
		require.True(t, ok)
		assert.Greater(t, ch.StartT, prevStart)
		assert.Equal(t, ch.StartT+historicalWindowSpan, ch.EndT)
		prevStart = ch.StartT
	}
}

func TestHQRateLimitsPerConnection(t *testing.T) {
	fb := &fakeBus{scanByPattern: map[string][]string{"wave:X:*Z": nil}}
	hq := newTestHQ(t, fb)

	send := func([]byte) bool { return true }
	req := wsapi.RequestHistoricalDataData{Stations: []string{"X"}, WindowSeconds: 10}

	require.NoError(t, hq.Handle(context.Background(), 1, 1000, send, req))
	err := hq.Handle(context.Background(), 1, 1000, send, req)
	assert.Error(t, err, "a second immediate request on the same connection should be rate limited")
}

func TestHQEmptyRangeStillEmitsPicksBatch(t *testing.T) {
	fb := &fakeBus{scanByPattern: map[string][]string{"wave:X:*Z": {"wave:X:HLZ"}}}
	hq := newTestHQ(t, fb)

	calls := 0
	send := func([]byte) bool { calls++; return true }

	err := hq.Handle(context.Background(), 1, 1000, send, wsapi.RequestHistoricalDataData{
		Stations: []string{"X"}, WindowSeconds: 10,
	})
	require.NoError(t, err) // empty range is not itself an error
	assert.Equal(t, 1, calls, "only the (empty) picks batch frame should have been sent")
}

func TestSliceInto5sWindowsProducesContiguousNonOverlappingWindows(t *testing.T) {
	samples := make([]float64, 1000) // 10s @ 100Hz
	windows := sliceInto5sWindows(samples, 0, 100)
	require.Len(t, windows, 2)
	assert.Equal(t, 0.0, windows[0].StartT)
	assert.Equal(t, 5.0, windows[0].EndT)
	assert.Equal(t, 5.0, windows[1].StartT)
	assert.Equal(t, 10.0, windows[1].EndT)
	assert.Len(t, windows[0].Samples, 500)
	assert.Len(t, windows[1].Samples, 500)
}
