// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeisBlue/EEW-WebUI/internal/wsapi"
)

// registerFakeClient wires a Client with no real socket straight into the
// engine's registry, exercising the fanout/enqueue logic without a network
// round trip.
func registerFakeClient(fe *FanoutEngine, id ConnID) *Client {
	c := &Client{id: id, send: make(chan []byte, sendQueueCapacity)}
	fe.mu.Lock()
	fe.clients[id] = c
	fe.mu.Unlock()
	return c
}

func TestFanoutEngineBroadcastTickOnlyReachesSubscribedClients(t *testing.T) {
	reg := NewSubscriptionRegistry(DefaultResolutionPx)
	fe := NewFanoutEngine(reg, NewMetrics())

	subscribed := registerFakeClient(fe, 1)
	other := registerFakeClient(fe, 2)
	reg.Subscribe(1, []string{"STA01"})
	reg.Subscribe(2, []string{"STA02"})

	tick := []ProcessedPacket{{
		WaveId:   WaveId("SM.STA01.01.HLZ"),
		SampRate: 100,
		Samples:  make([]float64, 12000),
		PGA:      1.5,
	}}
	fe.BroadcastTick(tick, 123)

	select {
	case raw := <-subscribed.send:
		var env wsapi.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, wsapi.EventWavePacket, env.Event)
		var data wsapi.PacketData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Contains(t, data.Data, "SM.STA01.01.HLZ")
	default:
		t.Fatal("expected the subscribed client to receive a wave_packet frame")
	}

	assert.Empty(t, other.send)
}

func TestFanoutEngineBroadcastPickBypassesSubscriptionFilter(t *testing.T) {
	reg := NewSubscriptionRegistry(DefaultResolutionPx)
	fe := NewFanoutEngine(reg, NewMetrics())

	c := registerFakeClient(fe, 1)
	reg.Subscribe(1, []string{"SOME_OTHER_STATION"})

	fe.BroadcastPick(Pick{Station: "STA01", Channel: "HLZ", PickTime: 1.0}, 456)

	select {
	case raw := <-c.send:
		var env wsapi.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, wsapi.EventPickPacket, env.Event)
	default:
		t.Fatal("expected every connection to receive the pick broadcast regardless of subscription")
	}
}

func TestFanoutEngineSlowClientDropsRatherThanBlocks(t *testing.T) {
	reg := NewSubscriptionRegistry(DefaultResolutionPx)
	fe := NewFanoutEngine(reg, NewMetrics())

	c := &Client{id: 1, send: make(chan []byte, 1)}
	fe.mu.Lock()
	fe.clients[1] = c
	fe.mu.Unlock()
	c.send <- []byte("already full")

	fe.BroadcastEEW("alert", 1)

	assert.Equal(t, float64(1), testCounterValue(t, fe.Metrics.QueueOverflow.WithLabelValues("fe_client_send")))
}

func TestFanoutEngineResolutionAffectsDownsampleFactor(t *testing.T) {
	reg := NewSubscriptionRegistry(DefaultResolutionPx)
	fe := NewFanoutEngine(reg, NewMetrics())
	c := registerFakeClient(fe, 1)
	reg.Subscribe(1, []string{"STA01"})
	reg.SetResolution(1, 500)

	tick := []ProcessedPacket{{
		WaveId:   WaveId("SM.STA01.01.HLZ"),
		SampRate: 100,
		Samples:  make([]float64, 12000),
	}}
	fe.BroadcastTick(tick, 0)

	raw := <-c.send
	var env wsapi.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	var data wsapi.PacketData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 12, data.Data["SM.STA01.01.HLZ"].DownsampleFactor) // (120*100)/(500*2)
}
