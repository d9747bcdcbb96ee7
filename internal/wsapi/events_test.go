// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wsapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWavePacketRoundTrips(t *testing.T) {
	raw, err := WavePacket(PacketData{
		WaveId:    "batch_123",
		Timestamp: 123,
		Data: map[string]ChannelFrame{
			"SM.STA01.01.HLZ": {Waveform: []float64{1, 2, 3}, PGA: 3, SampRate: 100, DownsampleFactor: 1},
		},
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventWavePacket, env.Event)

	var data PacketData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "batch_123", data.WaveId)
	assert.Equal(t, 3.0, data.Data["SM.STA01.01.HLZ"].PGA)
}

func TestConnectInitHasNoData(t *testing.T) {
	raw, err := ConnectInit()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventConnectInit, env.Event)
	assert.Empty(t, env.Data)
}

func TestParseSubscribeStations(t *testing.T) {
	out, err := ParseSubscribeStations(json.RawMessage(`{"stations":["A","B"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, out.Stations)
}

func TestParseRequestHistoricalData(t *testing.T) {
	out, err := ParseRequestHistoricalData(json.RawMessage(`{"stations":["__ALL_Z__"],"window_seconds":120}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"__ALL_Z__"}, out.Stations)
	assert.Equal(t, 120, out.WindowSeconds)
}

func TestErrorFrame(t *testing.T) {
	raw, err := ErrorFrame("boom")
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventError, env.Event)

	var data ErrorData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "boom", data.Message)
}

func TestEEWPacketWrapsOpaqueString(t *testing.T) {
	raw, err := EEWPacket("some alert text", 999)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	var data PickOrEEWPacket
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "eew", data.Type)
	assert.Equal(t, int64(999), data.Timestamp)

	var content string
	require.NoError(t, json.Unmarshal(data.Content, &content))
	assert.Equal(t, "some alert text", content)
}
