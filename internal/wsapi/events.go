// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wsapi defines the tagged-variant JSON event envelope exchanged
// over the client WebSocket connection (spec.md §6), replacing the source
// system's dynamically-typed event dicts with explicit Go types per the
// design note in spec.md §9.
package wsapi

import "encoding/json"

// Event names, verbatim from spec.md §6.
const (
	EventConnectInit           = "connect_init"
	EventSubscribeStations     = "subscribe_stations"
	EventSetDisplayResolution  = "set_display_resolution"
	EventRequestHistoricalData = "request_historical_data"
	EventWavePacket            = "wave_packet"
	EventHistoricalData        = "historical_data"
	EventHistoricalPicksBatch  = "historical_picks_batch"
	EventPickPacket            = "pick_packet"
	EventEEWPacket             = "eew_packet"
	EventError                 = "error"
)

// Envelope is the wire shape of every frame in both directions: a tag
// naming the event, and a payload whose shape that tag determines.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChannelFrame is one wave_id's entry inside a wave_packet or
// historical_data frame's data map (spec.md §6).
type ChannelFrame struct {
	Waveform          []float64 `json:"waveform"`
	PGA               float64   `json:"pga"`
	StartT            float64   `json:"startt"`
	EndT              float64   `json:"endt"`
	SampRate          int       `json:"samprate"`
	EffectiveSampRate float64   `json:"effective_samprate"`
	OriginalLength    int       `json:"original_length"`
	DownsampledLength int       `json:"downsampled_length"`
	DownsampleFactor  int       `json:"downsample_factor"`
}

// PacketData is the payload shape shared by wave_packet and
// historical_data frames (spec.md §6).
type PacketData struct {
	WaveId    string                  `json:"waveid"`
	Timestamp int64                   `json:"timestamp"`
	Data      map[string]ChannelFrame `json:"data"`
}

// HistoricalPicksBatch is the payload of a historical_picks_batch frame.
type HistoricalPicksBatch struct {
	Picks []json.RawMessage `json:"picks"`
	Count int               `json:"count"`
}

// PickOrEEWPacket is the payload shape shared by pick_packet and
// eew_packet frames (spec.md §6).
type PickOrEEWPacket struct {
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	Timestamp int64           `json:"timestamp"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Message string `json:"message"`
}

// SubscribeStationsData is the client->server subscribe_stations payload.
type SubscribeStationsData struct {
	Stations []string `json:"stations"`
}

// SetDisplayResolutionData is the client->server set_display_resolution
// payload.
type SetDisplayResolutionData struct {
	Width int `json:"width"`
}

// RequestHistoricalDataData is the client->server request_historical_data
// payload.
type RequestHistoricalDataData struct {
	Stations      []string `json:"stations"`
	WindowSeconds int      `json:"window_seconds"`
}

// marshalEnvelope is the shared helper every frame constructor below uses,
// except ConnectInit, which has no payload.
func marshalEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ConnectInit renders the connection-opened frame (no payload).
func ConnectInit() ([]byte, error) {
	return json.Marshal(Envelope{Event: EventConnectInit})
}

// WavePacket renders a wave_packet frame.
func WavePacket(d PacketData) ([]byte, error) {
	return marshalEnvelope(EventWavePacket, d)
}

// HistoricalDataFrame renders a historical_data frame.
func HistoricalDataFrame(d PacketData) ([]byte, error) {
	return marshalEnvelope(EventHistoricalData, d)
}

// HistoricalPicksBatchFrame renders a historical_picks_batch frame.
func HistoricalPicksBatchFrame(d HistoricalPicksBatch) ([]byte, error) {
	return marshalEnvelope(EventHistoricalPicksBatch, d)
}

// PickPacket renders a pick_packet frame.
func PickPacket(content json.RawMessage, timestampMs int64) ([]byte, error) {
	return marshalEnvelope(EventPickPacket, PickOrEEWPacket{Type: "pick", Content: content, Timestamp: timestampMs})
}

// EEWPacket renders an eew_packet frame.
func EEWPacket(content string, timestampMs int64) ([]byte, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(EventEEWPacket, PickOrEEWPacket{Type: "eew", Content: raw, Timestamp: timestampMs})
}

// ErrorFrame renders an error frame.
func ErrorFrame(message string) ([]byte, error) {
	return marshalEnvelope(EventError, ErrorData{Message: message})
}

// ParseSubscribeStations decodes a subscribe_stations payload.
func ParseSubscribeStations(data json.RawMessage) (SubscribeStationsData, error) {
	var out SubscribeStationsData
	err := json.Unmarshal(data, &out)
	return out, err
}

// ParseSetDisplayResolution decodes a set_display_resolution payload.
func ParseSetDisplayResolution(data json.RawMessage) (SetDisplayResolutionData, error) {
	var out SetDisplayResolutionData
	err := json.Unmarshal(data, &out)
	return out, err
}

// ParseRequestHistoricalData decodes a request_historical_data payload.
func ParseRequestHistoricalData(data json.RawMessage) (RequestHistoricalDataData, error) {
	var out RequestHistoricalDataData
	err := json.Unmarshal(data, &out)
	return out, err
}
