// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatcher implements the real-time distribution core described
// in spec.md: the bus reader, signal pipeline, window store, pick deduper,
// subscription registry, fanout engine and historical query handler, wired
// together by the Dispatcher type in dispatcher.go.
package dispatcher

import (
	"fmt"
	"strings"
)

// StationKey identifies one station/channel pair; it is the identity used
// for window buffers, calibration lookups and bus stream keys (spec.md §3).
type StationKey struct {
	Station string
	Channel string
}

func (k StationKey) String() string {
	return k.Station + ":" + k.Channel
}

// WaveId is the canonical SCNL string "network.station.location.channel"
// produced after legacy-naming normalization (spec.md §3).
type WaveId string

// NormalizeWaveId applies the legacy TW -> SM / location "01" rename and
// renders the canonical SCNL string. The mapping's upstream semantic is not
// documented upstream and is treated here as an opaque label rewrite
// (spec.md §9).
func NormalizeWaveId(network, station, location, channel string) WaveId {
	if network == "TW" {
		network = "SM"
		location = "01"
	}
	return WaveId(fmt.Sprintf("%s.%s.%s.%s", network, station, location, channel))
}

// IsZChannel reports whether a wave_id's channel component ends in 'Z', the
// test the "__ALL_Z__" wildcard subscription applies (spec.md §3, §4.5).
func (w WaveId) IsZChannel() bool {
	s := string(w)
	return strings.HasSuffix(s, "Z")
}

// Station extracts the station component of a canonical SCNL wave_id, the
// identity the subscription registry and window store key on.
func (w WaveId) Station() string {
	parts := strings.SplitN(string(w), ".", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// RawPacket is one decoded waveform record as read off the bus (spec.md §3).
type RawPacket struct {
	Station  string
	Channel  string
	Network  string
	Location string
	StartT   float64
	EndT     float64
	SampRate int
	Samples  []float64 // already dtype-decoded to float64 by the bus layer
}

// ProcessedPacket is the output of the Signal Pipeline for one channel
// (spec.md §3).
type ProcessedPacket struct {
	WaveId   WaveId
	StartT   float64
	EndT     float64
	SampRate int
	Samples  []float64
	PGA      float64
}

// ALLZWildcard is the special subscription marker meaning "any wave_id
// whose channel ends in Z" (spec.md §3, §4.5).
const ALLZWildcard = "__ALL_Z__"

// PickKey is the dedupe identity for a Pick: (station, channel, pick_time)
// (spec.md §3).
type PickKey struct {
	Station  string
	Channel  string
	PickTime float64
}

// Pick is one P-wave arrival record from the pick stream (spec.md §3).
// Unknown JSON fields are preserved in Extra rather than dropped, per the
// dynamic-typing replacement strategy in spec.md §9.
type Pick struct {
	Station    string         `json:"station"`
	Channel    string         `json:"channel"`
	Network    string         `json:"network"`
	Location   string         `json:"location"`
	Lon        float64        `json:"lon"`
	Lat        float64        `json:"lat"`
	PGA        float64        `json:"pga"`
	PGV        float64        `json:"pgv"`
	PD         float64        `json:"pd"`
	TC         float64        `json:"tc"`
	PickTime   float64        `json:"pick_time"`
	Weight     int            `json:"weight"`
	Instrument int            `json:"instrument"`
	UpdateSec  int            `json:"update_sec"`
	Extra      map[string]any `json:"-"`
}

// Key returns this pick's dedupe identity.
func (p Pick) Key() PickKey {
	return PickKey{Station: p.Station, Channel: p.Channel, PickTime: p.PickTime}
}
