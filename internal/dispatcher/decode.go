// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"fmt"
	"strconv"

	"github.com/SeisBlue/EEW-WebUI/internal/bus"
)

// decodeWaveRecord turns one bus.Record from a wave:{station}:{channel}
// stream into a RawPacket, shared by BR's live tail and HQ's range-scan
// (spec.md §9 point 3: one decode path, not duplicated per caller).
func decodeWaveRecord(station, channel string, rec bus.Record) (RawPacket, error) {
	network := rec.Fields["network"]
	location := rec.Fields["location"]
	startt, err1 := strconv.ParseFloat(rec.Fields["startt"], 64)
	endt, err2 := strconv.ParseFloat(rec.Fields["endt"], 64)
	samprate, err3 := strconv.Atoi(rec.Fields["samprate"])
	if err1 != nil || err2 != nil || err3 != nil {
		return RawPacket{}, fmt.Errorf("dispatcher: malformed metadata on wave:%s:%s", station, channel)
	}

	samples, err := bus.DecodeSamples(rec.Fields["datatype"], []byte(rec.Fields["data"]))
	if err != nil {
		return RawPacket{}, err
	}

	return RawPacket{
		Station:  station,
		Channel:  channel,
		Network:  network,
		Location: location,
		StartT:   startt,
		EndT:     endt,
		SampRate: samprate,
		Samples:  samples,
	}, nil
}
