// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import "encoding/json"

// pickKnownFields lists every field name owned by the Pick struct, so
// UnmarshalJSON can separate "known schema" from "everything else" without
// reflection.
var pickKnownFields = map[string]bool{
	"station": true, "channel": true, "network": true, "location": true,
	"lon": true, "lat": true, "pga": true, "pgv": true, "pd": true, "tc": true,
	"pick_time": true, "weight": true, "instrument": true, "update_sec": true,
}

// UnmarshalJSON decodes a Pick using a strict schema for the known fields
// (spec.md §3) while preserving any unrecognized field in Extra, per the
// dynamic-typing replacement strategy of spec.md §9 ("Pick parsing uses a
// strict schema; unknown fields are preserved in a side map").
func (p *Pick) UnmarshalJSON(data []byte) error {
	type pickAlias Pick
	var aliased pickAlias
	if err := json.Unmarshal(data, &aliased); err != nil {
		return err
	}
	*p = Pick(aliased)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var extra map[string]any
	for name, value := range raw {
		if pickKnownFields[name] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			continue
		}
		extra[name] = v
	}
	p.Extra = extra
	return nil
}

// MarshalJSON re-emits the known fields plus whatever was preserved in
// Extra, so a Pick round-trips without silently dropping unknown data.
func (p Pick) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"station":    p.Station,
		"channel":    p.Channel,
		"network":    p.Network,
		"location":   p.Location,
		"lon":        p.Lon,
		"lat":        p.Lat,
		"pga":        p.PGA,
		"pgv":        p.PGV,
		"pd":         p.PD,
		"tc":         p.TC,
		"pick_time":  p.PickTime,
		"weight":     p.Weight,
		"instrument": p.Instrument,
		"update_sec": p.UpdateSec,
	}
	for k, v := range p.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}
