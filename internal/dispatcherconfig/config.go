// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatcherconfig loads the dispatcher-specific section of the
// JSON config file, validated against an embedded JSON schema before
// decoding.
package dispatcherconfig

import (
	"bytes"
	"encoding/json"

	"github.com/SeisBlue/EEW-WebUI/internal/config"
	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

// Keys holds every dispatcher-tunable option not already covered by
// REDIS_HOST/REDIS_PORT/REDIS_DB/DISPATCHER_ADDR environment overrides
// (internal/config). Populated by Init, read-only afterwards.
type Keys struct {
	// CalibrationFile is the CSV loaded by internal/calib at startup.
	CalibrationFile string `json:"calibration-file"`

	// PickRetentionSeconds bounds PickDeduper entry lifetime; must be >=
	// HistoricalWindowSeconds so a historical query never misses a pick
	// still inside its own window (spec.md §3).
	PickRetentionSeconds int64 `json:"pick-retention-seconds"`

	// LiveWindowSeconds sizes the WindowStore's live ring buffer class.
	LiveWindowSeconds int `json:"live-window-seconds"`

	// HistoricalWindowSeconds is the default range-scan depth when a
	// request_historical_data event omits window_seconds.
	HistoricalWindowSeconds int `json:"historical-window-seconds"`

	// DefaultResolutionPx is the assumed display width before a client
	// calls set_display_resolution.
	DefaultResolutionPx int `json:"default-resolution-px"`
}

// defaults mirrors the dispatcher package's own fallback constants
// (dispatcher.DefaultHistoricalWindowSeconds, dispatcher.DefaultResolutionPx),
// so an absent config section behaves the same as an explicit one holding
// these values.
var defaults = Keys{
	CalibrationFile:         "./var/calibration.csv",
	PickRetentionSeconds:    150,
	LiveWindowSeconds:       30,
	HistoricalWindowSeconds: 120,
	DefaultResolutionPx:     1000,
}

// Values is the decoded, validated configuration. Read-only after Init.
var Values = defaults

const schema = `{
	"type": "object",
	"description": "Configuration specific to the EEW dispatcher.",
	"properties": {
		"calibration-file": {
			"description": "Path to the station/channel calibration CSV.",
			"type": "string"
		},
		"pick-retention-seconds": {
			"description": "How long a deduped pick is kept before being reaped.",
			"type": "integer",
			"minimum": 1
		},
		"live-window-seconds": {
			"description": "Live ring-buffer depth per station, in seconds.",
			"type": "integer",
			"minimum": 1
		},
		"historical-window-seconds": {
			"description": "Default historical query depth, in seconds.",
			"type": "integer",
			"minimum": 1
		},
		"default-resolution-px": {
			"description": "Assumed client display width before set_display_resolution.",
			"type": "integer",
			"minimum": 1
		}
	}
}`

// Init validates rawConfig against the embedded schema and decodes it over
// the package defaults. A nil rawConfig leaves Values at its defaults.
func Init(rawConfig json.RawMessage) {
	if rawConfig == nil {
		return
	}

	config.Validate(schema, rawConfig)

	dec := json.NewDecoder(bytes.NewReader(rawConfig))
	if err := dec.Decode(&Values); err != nil {
		cclog.Fatalf("dispatcherconfig: could not decode config section: %s", err.Error())
	}

	if Values.PickRetentionSeconds < int64(Values.HistoricalWindowSeconds) {
		cclog.Warnf("dispatcherconfig: pick-retention-seconds (%d) is shorter than historical-window-seconds (%d); a historical query near the retention edge may miss picks",
			Values.PickRetentionSeconds, Values.HistoricalWindowSeconds)
	}
}
