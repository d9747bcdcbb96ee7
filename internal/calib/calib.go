// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package calib loads the per-(station, channel) counts-to-physical-units
// calibration table from CSV at startup (spec.md §3, §6). The resulting
// Table is immutable after Load returns and needs no lock (spec.md §5,
// "Calibration table: read-only after load; no lock").
package calib

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

// DefaultConstant is used whenever a (station, channel) pair is absent from
// the table (spec.md §3, §7: "Unknown station calibration is not an error").
const DefaultConstant = 3.2e-6

type key struct {
	station string
	channel string
}

// Table is an immutable station/channel -> calibration-constant map.
type Table struct {
	constants map[key]float64

	// warnedOnce tracks which unknown (station, channel) pairs have
	// already been logged, so a busy feed doesn't spam the log (spec.md
	// §7: "the (station, channel) pair is logged once").
	mu         sync.Mutex
	warnedOnce map[key]bool
}

// Load reads a CSV with header columns `Station,Channel,Constant[,...]`
// (spec.md §6). Extra trailing columns are ignored.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("calib: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader is Load's testable core: parse a calibration CSV from r.
func LoadReader(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // tolerate extra trailing columns

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("calib: reading header: %w", err)
	}
	stationCol, channelCol, constantCol := -1, -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Station":
			stationCol = i
		case "Channel":
			channelCol = i
		case "Constant":
			constantCol = i
		}
	}
	if stationCol < 0 || channelCol < 0 || constantCol < 0 {
		return nil, fmt.Errorf("calib: header must contain Station, Channel and Constant columns, got %v", header)
	}

	t := &Table{
		constants:  make(map[key]float64),
		warnedOnce: make(map[key]bool),
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("calib: reading row: %w", err)
		}
		if len(row) <= constantCol || len(row) <= stationCol || len(row) <= channelCol {
			continue
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(row[constantCol]), 64)
		if err != nil {
			cclog.Warnf("calib: skipping row with unparsable constant %q: %v", row[constantCol], err)
			continue
		}
		k := key{station: row[stationCol], channel: row[channelCol]}
		t.constants[k] = c
	}

	cclog.Infof("calib: loaded %d calibration constants", len(t.constants))
	return t, nil
}

// Constant returns the calibration constant for (station, channel),
// falling back to DefaultConstant and logging once if the pair is unknown.
func (t *Table) Constant(station, channel string) float64 {
	k := key{station: station, channel: channel}
	if c, ok := t.constants[k]; ok {
		return c
	}

	t.mu.Lock()
	if !t.warnedOnce[k] {
		t.warnedOnce[k] = true
		t.mu.Unlock()
		cclog.Warnf("calib: no calibration constant for (%s, %s), using default %.3e", station, channel, DefaultConstant)
	} else {
		t.mu.Unlock()
	}
	return DefaultConstant
}
