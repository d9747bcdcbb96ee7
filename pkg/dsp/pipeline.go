// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

import "math"

// Corner and sample-rate assumptions baked into the live seismic path; see
// spec.md §4.2.
const (
	DefaultOrder      = 4
	DefaultCutoffHz   = 10.0
	DefaultSampleRate = 100.0

	// startEdgeTaperSeconds/startEdgeTaperMaxSamples bound the historical-
	// mode start taper to whichever is smaller.
	startEdgeTaperSeconds    = 2.0
	startEdgeTaperMaxSamples = 200
)

// Pipeline wraps one pre-built SOS cascade; it is constructed once at
// startup and reused across every batch (design is deterministic and
// stateless between calls, aside from the filter's own per-call history).
type Pipeline struct {
	sos SOS
}

// NewPipeline builds the default 4-pole / 10Hz / 100Hz-sample-rate pipeline
// used by the live and historical paths alike.
func NewPipeline() (*Pipeline, error) {
	sos, err := DesignLowpass(DefaultOrder, DefaultCutoffHz, DefaultSampleRate)
	if err != nil {
		return nil, err
	}
	return &Pipeline{sos: sos}, nil
}

// Result is the outcome of running the pipeline over one channel's samples.
type Result struct {
	Samples []float64
	PGA     float64
}

// ProcessOne runs the scale -> demean -> low-pass chain over a single array.
// This is the individual-array fallback path used when batch processing
// fails (spec.md §4.2, §7-g).
func (p *Pipeline) ProcessOne(raw []float64, calibConstant float64) Result {
	scaled := make([]float64, len(raw))
	var sum float64
	for i, v := range raw {
		scaled[i] = v * calibConstant
		sum += scaled[i]
	}
	if len(scaled) > 0 {
		mean := sum / float64(len(scaled))
		for i := range scaled {
			scaled[i] -= mean
		}
	}
	out := p.sos.Apply(scaled)
	return Result{Samples: out, PGA: peakAbs(out)}
}

// ProcessBatch zero-pads every input array to the batch's max length, runs
// the filter over the stacked 2-D matrix in one pass, then unpads each
// output back to its original length. This is the mandatory live-path
// throughput optimization described in spec.md §4.2.
func (p *Pipeline) ProcessBatch(raw [][]float64, calibConstants []float64) ([]Result, error) {
	if len(raw) != len(calibConstants) {
		return nil, errLengthMismatch
	}

	maxLen := 0
	for _, a := range raw {
		if len(a) > maxLen {
			maxLen = len(a)
		}
	}

	matrix := make([][]float64, len(raw))
	for i, a := range raw {
		row := make([]float64, maxLen)
		var sum float64
		for j, v := range a {
			row[j] = v * calibConstants[i]
			sum += row[j]
		}
		if len(a) > 0 {
			mean := sum / float64(len(a))
			for j := range a {
				row[j] -= mean
			}
		}
		matrix[i] = row
	}

	results := make([]Result, len(raw))
	for i, row := range matrix {
		filtered := p.sos.Apply(row)
		out := filtered[:len(raw[i])]
		results[i] = Result{Samples: out, PGA: peakAbs(out)}
	}
	return results, nil
}

// ApplyStartTaper linearly ramps the first min(2s, 200 samples) of out from
// 0 to 1 in place, suppressing the filter's start-up transient on a
// reassembled historical trace (spec.md §4.2 historical-mode variant).
// Applying it a second time to an already-tapered signal is idempotent
// beyond the taper window and only re-scales (not re-ramps) within it,
// which is why callers must apply it exactly once, immediately after
// filtering.
func ApplyStartTaper(out []float64, sampleRate int) {
	n := int(startEdgeTaperSeconds * float64(sampleRate))
	if n > startEdgeTaperMaxSamples {
		n = startEdgeTaperMaxSamples
	}
	if n > len(out) {
		n = len(out)
	}
	if n <= 1 {
		return
	}
	for i := 0; i < n; i++ {
		w := float64(i) / float64(n-1)
		out[i] *= w
	}
}

// PeakAbs returns the largest absolute value in xs, 0 for an empty slice.
// Exported so callers re-slicing an already-filtered trace (the historical
// query path's 5-second re-windowing) can recompute PGA per window without
// re-running the filter.
func PeakAbs(xs []float64) float64 {
	return peakAbs(xs)
}

func peakAbs(xs []float64) float64 {
	max := 0.0
	for _, x := range xs {
		a := math.Abs(x)
		if a > max {
			max = a
		}
	}
	return max
}

var errLengthMismatch = &pipelineError{"dsp: raw and calibConstants length mismatch"}

type pipelineError struct{ msg string }

func (e *pipelineError) Error() string { return e.msg }
