// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessOneDemeansAndScales(t *testing.T) {
	p, err := NewPipeline()
	require.NoError(t, err)

	raw := make([]float64, 200)
	for i := range raw {
		raw[i] = 1000
	}
	res := p.ProcessOne(raw, 1.0)
	// A constant input is entirely DC; after demean + low-pass it settles
	// near zero, so PGA must stay small relative to the raw amplitude.
	assert.Less(t, res.PGA, 50.0)
}

func TestProcessBatchMatchesProcessOne(t *testing.T) {
	p, err := NewPipeline()
	require.NoError(t, err)

	a := make([]float64, 150)
	b := make([]float64, 300)
	for i := range a {
		a[i] = math.Sin(float64(i) * 0.1)
	}
	for i := range b {
		b[i] = math.Sin(float64(i) * 0.1)
	}

	batch, err := p.ProcessBatch([][]float64{a, b}, []float64{2.0, 2.0})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Len(t, batch[0].Samples, len(a))
	assert.Len(t, batch[1].Samples, len(b))

	single := p.ProcessOne(a, 2.0)
	for i := range single.Samples {
		assert.InDelta(t, single.Samples[i], batch[0].Samples[i], 1e-9)
	}
}

func TestProcessBatchRejectsMismatchedLengths(t *testing.T) {
	p, err := NewPipeline()
	require.NoError(t, err)
	_, err = p.ProcessBatch([][]float64{{1, 2, 3}}, nil)
	assert.Error(t, err)
}

func TestApplyStartTaperRampsFirstWindow(t *testing.T) {
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = 10.0
	}
	ApplyStartTaper(samples, 100)

	assert.Equal(t, 0.0, samples[0])
	assert.InDelta(t, 10.0, samples[199], 1e-9)
	assert.InDelta(t, 10.0, samples[499], 1e-9, "samples beyond the taper window are untouched")

	// Monotonically increasing within the taper window.
	for i := 1; i < 200; i++ {
		assert.GreaterOrEqual(t, samples[i], samples[i-1])
	}
}

func TestApplyStartTaperCapsAt200SamplesEvenAboveTwoSeconds(t *testing.T) {
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = 1.0
	}
	// At 500Hz, 2s would be 1000 samples, but the cap is 200.
	ApplyStartTaper(samples, 500)
	assert.InDelta(t, 1.0, samples[200], 1e-9)
}
