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

func TestDesignLowpassRejectsBadInput(t *testing.T) {
	_, err := DesignLowpass(3, 10, 100)
	assert.Error(t, err, "odd order must be rejected")

	_, err = DesignLowpass(4, 60, 100)
	assert.Error(t, err, "cutoff above Nyquist must be rejected")
}

func TestDesignLowpassHasUnitDCGain(t *testing.T) {
	sos, err := DesignLowpass(4, 10, 100)
	require.NoError(t, err)
	require.Len(t, sos.Sections, 2)

	// A long constant input should settle to (approximately) itself: unit
	// DC gain is the defining property of a normalized low-pass filter.
	const n = 2000
	x := make([]float64, n)
	for i := range x {
		x[i] = 5.0
	}
	y := sos.Apply(x)
	assert.InDelta(t, 5.0, y[n-1], 1e-6)
}

func TestDesignLowpassAttenuatesHighFrequency(t *testing.T) {
	sos, err := DesignLowpass(4, 10, 100)
	require.NoError(t, err)

	const n = 1000
	const sampleRate = 100.0

	low := make([]float64, n)
	high := make([]float64, n)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		low[i] = math.Sin(2 * math.Pi * 2 * t)  // 2Hz: well inside passband
		high[i] = math.Sin(2 * math.Pi * 40 * t) // 40Hz: well inside stopband
	}

	lowOut := sos.Apply(low)
	highOut := sos.Apply(high)

	lowPeak := peakAbs(lowOut[len(lowOut)/2:])
	highPeak := peakAbs(highOut[len(highOut)/2:])

	assert.Greater(t, lowPeak, 0.8, "2Hz tone should pass close to unattenuated")
	assert.Less(t, highPeak, 0.2, "40Hz tone should be strongly attenuated")
}
