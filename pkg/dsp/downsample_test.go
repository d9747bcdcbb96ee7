// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrideMatchesSpecFormula(t *testing.T) {
	// factor = max(1, floor((120*samprate)/(widthPx*PointsPerPixel)))
	assert.Equal(t, 6, Stride(100, 1000))
	assert.Equal(t, 1, Stride(1, 1000))
	assert.Equal(t, 1, Stride(100, 100000))
}

func TestStrideDefaultsWidthWhenUnset(t *testing.T) {
	assert.Equal(t, Stride(100, 1000), Stride(100, 0))
}

func TestDownsampleLengthContract(t *testing.T) {
	samples := make([]float64, 200)
	for i := range samples {
		samples[i] = float64(i)
	}
	d := Downsample(samples, 100, 1000)
	want := int(math.Ceil(float64(len(samples)) / float64(d.Stride)))
	assert.Equal(t, want, d.DownsampledLength)
	assert.Equal(t, len(samples), d.OriginalLength)
	assert.Equal(t, 100.0/float64(d.Stride), d.EffectiveSampleRate)
}

func TestDownsampleEmptyInput(t *testing.T) {
	d := Downsample(nil, 100, 1000)
	assert.Equal(t, 0, d.DownsampledLength)
	assert.Empty(t, d.Samples)
}
